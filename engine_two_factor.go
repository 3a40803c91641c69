package dramauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/dramauth/store"
	"go.uber.org/zap"
)

var errEnrollmentSuperseded = errors.New("enrollment superseded")

// BeginTwoFactorEnrollment generates a candidate TOTP secret and its
// provisioning URL. Nothing is stored until EnrollTwoFactor confirms a
// code generated from the secret.
func (e *Engine) BeginTwoFactorEnrollment(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OTPEnabled {
		return nil, ErrInvalidInput
	}

	key, err := e.codec.NewTOTPKey(account.Email)
	if err != nil {
		return nil, e.internal("generate totp key", err)
	}
	return &TOTPSetup{Secret: key.Secret, URL: key.URL}, nil
}

// EnrollTwoFactor describes the enrolltwofactor operation and its observable behavior.
//
// code must verify against secret at the current time. On success the
// account requires a second factor from the next sign-in on, and a fresh
// set of backup codes is returned. The plaintext codes are not
// retrievable again.
func (e *Engine) EnrollTwoFactor(ctx context.Context, accountID, secret, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OTPEnabled || secret == "" {
		return nil, ErrInvalidInput
	}
	counter, ok := e.codec.VerifyTOTPCounter(secret, code, e.now())
	if !ok {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, accountID, ErrInvalidSecondFactorCode, nil)
		return nil, ErrInvalidSecondFactorCode
	}

	// The account write decides the winner among concurrent enrollments;
	// only the winner may touch the backup codes.
	enabled, err := e.mutateAccount(ctx, accountID, func(a *store.Account) error {
		if a.OTPEnabled {
			return ErrInvalidInput
		}
		a.OTPEnabled = true
		a.OTPSecret = secret
		a.OTPLastCounter = counter
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, e.internal("enable two factor", err)
	}
	codes, err := e.vault.Enroll(ctx, accountID, enabled.Version)
	if err != nil {
		e.revertEnrollment(ctx, accountID, secret)
		return nil, e.internal("enroll backup codes", err)
	}
	e.clearConfirmation(ctx, accountID)

	e.metricInc(MetricTwoFactorEnabled)
	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, nil, nil)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, accountID, nil, nil)
	return codes, nil
}

// DisableTwoFactor describes the disabletwofactor operation and its observable behavior.
//
// factor must be a valid TOTP code or an unused backup code. The secret,
// every backup code and any pending confirmation are removed.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string, factor Factor) error {
	if err := e.ready(); err != nil {
		return err
	}
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.OTPEnabled {
		return ErrInvalidInput
	}
	if err := e.gate.Check(ctx, account, factor); err != nil {
		mapped := e.mapGateErr(err)
		if errors.Is(mapped, ErrSecondFactorRateLimited) {
			e.emitRateLimit(ctx, "second_factor", accountID)
		}
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, accountID, mapped, nil)
		return mapped
	}

	_, err = e.mutateAccount(ctx, accountID, func(a *store.Account) error {
		a.OTPEnabled = false
		a.OTPSecret = ""
		a.OTPLastCounter = 0
		return nil
	})
	if err != nil {
		return e.internal("disable two factor", err)
	}
	if err := e.vault.Clear(ctx, accountID); err != nil {
		e.logger.Warn("clear backup codes", zap.String("account_id", accountID), zap.Error(err))
	}
	e.clearConfirmation(ctx, accountID)

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, accountID, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces every backup code after checking a
// current TOTP code. Backup codes cannot authorize their own replacement.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.OTPEnabled {
		return nil, ErrInvalidInput
	}
	if err := e.gate.Check(ctx, account, TOTPFactor(totpCode)); err != nil {
		e.metricInc(MetricSecondFactorFailure)
		return nil, e.mapGateErr(err)
	}

	// account carries the version the check left behind. Any other write
	// since then makes the replace fail rather than clobber newer codes.
	codes, err := e.vault.Enroll(ctx, accountID, account.Version)
	if err != nil {
		return nil, e.internal("regenerate backup codes", err)
	}
	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, accountID, nil, nil)
	return codes, nil
}

// RemainingBackupCodes reports how many unused backup codes the account has.
func (e *Engine) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.vault.Remaining(ctx, accountID)
	if err != nil {
		return 0, e.internal("count backup codes", err)
	}
	return n, nil
}

func (e *Engine) loadAccount(ctx context.Context, accountID string) (*store.Account, error) {
	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, e.internal("load account", err)
	}
	return account, nil
}

// revertEnrollment turns the second factor back off after its backup
// codes could not be stored, unless another enrollment replaced the secret.
func (e *Engine) revertEnrollment(ctx context.Context, accountID, secret string) {
	ctx = context.WithoutCancel(ctx)
	_, err := e.mutateAccount(ctx, accountID, func(a *store.Account) error {
		if !a.OTPEnabled || a.OTPSecret != secret {
			return errEnrollmentSuperseded
		}
		a.OTPEnabled = false
		a.OTPSecret = ""
		a.OTPLastCounter = 0
		return nil
	})
	if err != nil && !errors.Is(err, errEnrollmentSuperseded) {
		e.logger.Error("revert two factor enrollment", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (e *Engine) clearConfirmation(ctx context.Context, accountID string) {
	if err := e.gate.Clear(ctx, accountID); err != nil {
		e.logger.Warn("clear confirmation", zap.String("account_id", accountID), zap.Error(err))
	}
}
