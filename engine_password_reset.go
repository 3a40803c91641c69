package dramauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// It returns nil for unknown addresses and for accounts that cannot sign
// in with a password, so the response never reveals whether an account
// exists. Only store failures are reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	email = store.NormalizeEmail(email)
	account, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", nil, nil)
			return nil
		}
		return e.internal("load account", err)
	}
	if !account.Registered {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, ErrNotRegistered, nil)
		return nil
	}

	if err := e.issueAndNotify(ctx, store.TokenPasswordReset, NotifyPasswordReset, account.Email, account.ID, "", account.Name); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, nil)
	return nil
}

// PeekPasswordReset reports when a reset link expires without consuming it.
func (e *Engine) PeekPasswordReset(ctx context.Context, token string) (time.Time, error) {
	if err := e.ready(); err != nil {
		return time.Time{}, err
	}
	record, err := e.ledger.Peek(ctx, store.TokenPasswordReset, token)
	if err != nil {
		return time.Time{}, e.mapLedgerErr(err)
	}
	return record.ExpiresAt, nil
}

// ConfirmPasswordReset describes the confirmpasswordreset operation and its observable behavior.
//
// The token is consumed first, so an expired token is reported as
// ErrTokenExpired and is gone afterwards. A password rejected by policy
// leaves the token usable. A successful reset mails a password-changed
// notice and clears any pending second-factor confirmation.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := e.codec.HashSecret(newPassword)
	if err != nil {
		return e.internal("hash password", err)
	}

	fail := func(err error) error {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", err, nil)
		return err
	}

	record, err := e.ledger.Consume(ctx, store.TokenPasswordReset, token)
	if err != nil {
		return fail(e.mapLedgerErr(err))
	}
	account, err := e.accounts.GetAccountByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(ErrTokenNotFound)
		}
		return fail(e.internal("load account", err))
	}

	updated, err := e.mutateAccount(ctx, account.ID, func(a *store.Account) error {
		if a.Email != record.Email {
			return ErrTokenNotFound
		}
		a.PasswordHash = hash
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return fail(err)
		}
		return fail(e.internal("reset password", err))
	}

	e.clearConfirmation(ctx, updated.ID)

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, updated.ID, nil, nil)
	e.notifyPasswordChanged(ctx, updated)
	return nil
}
