package dramauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/dramauth/store"
)

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// The token is consumed whatever the outcome. A token minted by
// RequestEmailChange is applied as an email change.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.redeemVerification(ctx, token, false)
	return err
}

// RequestEmailVerification mails a fresh verification link to an
// unverified account. Unknown and already verified addresses are
// silently ignored.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	account, err := e.accounts.GetAccountByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.internal("load account", err)
	}
	if account.EmailVerified() {
		return nil
	}
	if err := e.issueAndNotify(ctx, store.TokenVerification, NotifyEmailVerification, account.Email, account.ID, "", account.Name); err != nil {
		return err
	}
	e.metricInc(MetricEmailVerificationSent)
	return nil
}

// RequestEmailChange describes the requestemailchange operation and its observable behavior.
//
// A verification link bound to the account is mailed to newEmail. The
// account keeps its current address until the link is confirmed.
func (e *Engine) RequestEmailChange(ctx context.Context, accountID, newEmail string) error {
	if err := e.ready(); err != nil {
		return err
	}

	newEmail = store.NormalizeEmail(newEmail)
	if !plausibleEmail(newEmail) {
		return ErrInvalidInput
	}
	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return e.internal("load account", err)
	}
	if account.Email == newEmail {
		return ErrInvalidInput
	}
	taken, err := e.emailOwnedByOther(ctx, newEmail, accountID)
	if err != nil {
		return err
	}
	if taken {
		e.metricInc(MetricEmailChangeConflict)
		e.emitAudit(ctx, auditEventEmailChangeRequest, false, accountID, ErrEmailAlreadyInUse, nil)
		return ErrEmailAlreadyInUse
	}

	if err := e.issueAndNotify(ctx, store.TokenVerification, NotifyEmailChangeVerification, newEmail, accountID, accountID, account.Name); err != nil {
		return err
	}
	e.metricInc(MetricEmailChangeRequested)
	e.emitAudit(ctx, auditEventEmailChangeRequest, true, accountID, nil, nil)
	return nil
}

// ConfirmEmailChange describes the confirmemailchange operation and its observable behavior.
//
// Only tokens minted by RequestEmailChange are accepted. A plain
// verification token yields ErrTokenNotFound and stays redeemable through
// VerifyEmail. An accepted token is consumed before anything else so it
// cannot be retried. If the new address was claimed by another account in
// the meantime ErrEmailAlreadyInUse is returned and the account is unchanged.
func (e *Engine) ConfirmEmailChange(ctx context.Context, token string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if pending, err := e.ledger.Peek(ctx, store.TokenVerification, token); err == nil && pending.AccountID == "" {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, "", ErrTokenNotFound, nil)
		return nil, ErrTokenNotFound
	}
	return e.redeemVerification(ctx, token, true)
}

// redeemVerification consumes a verification token. With changeOnly set
// a token that carries no email change is refused after the take.
func (e *Engine) redeemVerification(ctx context.Context, token string, changeOnly bool) (*store.Account, error) {
	record, err := e.ledger.Consume(ctx, store.TokenVerification, token)
	if err != nil {
		mapped := e.mapLedgerErr(err)
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", mapped, nil)
		return nil, mapped
	}
	if record.AccountID != "" {
		return e.applyEmailChange(ctx, record)
	}
	if changeOnly {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, "", ErrTokenNotFound, nil)
		return nil, ErrTokenNotFound
	}

	account, err := e.accounts.GetAccountByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			return nil, ErrTokenNotFound
		}
		return nil, e.internal("load account", err)
	}
	if account.EmailVerified() {
		e.metricInc(MetricEmailVerificationSuccess)
		return account, nil
	}

	updated, err := e.mutateAccount(ctx, account.ID, func(a *store.Account) error {
		if a.Email != record.Email {
			return ErrTokenNotFound
		}
		if a.EmailVerifiedAt == nil {
			verifiedAt := e.now()
			a.EmailVerifiedAt = &verifiedAt
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			return nil, err
		}
		return nil, e.internal("verify email", err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, updated.ID, nil, nil)
	return updated.Clone(), nil
}

func (e *Engine) applyEmailChange(ctx context.Context, record *store.TokenRecord) (*store.Account, error) {
	fail := func(err error) (*store.Account, error) {
		if errors.Is(err, ErrEmailAlreadyInUse) {
			e.metricInc(MetricEmailChangeConflict)
		}
		e.emitAudit(ctx, auditEventEmailChangeConfirm, false, record.AccountID, err, nil)
		return nil, err
	}

	taken, err := e.emailOwnedByOther(ctx, record.Email, record.AccountID)
	if err != nil {
		return fail(err)
	}
	if taken {
		return fail(ErrEmailAlreadyInUse)
	}

	updated, err := e.mutateAccount(ctx, record.AccountID, func(a *store.Account) error {
		verifiedAt := e.now()
		a.Email = record.Email
		a.EmailVerifiedAt = &verifiedAt
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return fail(ErrTokenNotFound)
	case errors.Is(err, store.ErrConflict):
		// Either a stale version after every retry or the address was
		// taken between the check above and the write.
		if taken, lookupErr := e.emailOwnedByOther(ctx, record.Email, record.AccountID); lookupErr == nil && taken {
			return fail(ErrEmailAlreadyInUse)
		}
		return fail(e.internal("apply email change", err))
	default:
		return fail(e.internal("apply email change", err))
	}

	e.metricInc(MetricEmailChangeConfirmed)
	e.emitAudit(ctx, auditEventEmailChangeConfirm, true, updated.ID, nil, nil)
	return updated.Clone(), nil
}

func (e *Engine) emailOwnedByOther(ctx context.Context, email, accountID string) (bool, error) {
	owner, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, e.internal("load account", err)
	}
	return owner.ID != accountID, nil
}
