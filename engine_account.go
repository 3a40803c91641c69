package dramauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/dramauth/store"
)

const maxAccountUpdateAttempts = 3

// mutateAccount applies mutate to a fresh copy of the account and writes
// it under the account's version stamp, re-reading and retrying on a
// stale version. Store errors are returned unwrapped so callers can map
// ErrNotFound and ErrConflict to their own taxonomy.
func (e *Engine) mutateAccount(ctx context.Context, accountID string, mutate func(*store.Account) error) (*store.Account, error) {
	var lastErr error
	for attempt := 0; attempt < maxAccountUpdateAttempts; attempt++ {
		current, err := e.accounts.GetAccountByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = e.now()

		err = e.accounts.UpdateAccount(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetAccount returns a copy of the account with the given id.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAccount(ctx, accountID)
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// The current password must verify. A notice is mailed to the account
// after the new hash is stored.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return err
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return e.internal("load account", err)
	}
	if account.PasswordHash == "" || !e.codec.VerifySecret(oldPassword, account.PasswordHash) {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, accountID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.codec.HashSecret(newPassword)
	if err != nil {
		return e.internal("hash password", err)
	}
	updated, err := e.mutateAccount(ctx, accountID, func(a *store.Account) error {
		a.PasswordHash = hash
		return nil
	})
	if err != nil {
		return e.internal("update password", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, accountID, nil, nil)
	e.notifyPasswordChanged(ctx, updated)
	return nil
}
