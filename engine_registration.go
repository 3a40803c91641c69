package dramauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/dramauth/internal"
	"github.com/MrEthical07/dramauth/store"
)

// InviteAccount describes the inviteaccount operation and its observable behavior.
//
// A new unregistered account without a password is created and a
// registration link is mailed. Inviting an address whose account has
// not yet registered re-issues the link; inviting a registered address
// returns ErrEmailAlreadyInUse.
func (e *Engine) InviteAccount(ctx context.Context, req InviteRequest) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := store.NormalizeEmail(req.Email)
	if !plausibleEmail(email) {
		return nil, ErrInvalidInput
	}
	role := req.Role
	if role == "" {
		role = store.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidInput
	}

	now := e.now()
	account := &store.Account{
		ID:        internal.NewID(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.accounts.CreateAccount(ctx, account); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, e.internal("create account", err)
		}
		existing, lookupErr := e.accounts.GetAccountByEmail(ctx, email)
		if lookupErr != nil {
			return nil, e.internal("load account", lookupErr)
		}
		if existing.Registered {
			return nil, ErrEmailAlreadyInUse
		}
		account = existing
	}

	record, err := e.ledger.Issue(ctx, store.TokenRegistration, email, "")
	if err != nil {
		return nil, e.internal("issue registration token", err)
	}
	e.notify(ctx, account.ID, Notification{
		Kind:        NotifyRegistration,
		Email:       email,
		Token:       record.Token,
		DisplayName: account.Name,
	})

	e.metricInc(MetricRegistrationInvited)
	e.emitAudit(ctx, auditEventRegistrationInvited, true, account.ID, nil, func() map[string]string {
		return map[string]string{"role": string(account.Role)}
	})
	return account.Clone(), nil
}

// PeekRegistration reports what a registration link is for without
// consuming it.
func (e *Engine) PeekRegistration(ctx context.Context, token string) (*RegistrationInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	record, err := e.ledger.Peek(ctx, store.TokenRegistration, token)
	if err != nil {
		return nil, e.mapLedgerErr(err)
	}
	account, err := e.registrationAccount(ctx, record)
	if err != nil {
		return nil, err
	}
	return &RegistrationInfo{
		Email:     account.Email,
		Name:      account.Name,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// CompleteRegistration describes the completeregistration operation and its observable behavior.
//
// The link is consumed even when the account can no longer be
// registered. On success the account has a password, is registered and
// its email is verified. A password rejected by policy leaves the link
// usable.
func (e *Engine) CompleteRegistration(ctx context.Context, token, password, name string) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.checkPasswordPolicy(password); err != nil {
		return nil, err
	}
	hash, err := e.codec.HashSecret(password)
	if err != nil {
		return nil, e.internal("hash password", err)
	}

	record, err := e.ledger.Consume(ctx, store.TokenRegistration, token)
	if err != nil {
		mapped := e.mapLedgerErr(err)
		e.emitAudit(ctx, auditEventRegistrationCompleted, false, "", mapped, nil)
		return nil, mapped
	}
	account, err := e.registrationAccount(ctx, record)
	if err != nil {
		e.emitAudit(ctx, auditEventRegistrationCompleted, false, "", err, nil)
		return nil, err
	}

	name = strings.TrimSpace(name)
	updated, err := e.mutateAccount(ctx, account.ID, func(a *store.Account) error {
		if a.Registered || a.Email != record.Email {
			return ErrTokenNotFound
		}
		a.PasswordHash = hash
		a.Registered = true
		if a.EmailVerifiedAt == nil {
			verifiedAt := e.now()
			a.EmailVerifiedAt = &verifiedAt
		}
		if name != "" {
			a.Name = name
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, err
		}
		return nil, e.internal("complete registration", err)
	}

	e.metricInc(MetricRegistrationCompleted)
	e.emitAudit(ctx, auditEventRegistrationCompleted, true, updated.ID, nil, nil)
	return updated.Clone(), nil
}

// registrationAccount resolves the account a registration record is for.
// A record whose account vanished or already registered is treated as
// unknown.
func (e *Engine) registrationAccount(ctx context.Context, record *store.TokenRecord) (*store.Account, error) {
	account, err := e.accounts.GetAccountByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, e.internal("load account", err)
	}
	if account.Registered {
		return nil, ErrTokenNotFound
	}
	return account, nil
}

func plausibleEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
