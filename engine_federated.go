package dramauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/dramauth/internal"
	"github.com/MrEthical07/dramauth/store"
)

// FederatedSignIn describes the federatedsignin operation and its observable behavior.
//
// The identity provider is trusted: no password, email verification or
// second factor is checked. An existing account with the same email is
// linked and marked verified; otherwise a verified, registered USER
// account is created.
func (e *Engine) FederatedSignIn(ctx context.Context, id FederatedIdentity) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := store.NormalizeEmail(id.Email)
	if !plausibleEmail(email) || strings.TrimSpace(id.Provider) == "" {
		return nil, ErrInvalidInput
	}
	metadata := func() map[string]string {
		return map[string]string{"provider": id.Provider}
	}

	account, created, err := e.linkFederated(ctx, email, id)
	if err != nil {
		e.emitAudit(ctx, auditEventFederatedSignIn, false, "", err, metadata)
		return nil, err
	}

	session, err := e.issueSession(account)
	if err != nil {
		return nil, err
	}
	if created {
		e.metricInc(MetricFederatedAccountCreated)
	}
	e.metricInc(MetricFederatedSignIn)
	e.emitAudit(ctx, auditEventFederatedSignIn, true, account.ID, nil, metadata)
	return session, nil
}

func (e *Engine) linkFederated(ctx context.Context, email string, id FederatedIdentity) (*store.Account, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := e.accounts.GetAccountByEmail(ctx, email)
		switch {
		case err == nil:
			linked, err := e.mutateAccount(ctx, existing.ID, func(a *store.Account) error {
				if a.EmailVerifiedAt == nil {
					verifiedAt := e.now()
					a.EmailVerifiedAt = &verifiedAt
				}
				// Linking completes a pending invitation, which retires its
				// registration link.
				a.Registered = true
				if a.Name == "" {
					a.Name = strings.TrimSpace(id.Name)
				}
				if a.Image == "" {
					a.Image = strings.TrimSpace(id.Image)
				}
				return nil
			})
			if err != nil {
				return nil, false, e.internal("link federated account", err)
			}
			return linked, false, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, e.internal("load account", err)
		}

		now := e.now()
		account := &store.Account{
			ID:              internal.NewID(),
			Email:           email,
			Name:            strings.TrimSpace(id.Name),
			Image:           strings.TrimSpace(id.Image),
			Registered:      true,
			EmailVerifiedAt: &now,
			Role:            store.RoleUser,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = e.accounts.CreateAccount(ctx, account)
		if err == nil {
			return account, true, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, false, e.internal("create federated account", err)
		}
		// Another request created the account first; link to it.
	}
	return nil, false, e.internal("link federated account", store.ErrConflict)
}
