package dramauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/dramauth/jwt"
	"github.com/MrEthical07/dramauth/store"
)

// ValidateSession parses an access token. Any signature, expiry or type
// problem is reported as ErrSessionInvalid.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*SessionClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims, err := e.jwt.Parse(accessToken, jwt.TypeAccess)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// RefreshSession describes the refreshsession operation and its observable behavior.
//
// The account is re-read on every refresh and its role, email, name,
// image and second-factor flag are stamped into the new token pair, so
// administrative changes reach live sessions without a new sign-in.
// Accounts that no longer exist or are no longer registered cannot
// refresh.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.jwt.Parse(refreshToken, jwt.TypeRefresh)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, auditEventSessionRejected, false, "", ErrSessionInvalid, nil)
		return nil, ErrSessionInvalid
	}

	account, err := e.accounts.GetAccountByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricSessionRejected)
			e.emitAudit(ctx, auditEventSessionRejected, false, claims.AccountID(), ErrSessionInvalid, nil)
			return nil, ErrSessionInvalid
		}
		return nil, e.internal("load account", err)
	}
	if !account.Registered {
		e.metricInc(MetricSessionRejected)
		e.emitAudit(ctx, auditEventSessionRejected, false, account.ID, ErrSessionInvalid, nil)
		return nil, ErrSessionInvalid
	}

	session, err := e.issueSession(account)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, account.ID, nil, func() map[string]string {
		if claims.Role == string(account.Role) && claims.Email == account.Email {
			return nil
		}
		return map[string]string{"claims_changed": "true"}
	})
	return session, nil
}
