package dramauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/dramauth/internal/ledger"
	"github.com/MrEthical07/dramauth/internal/limiters"
	"github.com/MrEthical07/dramauth/store"
	"go.uber.org/zap"
)

// notify sends n within the notifier timeout. Delivery failures are
// logged, counted and audited, never returned.
func (e *Engine) notify(ctx context.Context, accountID string, n Notification) {
	if e.notifier == nil {
		e.logger.Debug("notification dropped, no notifier configured", zap.String("kind", string(n.Kind)))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Notify.Timeout)
	defer cancel()

	if err := e.notifier.Send(sendCtx, n); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Warn("notification failed",
			zap.String("kind", string(n.Kind)),
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		e.emitAudit(ctx, auditEventNotificationFailed, false, accountID, fmt.Errorf("%w: %v", ErrInternal, err), func() map[string]string {
			return map[string]string{"kind": string(n.Kind)}
		})
	}
}

// allowMail spends one unit of the per-address mail budget. A throttle
// backend failure lets the mail through.
func (e *Engine) allowMail(ctx context.Context, kind NotificationKind, email, accountID string) bool {
	if e.mailLimiter == nil {
		return true
	}
	err := e.mailLimiter.Allow(ctx, string(kind)+":"+email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, limiters.ErrRateLimited):
		e.emitRateLimit(ctx, "mail:"+string(kind), accountID)
		return false
	default:
		e.logger.Warn("mail throttle unavailable", zap.Error(err))
		return true
	}
}

// issueAndNotify mints a token and mails it. The token is not minted
// when the address is over its mail budget, so the previous link stays
// valid.
func (e *Engine) issueAndNotify(ctx context.Context, kind store.TokenKind, nk NotificationKind, email, accountID, bindAccountID, displayName string) error {
	if !e.allowMail(ctx, nk, email, accountID) {
		return nil
	}
	record, err := e.ledger.Issue(ctx, kind, email, bindAccountID)
	if err != nil {
		return e.internal("issue "+kind.String()+" token", err)
	}
	e.notify(ctx, accountID, Notification{
		Kind:        nk,
		Email:       record.Email,
		Token:       record.Token,
		DisplayName: displayName,
	})
	return nil
}

// resendVerification runs the EMAIL_UNVERIFIED side effect of Login. A
// store failure is logged; Login still reports ErrEmailNotVerified.
func (e *Engine) resendVerification(ctx context.Context, account *store.Account) {
	if err := e.issueAndNotify(ctx, store.TokenVerification, NotifyEmailVerification, account.Email, account.ID, "", account.Name); err != nil {
		return
	}
	e.metricInc(MetricEmailVerificationSent)
}

// resendRegistration re-sends the outstanding registration link, if any.
// No new token is minted.
func (e *Engine) resendRegistration(ctx context.Context, account *store.Account) {
	record, err := e.ledger.FindByEmail(ctx, store.TokenRegistration, account.Email)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) && !errors.Is(err, ledger.ErrExpired) {
			e.logger.Error("lookup registration token", zap.String("account_id", account.ID), zap.Error(err))
		}
		return
	}
	if !e.allowMail(ctx, NotifyRegistration, account.Email, account.ID) {
		return
	}
	e.notify(ctx, account.ID, Notification{
		Kind:        NotifyRegistration,
		Email:       account.Email,
		Token:       record.Token,
		DisplayName: account.Name,
	})
}

func (e *Engine) notifyPasswordChanged(ctx context.Context, account *store.Account) {
	e.notify(ctx, account.ID, Notification{
		Kind:        NotifyPasswordChangedNotice,
		Email:       account.Email,
		DisplayName: account.Name,
	})
}
