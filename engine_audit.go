package dramauth

import (
	"context"

	internalaudit "github.com/MrEthical07/dramauth/internal/audit"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginEmailUnverified     = "login_email_unverified"
	auditEventLoginNotRegistered       = "login_not_registered"
	auditEventSecondFactorRequired     = "second_factor_required"
	auditEventSecondFactorSuccess      = "second_factor_success"
	auditEventSecondFactorFailure      = "second_factor_failure"
	auditEventBackupCodeUsed           = "backup_code_used"
	auditEventBackupCodesGenerated     = "backup_codes_generated"
	auditEventSignInFinalized          = "sign_in_finalized"
	auditEventSessionRefreshed         = "session_refreshed"
	auditEventSessionRejected          = "session_rejected"
	auditEventRegistrationInvited      = "registration_invited"
	auditEventRegistrationCompleted    = "registration_completed"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventEmailChangeRequest       = "email_change_request"
	auditEventEmailChangeConfirm       = "email_change_confirm"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPasswordChange           = "password_change"
	auditEventTwoFactorEnabled         = "two_factor_enabled"
	auditEventTwoFactorDisabled        = "two_factor_disabled"
	auditEventFederatedSignIn          = "federated_sign_in"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
	auditEventNotificationFailed       = "notification_failed"
)

// AuditErrorCode is the error string recorded on failed audit events. It
// carries the ErrorKind of the failure and never the raw error text.
type AuditErrorCode string

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, accountID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, accountID, nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	return AuditErrorCode(KindOf(err))
}
