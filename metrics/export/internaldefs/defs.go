package internaldefs

import (
	"github.com/MrEthical07/dramauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   dramauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   dramauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = "dramauth_audit_dropped_total"

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: dramauth.MetricLoginSuccess, Name: "dramauth_login_success_total", Help: "Sign-ins that ended with an issued session."},
	{ID: dramauth.MetricLoginFailure, Name: "dramauth_login_failure_total", Help: "Sign-ins rejected for invalid credentials."},
	{ID: dramauth.MetricLoginEmailUnverified, Name: "dramauth_login_email_unverified_total", Help: "Sign-ins stopped at EMAIL_UNVERIFIED."},
	{ID: dramauth.MetricLoginNotRegistered, Name: "dramauth_login_not_registered_total", Help: "Sign-ins stopped at NOT_REGISTERED."},
	{ID: dramauth.MetricLoginRateLimited, Name: "dramauth_login_rate_limited_total", Help: "Sign-ins refused by the login throttle."},
	{ID: dramauth.MetricSecondFactorRequired, Name: "dramauth_second_factor_required_total", Help: "Sign-ins that required a second factor."},
	{ID: dramauth.MetricSecondFactorSuccess, Name: "dramauth_second_factor_success_total", Help: "Accepted second-factor proofs."},
	{ID: dramauth.MetricSecondFactorFailure, Name: "dramauth_second_factor_failure_total", Help: "Rejected second-factor proofs."},
	{ID: dramauth.MetricSecondFactorRateLimited, Name: "dramauth_second_factor_rate_limited_total", Help: "Second-factor attempts refused by the throttle."},
	{ID: dramauth.MetricBackupCodeUsed, Name: "dramauth_backup_code_used_total", Help: "Redeemed backup codes."},
	{ID: dramauth.MetricBackupCodeFailed, Name: "dramauth_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: dramauth.MetricBackupCodeRegenerated, Name: "dramauth_backup_code_regenerated_total", Help: "Backup-code sets generated."},
	{ID: dramauth.MetricSignInFinalized, Name: "dramauth_sign_in_finalized_total", Help: "Sessions issued by the sign-in finalizer."},
	{ID: dramauth.MetricSignInMissingConfirmation, Name: "dramauth_sign_in_missing_confirmation_total", Help: "Finalizations refused for a missing confirmation."},
	{ID: dramauth.MetricSessionCreated, Name: "dramauth_session_created_total", Help: "Token pairs signed."},
	{ID: dramauth.MetricSessionRefreshed, Name: "dramauth_session_refreshed_total", Help: "Successful session refreshes."},
	{ID: dramauth.MetricSessionRejected, Name: "dramauth_session_rejected_total", Help: "Rejected access or refresh tokens."},
	{ID: dramauth.MetricRegistrationInvited, Name: "dramauth_registration_invited_total", Help: "Registration links issued by invitation."},
	{ID: dramauth.MetricRegistrationCompleted, Name: "dramauth_registration_completed_total", Help: "Completed registrations."},
	{ID: dramauth.MetricEmailVerificationSent, Name: "dramauth_email_verification_sent_total", Help: "Verification links issued."},
	{ID: dramauth.MetricEmailVerificationSuccess, Name: "dramauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: dramauth.MetricEmailVerificationFailure, Name: "dramauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: dramauth.MetricEmailChangeRequested, Name: "dramauth_email_change_requested_total", Help: "Email change links issued."},
	{ID: dramauth.MetricEmailChangeConfirmed, Name: "dramauth_email_change_confirmed_total", Help: "Applied email changes."},
	{ID: dramauth.MetricEmailChangeConflict, Name: "dramauth_email_change_conflict_total", Help: "Email changes refused because the address is taken."},
	{ID: dramauth.MetricPasswordResetRequest, Name: "dramauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: dramauth.MetricPasswordResetConfirmSuccess, Name: "dramauth_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: dramauth.MetricPasswordResetConfirmFailure, Name: "dramauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: dramauth.MetricPasswordChangeSuccess, Name: "dramauth_password_change_success_total", Help: "Successful password changes."},
	{ID: dramauth.MetricPasswordChangeFailure, Name: "dramauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: dramauth.MetricTwoFactorEnabled, Name: "dramauth_two_factor_enabled_total", Help: "TOTP enrollments."},
	{ID: dramauth.MetricTwoFactorDisabled, Name: "dramauth_two_factor_disabled_total", Help: "TOTP removals."},
	{ID: dramauth.MetricFederatedSignIn, Name: "dramauth_federated_sign_in_total", Help: "Federated sign-ins."},
	{ID: dramauth.MetricFederatedAccountCreated, Name: "dramauth_federated_account_created_total", Help: "Accounts created by federated sign-in."},
	{ID: dramauth.MetricNotificationFailure, Name: "dramauth_notification_failure_total", Help: "Notifier deliveries that failed."},
	{ID: dramauth.MetricTokensSwept, Name: "dramauth_tokens_swept_total", Help: "Expired email tokens deleted by the sweep."},
	{ID: dramauth.MetricRateLimitHit, Name: "dramauth_rate_limit_hit_total", Help: "Throttle checks that denied a request."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: dramauth.MetricLoginLatency, Name: "dramauth_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramUpperBounds are the finite bucket limits in seconds. The
// engine's eighth bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histogram support.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding
// with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
