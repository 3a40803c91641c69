package dramauth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email, a wrong
	// password, or an account that has no password yet. The three are
	// indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified is returned by Login after a fresh verification
	// link has been sent to the address.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrNotRegistered is returned by Login for an invited account whose
	// registration has not been completed.
	ErrNotRegistered = errors.New("account registration incomplete")
	// ErrTokenNotFound is returned for an unknown or already consumed email token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned for an email token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidSecondFactorCode is returned for a rejected TOTP code.
	ErrInvalidSecondFactorCode = errors.New("invalid second factor code")
	// ErrInvalidBackupCode is returned for a rejected or already used backup code.
	ErrInvalidBackupCode = errors.New("invalid backup code")
	// ErrSecondFactorRequired is returned by FinalizeSignIn when a 2FA
	// account has no live confirmation.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrEmailAlreadyInUse is returned when an email change targets an
	// address owned by another account.
	ErrEmailAlreadyInUse = errors.New("email already in use")
	// ErrInternal wraps storage, notifier and signing failures.
	ErrInternal = errors.New("internal error")

	ErrPasswordPolicy          = errors.New("password policy violation")
	ErrSessionInvalid          = errors.New("session invalid")
	ErrSecondFactorRateLimited = errors.New("second factor attempts rate limited")
	ErrLoginRateLimited        = errors.New("login rate limited")
	ErrEngineNotReady          = errors.New("engine not initialized")
	ErrInvalidInput            = errors.New("invalid input")
)

// ErrorKind is a stable discriminant for mapping engine errors onto a
// transport (HTTP status, form error key).
type ErrorKind string

const (
	KindNone                    ErrorKind = ""
	KindInvalidCredentials      ErrorKind = "invalid_credentials"
	KindEmailNotVerified        ErrorKind = "email_not_verified"
	KindNotRegistered           ErrorKind = "not_registered"
	KindTokenNotFound           ErrorKind = "token_not_found"
	KindTokenExpired            ErrorKind = "token_expired"
	KindInvalidSecondFactorCode ErrorKind = "invalid_second_factor_code"
	KindInvalidBackupCode       ErrorKind = "invalid_backup_code"
	KindSecondFactorRequired    ErrorKind = "second_factor_required"
	KindEmailAlreadyInUse       ErrorKind = "email_already_in_use"
	KindPasswordPolicy          ErrorKind = "password_policy"
	KindSessionInvalid          ErrorKind = "session_invalid"
	KindSecondFactorRateLimited ErrorKind = "second_factor_rate_limited"
	KindLoginRateLimited        ErrorKind = "login_rate_limited"
	KindInvalidInput            ErrorKind = "invalid_input"
	KindInternal                ErrorKind = "internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrEmailNotVerified, KindEmailNotVerified},
	{ErrNotRegistered, KindNotRegistered},
	{ErrTokenNotFound, KindTokenNotFound},
	{ErrTokenExpired, KindTokenExpired},
	{ErrInvalidSecondFactorCode, KindInvalidSecondFactorCode},
	{ErrInvalidBackupCode, KindInvalidBackupCode},
	{ErrSecondFactorRequired, KindSecondFactorRequired},
	{ErrEmailAlreadyInUse, KindEmailAlreadyInUse},
	{ErrPasswordPolicy, KindPasswordPolicy},
	{ErrSessionInvalid, KindSessionInvalid},
	{ErrSecondFactorRateLimited, KindSecondFactorRateLimited},
	{ErrLoginRateLimited, KindLoginRateLimited},
	{ErrInvalidInput, KindInvalidInput},
	{ErrInternal, KindInternal},
}

// KindOf classifies err. Errors outside the engine's taxonomy are
// reported as KindInternal; nil is KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
