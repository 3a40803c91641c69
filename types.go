package dramauth

import (
	"context"
	"time"

	"github.com/MrEthical07/dramauth/internal/gate"
	"github.com/MrEthical07/dramauth/jwt"
	"github.com/MrEthical07/dramauth/store"
)

// Account is the persisted authentication record. See [store.Account].
type Account = store.Account

// Role is the authorization role carried in session claims.
type Role = store.Role

const (
	RoleUser  = store.RoleUser
	RoleAdmin = store.RoleAdmin
)

// SessionClaims is the parsed content of an access or refresh token.
type SessionClaims = jwt.SessionClaims

// LoginState is the position of a sign-in attempt in the state machine
// START → CREDENTIALS_CHECKED → {EMAIL_UNVERIFIED | NOT_REGISTERED |
// SECOND_FACTOR_REQUIRED | READY} → SESSION_ISSUED.
type LoginState uint8

const (
	StateStart LoginState = iota
	StateCredentialsChecked
	StateEmailUnverified
	StateNotRegistered
	StateSecondFactorRequired
	StateReady
	StateSessionIssued
)

func (s LoginState) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateCredentialsChecked:
		return "CREDENTIALS_CHECKED"
	case StateEmailUnverified:
		return "EMAIL_UNVERIFIED"
	case StateNotRegistered:
		return "NOT_REGISTERED"
	case StateSecondFactorRequired:
		return "SECOND_FACTOR_REQUIRED"
	case StateReady:
		return "READY"
	case StateSessionIssued:
		return "SESSION_ISSUED"
	default:
		return "UNKNOWN"
	}
}

// Session is an issued access/refresh token pair.
type Session struct {
	AccountID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is the outcome of Login. Session is set only when State is
// StateSessionIssued.
type LoginResult struct {
	State     LoginState
	AccountID string
	Session   *Session
}

// FactorKind selects the kind of second-factor proof.
type FactorKind = gate.FactorKind

const (
	FactorTOTP       = gate.FactorTOTP
	FactorBackupCode = gate.FactorBackupCode
)

// Factor is a submitted second-factor proof.
type Factor = gate.Factor

// TOTPFactor is shorthand for a TOTP Factor.
func TOTPFactor(code string) Factor {
	return Factor{Kind: FactorTOTP, Code: code}
}

// BackupCodeFactor is shorthand for a backup-code Factor.
func BackupCodeFactor(code string) Factor {
	return Factor{Kind: FactorBackupCode, Code: code}
}

// NotificationKind names the message a Notifier must deliver.
type NotificationKind string

const (
	NotifyRegistration            NotificationKind = "registration"
	NotifyEmailVerification       NotificationKind = "email-verification"
	NotifyPasswordReset           NotificationKind = "password-reset"
	NotifyEmailChangeVerification NotificationKind = "email-change-verification"
	NotifyPasswordChangedNotice   NotificationKind = "password-changed-notice"
)

// Notification is one outbound message. Token is empty for notices.
type Notification struct {
	Kind        NotificationKind
	Email       string
	Token       string
	DisplayName string
}

// Notifier delivers email. Send errors are logged by the engine and never
// surfaced to the caller of the triggering operation.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// InviteRequest describes an account created by an administrator. The
// invitee sets a password through the registration link.
type InviteRequest struct {
	Email string
	Name  string
	Role  Role
}

// RegistrationInfo is what a registration page shows before the invitee
// submits a password.
type RegistrationInfo struct {
	Email     string
	Name      string
	ExpiresAt time.Time
}

// FederatedIdentity is a profile asserted by an external identity provider.
type FederatedIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Image    string
}

// TOTPSetup is returned when enrollment starts. The secret is not stored
// until EnrollTwoFactor confirms a code generated from it.
type TOTPSetup struct {
	Secret string
	URL    string
}
