package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested row or record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write would violate email uniqueness
	// or when an account update carries a stale version.
	ErrConflict = errors.New("store: conflict")
)

// Role is the authorization role stamped onto sessions.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is the authoritative record of a user's authentication state.
//
// PasswordHash is empty until registration completes. OTPSecret is set
// if and only if OTPEnabled is true. OTPLastCounter is the highest TOTP
// time step accepted so far; zero means none. Version is the optimistic
// concurrency stamp checked by UpdateAccount.
type Account struct {
	ID              string
	Email           string
	Name            string
	Image           string
	PasswordHash    string
	Registered      bool
	EmailVerifiedAt *time.Time
	Role            Role
	OTPEnabled      bool
	OTPSecret       string
	OTPLastCounter  int64
	Version         uint32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmailVerified reports whether the account's current address has been proven.
func (a *Account) EmailVerified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		out.EmailVerifiedAt = &t
	}
	return &out
}

// TokenKind distinguishes the single-use email tokens.
type TokenKind uint8

const (
	TokenRegistration TokenKind = iota + 1
	TokenVerification
	TokenPasswordReset
)

func (k TokenKind) String() string {
	switch k {
	case TokenRegistration:
		return "registration"
	case TokenVerification:
		return "verification"
	case TokenPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k >= TokenRegistration && k <= TokenPasswordReset
}

// TokenRecord is one issued email token.
//
// AccountID is only set on verification tokens minted for an email
// change; it names the account whose address is being replaced and Email
// then holds the new address.
type TokenRecord struct {
	ID        string
	Kind      TokenKind
	Email     string
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the record is no longer usable at now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// BackupCode is one stored single-use recovery code. Hash is a salted
// slow hash of the canonical code; the plaintext is never stored.
type BackupCode struct {
	ID        string
	AccountID string
	Hash      string
}

// TwoFactorConfirmation proves an account passed the second factor and
// is consumed by the sign-in finalizer.
type TwoFactorConfirmation struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
}

// AccountRepository persists accounts.
type AccountRepository interface {
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	// CreateAccount returns ErrConflict when the email is taken.
	CreateAccount(ctx context.Context, account *Account) error
	// UpdateAccount writes account if the stored Version equals
	// account.Version and bumps Version on success. It returns ErrConflict
	// on a stale version or when the new email belongs to another account.
	UpdateAccount(ctx context.Context, account *Account) error
}

// TokenStore persists email tokens.
type TokenStore interface {
	// SaveToken stores record and removes every other token of the same
	// kind and email, so at most one is live per pair.
	SaveToken(ctx context.Context, record *TokenRecord) error
	GetToken(ctx context.Context, kind TokenKind, token string) (*TokenRecord, error)
	FindTokenByEmail(ctx context.Context, kind TokenKind, email string) (*TokenRecord, error)
	// TakeToken atomically removes and returns the record. Exactly one of
	// several concurrent callers observes the record.
	TakeToken(ctx context.Context, kind TokenKind, token string) (*TokenRecord, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// BackupCodeStore persists backup-code rows.
type BackupCodeStore interface {
	// ReplaceBackupCodes swaps the account's whole set for codes while the
	// stored account Version still equals version, and bumps Version in
	// the same step. It returns ErrConflict on a stale version and
	// ErrNotFound when the account does not exist.
	ReplaceBackupCodes(ctx context.Context, accountID string, version uint32, codes []BackupCode) error
	ListBackupCodes(ctx context.Context, accountID string) ([]BackupCode, error)
	// DeleteBackupCode reports whether this call removed the row.
	DeleteBackupCode(ctx context.Context, accountID, codeID string) (bool, error)
	DeleteBackupCodes(ctx context.Context, accountID string) error
}

// ConfirmationStore persists second-factor confirmations.
type ConfirmationStore interface {
	// ReplaceConfirmation stores c as the account's only confirmation.
	ReplaceConfirmation(ctx context.Context, c *TwoFactorConfirmation) error
	// TakeConfirmation atomically removes and returns the confirmation.
	TakeConfirmation(ctx context.Context, accountID string) (*TwoFactorConfirmation, error)
	DeleteConfirmation(ctx context.Context, accountID string) error
}

// AccountStore is the full durable capability the engine needs.
type AccountStore interface {
	AccountRepository
	TokenStore
	BackupCodeStore
	ConfirmationStore
}

// NormalizeEmail lower-cases and trims an address before lookups and writes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
