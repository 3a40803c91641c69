package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/dramauth/internal"
	"github.com/MrEthical07/dramauth/store"
)

var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
	// ErrUnavailable wraps store transport failures.
	ErrUnavailable = errors.New("token store unavailable")
)

// Config holds per-kind lifetimes and token entropy.
type Config struct {
	RegistrationTTL  time.Duration
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	TokenBytes       int
}

// DefaultConfig returns 72h for registration links and 1h for
// verification and reset links.
func DefaultConfig() Config {
	return Config{
		RegistrationTTL:  72 * time.Hour,
		VerificationTTL:  time.Hour,
		PasswordResetTTL: time.Hour,
		TokenBytes:       internal.DefaultTokenBytes,
	}
}

// Ledger issues and redeems single-use email tokens.
type Ledger struct {
	store  store.TokenStore
	config Config
	now    func() time.Time
}

// New returns a ledger over s. A nil now uses time.Now.
func New(s store.TokenStore, cfg Config, now func() time.Time) (*Ledger, error) {
	if s == nil {
		return nil, errors.New("ledger: token store is required")
	}
	if cfg.RegistrationTTL <= 0 || cfg.VerificationTTL <= 0 || cfg.PasswordResetTTL <= 0 {
		return nil, errors.New("ledger: token ttl must be > 0")
	}
	if cfg.TokenBytes < 16 {
		return nil, errors.New("ledger: token bytes must be >= 16")
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: s, config: cfg, now: now}, nil
}

// TTL returns the lifetime of kind.
func (l *Ledger) TTL(kind store.TokenKind) time.Duration {
	switch kind {
	case store.TokenRegistration:
		return l.config.RegistrationTTL
	case store.TokenPasswordReset:
		return l.config.PasswordResetTTL
	default:
		return l.config.VerificationTTL
	}
}

// Issue mints a fresh token for (kind, email). Any live token of the same
// pair is invalidated by the store. accountID is only set for email-change
// verification.
func (l *Ledger) Issue(ctx context.Context, kind store.TokenKind, email, accountID string) (*store.TokenRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("ledger: invalid token kind %d", kind)
	}

	token, err := internal.NewOpaqueToken(l.config.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record := &store.TokenRecord{
		ID:        internal.NewID(),
		Kind:      kind,
		Email:     store.NormalizeEmail(email),
		AccountID: accountID,
		Token:     token,
		ExpiresAt: l.now().Add(l.TTL(kind)),
	}
	if err := l.store.SaveToken(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return record, nil
}

// Peek looks a token up without consuming it. Expired tokens are
// reported as ErrExpired and left for the sweep.
func (l *Ledger) Peek(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	record, err := l.store.GetToken(ctx, kind, token)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if record.Expired(l.now()) {
		return nil, ErrExpired
	}
	return record, nil
}

// FindByEmail returns the live token outstanding for (kind, email).
func (l *Ledger) FindByEmail(ctx context.Context, kind store.TokenKind, email string) (*store.TokenRecord, error) {
	record, err := l.store.FindTokenByEmail(ctx, kind, store.NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if record.Expired(l.now()) {
		return nil, ErrExpired
	}
	return record, nil
}

// Consume atomically removes the token and returns it. A token found
// past its expiry is still removed and reported as ErrExpired. Among
// concurrent consumers of the same token exactly one succeeds.
func (l *Ledger) Consume(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	record, err := l.store.TakeToken(ctx, kind, token)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if record.Expired(l.now()) {
		return nil, ErrExpired
	}
	return record, nil
}

// Sweep removes every token whose expiry has passed.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	n, err := l.store.DeleteExpiredTokens(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
