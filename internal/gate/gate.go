package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/dramauth/internal"
	"github.com/MrEthical07/dramauth/store"
)

var (
	ErrInvalidTOTP       = errors.New("invalid second factor code")
	ErrInvalidBackupCode = errors.New("invalid backup code")
	ErrNotEnrolled       = errors.New("second factor not enrolled")
	ErrRateLimited       = errors.New("second factor rate limited")
	ErrUnavailable       = errors.New("second factor store unavailable")
)

// FactorKind selects how a Factor is checked.
type FactorKind uint8

const (
	FactorTOTP FactorKind = iota + 1
	FactorBackupCode
)

// Factor is a second-factor proof submitted by the user.
type Factor struct {
	Kind FactorKind
	Code string
}

// Challenge is the gate's answer to "does this account need a second factor".
type Challenge uint8

const (
	NotRequired Challenge = iota
	Required
)

// TOTPVerifier checks a one-time code against a base32 secret and
// returns the time step it matched.
type TOTPVerifier interface {
	VerifyTOTPCounter(secret, candidate string, t time.Time) (int64, bool)
}

// CounterStore reads and version-checked writes accounts so the last
// accepted TOTP step can be recorded.
type CounterStore interface {
	GetAccountByID(ctx context.Context, id string) (*store.Account, error)
	UpdateAccount(ctx context.Context, account *store.Account) error
}

const maxCounterAttempts = 3

// BackupRedeemer redeems a single backup code.
type BackupRedeemer interface {
	Redeem(ctx context.Context, accountID, candidate string) (bool, error)
}

// Limiter throttles failed attempts per account. Implementations return
// an error wrapping their own rate-limited sentinel; IsLimited classifies it.
type Limiter interface {
	Check(ctx context.Context, subject string) error
	RecordFailure(ctx context.Context, subject string) error
	Reset(ctx context.Context, subject string) error
}

// Config holds the confirmation lifetime. With ReplayProtection set a
// TOTP code is accepted only if its step is later than the last accepted
// one for the account.
type Config struct {
	ConfirmationTTL  time.Duration
	ReplayProtection bool
}

// Gate verifies second factors and records short-lived confirmations
// that the sign-in finalizer consumes.
type Gate struct {
	totp          TOTPVerifier
	backup        BackupRedeemer
	confirmations store.ConfirmationStore
	counters      CounterStore
	limiter       Limiter
	isLimited     func(error) bool
	config        Config
	now           func() time.Time
}

// New wires a gate. limiter may be nil, and so may counters unless
// cfg.ReplayProtection is set.
func New(
	totp TOTPVerifier,
	backup BackupRedeemer,
	confirmations store.ConfirmationStore,
	counters CounterStore,
	limiter Limiter,
	isLimited func(error) bool,
	cfg Config,
	now func() time.Time,
) (*Gate, error) {
	if totp == nil || backup == nil || confirmations == nil {
		return nil, errors.New("gate: totp verifier, backup redeemer and confirmation store are required")
	}
	if cfg.ReplayProtection && counters == nil {
		return nil, errors.New("gate: replay protection requires a counter store")
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if isLimited == nil {
		isLimited = func(error) bool { return false }
	}
	return &Gate{
		totp:          totp,
		backup:        backup,
		confirmations: confirmations,
		counters:      counters,
		limiter:       limiter,
		isLimited:     isLimited,
		config:        cfg,
		now:           now,
	}, nil
}

// Challenge reports whether account must pass a second factor.
func (g *Gate) Challenge(account *store.Account) Challenge {
	if account != nil && account.OTPEnabled {
		return Required
	}
	return NotRequired
}

// Check validates factor for account without recording a confirmation.
// It is used where a second factor authorizes a settings change. With
// replay protection an accepted TOTP code advances the stored counter,
// and account's OTPLastCounter and Version are refreshed in place.
func (g *Gate) Check(ctx context.Context, account *store.Account, factor Factor) error {
	if g.Challenge(account) != Required || account.OTPSecret == "" {
		return ErrNotEnrolled
	}
	if err := g.checkLimiter(ctx, account.ID); err != nil {
		return err
	}

	var (
		ok       bool
		rejected error
	)
	switch factor.Kind {
	case FactorTOTP:
		counter, matched := g.totp.VerifyTOTPCounter(account.OTPSecret, factor.Code, g.now())
		if matched && g.config.ReplayProtection {
			fresh, err := g.advanceCounter(ctx, account, counter)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			matched = fresh
		}
		ok = matched
		rejected = ErrInvalidTOTP
	case FactorBackupCode:
		redeemed, err := g.backup.Redeem(ctx, account.ID, factor.Code)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ok = redeemed
		rejected = ErrInvalidBackupCode
	default:
		return ErrInvalidTOTP
	}

	if !ok {
		if g.limiter != nil {
			if err := g.limiter.RecordFailure(ctx, account.ID); err != nil && !g.isLimited(err) {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		return rejected
	}
	if g.limiter != nil {
		if err := g.limiter.Reset(ctx, account.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Verify validates factor and, on success, replaces any existing
// confirmation for the account with a fresh one. A rejected factor
// leaves confirmation state untouched.
func (g *Gate) Verify(ctx context.Context, account *store.Account, factor Factor) error {
	if err := g.Check(ctx, account, factor); err != nil {
		return err
	}
	c := &store.TwoFactorConfirmation{
		ID:        internal.NewID(),
		AccountID: account.ID,
		ExpiresAt: g.now().Add(g.config.ConfirmationTTL),
	}
	if err := g.confirmations.ReplaceConfirmation(ctx, c); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume takes the account's confirmation. It reports false when none
// exists or the stored one has expired; either way the confirmation is gone.
func (g *Gate) Consume(ctx context.Context, accountID string) (bool, error) {
	c, err := g.confirmations.TakeConfirmation(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return g.now().Before(c.ExpiresAt), nil
}

// Clear removes any pending confirmation for the account.
func (g *Gate) Clear(ctx context.Context, accountID string) error {
	if err := g.confirmations.DeleteConfirmation(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// advanceCounter records counter as the account's last accepted step. It
// reports false when an equal or later step was already accepted or the
// secret changed underneath, so each code is honored at most once.
func (g *Gate) advanceCounter(ctx context.Context, account *store.Account, counter int64) (bool, error) {
	for attempt := 0; attempt < maxCounterAttempts; attempt++ {
		current, err := g.counters.GetAccountByID(ctx, account.ID)
		if err != nil {
			return false, err
		}
		if !current.OTPEnabled || current.OTPSecret != account.OTPSecret || counter <= current.OTPLastCounter {
			return false, nil
		}
		next := current.Clone()
		next.OTPLastCounter = counter
		next.UpdatedAt = g.now()

		err = g.counters.UpdateAccount(ctx, next)
		if err == nil {
			account.OTPLastCounter = counter
			account.Version = next.Version
			return true, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return false, err
		}
	}
	return false, store.ErrConflict
}

func (g *Gate) checkLimiter(ctx context.Context, accountID string) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Check(ctx, accountID); err != nil {
		if g.isLimited(err) {
			return ErrRateLimited
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
