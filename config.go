package dramauth

import (
	"errors"
	"time"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Tokens       TokenConfig
	TOTP         TOTPConfig
	SecondFactor SecondFactorConfig
	BackupCodes  BackupCodeConfig
	Security     SecurityConfig
	Store        StoreConfig
	Notify       NotifyConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters and the length policy
// applied to new passwords.
type PasswordConfig struct {
	Memory            uint32
	Time              uint32
	Parallelism       uint8
	SaltLength        uint32
	KeyLength         uint32
	MinPasswordLength int
	MaxPasswordBytes  int
	UpgradeOnLogin    bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the lifetimes of emailed single-use tokens.
type TokenConfig struct {
	RegistrationTTL  time.Duration
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	TokenBytes       int
	// RedisPrefix and RedisRetention apply when tokens are kept in Redis.
	RedisPrefix    string
	RedisRetention time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls one-time code generation and acceptance.
// EnforceReplayProtection rejects a code whose time step is not later
// than the last step accepted for the account.
type TOTPConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Skew                    int
	Algorithm               string
	EnforceReplayProtection bool
}

/*
====================================
SECOND FACTOR CONFIG
====================================
*/

// SecondFactorConfig controls confirmations and attempt throttling.
// Throttling is only active when the engine has a Redis client.
type SecondFactorConfig struct {
	ConfirmationTTL         time.Duration
	MaxAttempts             int
	Cooldown                time.Duration
	RedisPrefix             string
	ConfirmationRedisPrefix string
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

type BackupCodeConfig struct {
	Count  int
	Length int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling and outbound mail budgets.
// Both require a Redis client.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	LoginRedisPrefix      string

	EnableMailThrottle bool
	MaxMailsPerWindow  int
	MailWindow         time.Duration
	MailRedisPrefix    string
}

/*
====================================
STORE / NOTIFY CONFIG
====================================
*/

// StoreConfig bounds every call into the AccountStore. With
// RedisEphemeral set and a Redis client configured, email tokens and
// second-factor confirmations live in Redis instead of the AccountStore.
type StoreConfig struct {
	CallTimeout    time.Duration
	RedisEphemeral bool
}

// NotifyConfig bounds every Notifier.Send call.
type NotifyConfig struct {
	Timeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT keys must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "dramauth",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:            64 * 1024,
			Time:              3,
			Parallelism:       2,
			SaltLength:        16,
			KeyLength:         32,
			MinPasswordLength: 8,
			MaxPasswordBytes:  1024,
			UpgradeOnLogin:    true,
		},
		Tokens: TokenConfig{
			RegistrationTTL:  72 * time.Hour,
			VerificationTTL:  time.Hour,
			PasswordResetTTL: time.Hour,
			TokenBytes:       32,
			RedisPrefix:      "drt",
			RedisRetention:   24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:                  "dramauth",
			Digits:                  6,
			Period:                  30,
			Skew:                    2,
			Algorithm:               "SHA1",
			EnforceReplayProtection: true,
		},
		SecondFactor: SecondFactorConfig{
			ConfirmationTTL: 5 * time.Minute,
			MaxAttempts:     5,
			Cooldown:        5 * time.Minute,
			RedisPrefix:     "dsf",

			ConfirmationRedisPrefix: "dtc",
		},
		BackupCodes: BackupCodeConfig{
			Count:  10,
			Length: 10,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			MaxLoginAttempts:      10,
			LoginCooldownDuration: 15 * time.Minute,
			LoginRedisPrefix:      "dla",
			EnableMailThrottle:    true,
			MaxMailsPerWindow:     5,
			MailWindow:            15 * time.Minute,
			MailRedisPrefix:       "dms",
		},
		Store: StoreConfig{
			CallTimeout: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field in c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordLength < 1 {
		return errors.New("Password MinPasswordLength must be >= 1")
	}
	if c.Password.MaxPasswordBytes < c.Password.MinPasswordLength {
		return errors.New("Password MaxPasswordBytes must be >= MinPasswordLength")
	}

	// Tokens
	if c.Tokens.RegistrationTTL <= 0 || c.Tokens.VerificationTTL <= 0 || c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens TTLs must be > 0")
	}
	if c.Tokens.TokenBytes < 16 {
		return errors.New("Tokens TokenBytes must be >= 16")
	}
	if c.Tokens.RedisRetention < 0 {
		return errors.New("Tokens RedisRetention must be >= 0")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be in [0,10]")
	}

	// Second factor
	if c.SecondFactor.ConfirmationTTL <= 0 {
		return errors.New("SecondFactor ConfirmationTTL must be > 0")
	}
	if c.SecondFactor.MaxAttempts <= 0 || c.SecondFactor.Cooldown <= 0 {
		return errors.New("SecondFactor MaxAttempts and Cooldown must be > 0")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be > 0")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > 32 {
		return errors.New("BackupCodes Length must be in [8,32]")
	}

	// Security
	if c.Security.EnableLoginThrottle && (c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldownDuration <= 0) {
		return errors.New("Security login throttle requires MaxLoginAttempts and LoginCooldownDuration > 0")
	}
	if c.Security.EnableMailThrottle && (c.Security.MaxMailsPerWindow <= 0 || c.Security.MailWindow <= 0) {
		return errors.New("Security mail throttle requires MaxMailsPerWindow and MailWindow > 0")
	}

	// Timeouts
	if c.Store.CallTimeout <= 0 {
		return errors.New("Store CallTimeout must be > 0")
	}
	if c.Notify.Timeout <= 0 {
		return errors.New("Notify Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
