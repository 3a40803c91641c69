package dramauth

import (
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/dramauth/internal/audit"
	"github.com/MrEthical07/dramauth/internal/gate"
	"github.com/MrEthical07/dramauth/internal/ledger"
	"github.com/MrEthical07/dramauth/internal/limiters"
	"github.com/MrEthical07/dramauth/internal/stores"
	"github.com/MrEthical07/dramauth/internal/vault"
	"github.com/MrEthical07/dramauth/jwt"
	"github.com/MrEthical07/dramauth/password"
	"github.com/MrEthical07/dramauth/secret"
	"github.com/MrEthical07/dramauth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it once during initialization
// and call Build exactly once.
type Builder struct {
	config Config
	store  store.AccountStore
	redis  redis.UniversalClient

	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New returns a builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the durable AccountStore. It is required.
func (b *Builder) WithStore(s store.AccountStore) *Builder {
	b.store = s
	return b
}

// WithRedis enables the Redis-backed login, second-factor and mail
// throttles, and the Redis token and confirmation stores when
// Config.Store.RedisEphemeral is set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNotifier sets the outbound mail capability. Without one, messages
// are logged at debug level and dropped.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination of audit events. Audit must also be
// enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every expiry decision the engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if cfg.Store.RedisEphemeral && b.redis == nil {
		return nil, errors.New("Store RedisEphemeral requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- STORES --------
	timed := newTimedStore(b.store, cfg.Store.CallTimeout)
	if cfg.Store.RedisEphemeral {
		timed.tokens = stores.NewTokenStore(b.redis, cfg.Tokens.RedisPrefix, cfg.Tokens.RedisRetention).WithClock(now)
		timed.confirmations = stores.NewConfirmationStore(b.redis, cfg.SecondFactor.ConfirmationRedisPrefix).WithClock(now)
	}

	// -------- SECRETS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	codec, err := secret.NewCodec(ph, secret.TOTPConfig{
		Issuer:    cfg.TOTP.Issuer,
		Digits:    cfg.TOTP.Digits,
		Period:    cfg.TOTP.Period,
		Skew:      cfg.TOTP.Skew,
		Algorithm: cfg.TOTP.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := codec.HashSecret("dramauth-timing-equalizer")
	if err != nil {
		return nil, err
	}

	// -------- LEDGER / VAULT / GATE --------
	lg, err := ledger.New(timed, ledger.Config{
		RegistrationTTL:  cfg.Tokens.RegistrationTTL,
		VerificationTTL:  cfg.Tokens.VerificationTTL,
		PasswordResetTTL: cfg.Tokens.PasswordResetTTL,
		TokenBytes:       cfg.Tokens.TokenBytes,
	}, now)
	if err != nil {
		return nil, err
	}

	vlt, err := vault.New(timed, codec, cfg.BackupCodes.Count, cfg.BackupCodes.Length)
	if err != nil {
		return nil, err
	}

	var factorLimiter gate.Limiter
	if b.redis != nil {
		factorLimiter = limiters.NewAttemptLimiter(b.redis, cfg.SecondFactor.RedisPrefix, limiters.AttemptConfig{
			MaxAttempts: cfg.SecondFactor.MaxAttempts,
			Cooldown:    cfg.SecondFactor.Cooldown,
		})
	}
	gt, err := gate.New(codec, vlt, timed, timed, factorLimiter, isLimiterRejection, gate.Config{
		ConfirmationTTL:  cfg.SecondFactor.ConfirmationTTL,
		ReplayProtection: cfg.TOTP.EnforceReplayProtection,
	}, now)
	if err != nil {
		return nil, err
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	engine := &Engine{
		config:    cfg,
		accounts:  timed,
		ledger:    lg,
		vault:     vlt,
		gate:      gt,
		codec:     codec,
		jwt:       jm,
		notifier:  b.notifier,
		audit:     internalaudit.NewDispatcher(internalaudit.Config(cfg.Audit), b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
		dummyHash: dummyHash,
	}

	if b.redis != nil {
		if cfg.Security.EnableLoginThrottle {
			engine.loginLimiter = limiters.NewAttemptLimiter(b.redis, cfg.Security.LoginRedisPrefix, limiters.AttemptConfig{
				MaxAttempts: cfg.Security.MaxLoginAttempts,
				Cooldown:    cfg.Security.LoginCooldownDuration,
			})
		}
		if cfg.Security.EnableMailThrottle {
			engine.mailLimiter = limiters.NewWindowLimiter(b.redis, cfg.Security.MailRedisPrefix, cfg.Security.MaxMailsPerWindow, cfg.Security.MailWindow)
		}
	}

	b.built = true

	return engine, nil
}

func isLimiterRejection(err error) bool {
	return errors.Is(err, limiters.ErrRateLimited)
}
