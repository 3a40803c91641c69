package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 5 * time.Minute
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("limiter redis unavailable")
)

// AttemptConfig holds thresholds for an AttemptLimiter.
type AttemptConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// AttemptLimiter counts failures per subject in a fixed window. Once
// MaxAttempts failures are recorded the subject is locked out until the
// window expires or Reset is called.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	cooldown    time.Duration
}

// NewAttemptLimiter creates a limiter keyed under prefix. Zero-value
// fields in cfg fall back to 5 attempts / 5 minutes.
func NewAttemptLimiter(redisClient redis.UniversalClient, prefix string, cfg AttemptConfig) *AttemptLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCooldown
	}
	return &AttemptLimiter{redis: redisClient, prefix: prefix, maxAttempts: int64(max), cooldown: cd}
}

func (l *AttemptLimiter) key(subject string) string {
	return l.prefix + ":" + subject
}

// Check returns ErrRateLimited when subject is locked out.
func (l *AttemptLimiter) Check(ctx context.Context, subject string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure increments the subject's counter, starting the window on
// the first failure.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, subject string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(subject)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(subject), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the subject's counter after a success.
func (l *AttemptLimiter) Reset(ctx context.Context, subject string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
