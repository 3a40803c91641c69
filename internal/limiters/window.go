package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowLimiter allows at most Max events per key in each Window.
type WindowLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

// NewWindowLimiter creates a fixed-window limiter keyed under prefix.
func NewWindowLimiter(redisClient redis.UniversalClient, prefix string, max int, window time.Duration) *WindowLimiter {
	if max <= 0 {
		max = 3
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &WindowLimiter{redis: redisClient, prefix: prefix, max: int64(max), window: window}
}

// Allow records one event for key and returns ErrRateLimited once the
// window's budget is spent.
func (l *WindowLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	full := l.prefix + ":" + key
	count, err := l.redis.Incr(ctx, full).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Fixed-window semantics: TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, full, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > l.max {
		return ErrRateLimited
	}
	return nil
}
