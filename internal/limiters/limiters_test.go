package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestAttemptLimiterLocksOutAndResets(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, "dsf", AttemptConfig{MaxAttempts: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "a1"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := l.Check(ctx, "a1"); err != nil {
		t.Fatalf("Check before limit: %v", err)
	}
	if err := l.RecordFailure(ctx, "a1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third failure = %v, want ErrRateLimited", err)
	}
	if err := l.Check(ctx, "a1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check after limit = %v", err)
	}
	if err := l.Check(ctx, "a2"); err != nil {
		t.Fatalf("other subject affected: %v", err)
	}

	if ttl := mr.TTL("dsf:a1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := l.Reset(ctx, "a1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Check(ctx, "a1"); err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
}

func TestAttemptLimiterWindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, "dla", AttemptConfig{MaxAttempts: 1, Cooldown: time.Minute})

	_ = l.RecordFailure(ctx, "a@example.com")
	if err := l.Check(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected lockout, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, "a@example.com"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestLimitersNilSafe(t *testing.T) {
	ctx := context.Background()
	var a *AttemptLimiter
	var w *WindowLimiter
	if a.Check(ctx, "x") != nil || a.RecordFailure(ctx, "x") != nil || a.Reset(ctx, "x") != nil || w.Allow(ctx, "x") != nil {
		t.Fatal("nil limiters must be no-ops")
	}
}

func TestWindowLimiterBudget(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := NewWindowLimiter(rdb, "dms", 2, time.Minute)

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "reset:a@example.com"); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, "reset:a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third event = %v, want ErrRateLimited", err)
	}
	mr.FastForward(61 * time.Second)
	if err := l.Allow(ctx, "reset:a@example.com"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestLimiterUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	l := NewAttemptLimiter(rdb, "dsf", AttemptConfig{})
	mr.Close()

	if err := l.Check(ctx, "a1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Check with redis down = %v", err)
	}
}
