package stores

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/dramauth/store"
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

func tokenRecord(token, email string, expires time.Time) *store.TokenRecord {
	return &store.TokenRecord{
		ID:        "id-" + token,
		Kind:      store.TokenPasswordReset,
		Email:     email,
		Token:     token,
		ExpiresAt: expires,
	}
}

func TestTokenRecordCodecRoundTrip(t *testing.T) {
	in := &store.TokenRecord{
		ID:        "1",
		Kind:      store.TokenVerification,
		Email:     "new@example.com",
		AccountID: "acct-1",
		Token:     "tok",
		ExpiresAt: time.Unix(1700000000, 123),
	}
	data, err := encodeTokenRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeTokenRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.ExpiresAt.Equal(in.ExpiresAt) || out.ID != in.ID || out.AccountID != in.AccountID ||
		out.Token != in.Token || out.Email != in.Email || out.Kind != in.Kind {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}

	data[0] = 9
	if _, err := decodeTokenRecord(data); !errors.Is(err, errRecordVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestTokenStoreSaveReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewTokenStore(rdb, "", time.Hour)
	exp := time.Now().Add(time.Hour)

	if err := s.SaveToken(ctx, tokenRecord("t1", "A@example.com", exp)); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := s.SaveToken(ctx, tokenRecord("t2", "a@example.com", exp)); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if _, err := s.GetToken(ctx, store.TokenPasswordReset, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("superseded token = %v, want ErrNotFound", err)
	}
	live, err := s.FindTokenByEmail(ctx, store.TokenPasswordReset, "a@example.com")
	if err != nil || live.Token != "t2" || live.Email != "a@example.com" {
		t.Fatalf("FindTokenByEmail = %+v, %v", live, err)
	}
}

func TestTokenStoreTakeOnce(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewTokenStore(rdb, "", time.Hour)
	_ = s.SaveToken(ctx, tokenRecord("t1", "a@example.com", time.Now().Add(time.Hour)))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TakeToken(ctx, store.TokenPasswordReset, "t1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
	if _, err := s.FindTokenByEmail(ctx, store.TokenPasswordReset, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("email index should be cleared, got %v", err)
	}
}

func TestTokenStoreExpiredStillObservable(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewTokenStore(rdb, "", time.Hour)
	past := time.Now().Add(-time.Minute)
	_ = s.SaveToken(ctx, tokenRecord("old", "a@example.com", past))

	rec, err := s.TakeToken(ctx, store.TokenPasswordReset, "old")
	if err != nil {
		t.Fatalf("TakeToken: %v", err)
	}
	if !rec.Expired(time.Now()) {
		t.Fatal("expected record to report expiry")
	}
}

func TestTokenStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewTokenStore(rdb, "", time.Hour)
	now := time.Now()

	_ = s.SaveToken(ctx, tokenRecord("old", "a@example.com", now.Add(-time.Minute)))
	_ = s.SaveToken(ctx, tokenRecord("new", "b@example.com", now.Add(time.Hour)))

	n, err := s.DeleteExpiredTokens(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredTokens: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if _, err := s.GetToken(ctx, store.TokenPasswordReset, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired token still present: %v", err)
	}
	if _, err := s.GetToken(ctx, store.TokenPasswordReset, "new"); err != nil {
		t.Fatalf("live token removed: %v", err)
	}
}

func TestTokenStoreRedisTTLIncludesRetention(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewTokenStore(rdb, "drt", 24*time.Hour)
	_ = s.SaveToken(ctx, tokenRecord("t1", "a@example.com", time.Now().Add(time.Hour)))

	ttl := mr.TTL("drt:t:3:t1")
	if ttl < 24*time.Hour || ttl > 25*time.Hour+time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestConfirmationStoreReplaceAndTake(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	s := NewConfirmationStore(rdb, "")
	exp := time.Now().Add(5 * time.Minute)

	_ = s.ReplaceConfirmation(ctx, &store.TwoFactorConfirmation{ID: "c1", AccountID: "a1", ExpiresAt: exp})
	_ = s.ReplaceConfirmation(ctx, &store.TwoFactorConfirmation{ID: "c2", AccountID: "a1", ExpiresAt: exp})

	got, err := s.TakeConfirmation(ctx, "a1")
	if err != nil {
		t.Fatalf("TakeConfirmation: %v", err)
	}
	if got.ID != "c2" || got.AccountID != "a1" {
		t.Fatalf("unexpected confirmation %+v", got)
	}
	if _, err := s.TakeConfirmation(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second take = %v, want ErrNotFound", err)
	}

	_ = s.ReplaceConfirmation(ctx, &store.TwoFactorConfirmation{ID: "c3", AccountID: "a1", ExpiresAt: exp})
	if err := s.DeleteConfirmation(ctx, "a1"); err != nil {
		t.Fatalf("DeleteConfirmation: %v", err)
	}
	if _, err := s.TakeConfirmation(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("take after delete = %v", err)
	}
}

func TestConfirmationTTLFollowsInjectedClock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	now := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	s := NewConfirmationStore(rdb, "").WithClock(func() time.Time { return now })

	err := s.ReplaceConfirmation(ctx, &store.TwoFactorConfirmation{ID: "c1", AccountID: "a1", ExpiresAt: now.Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("ReplaceConfirmation: %v", err)
	}
	if ttl := mr.TTL("dtc:a1"); ttl != 5*time.Minute {
		t.Fatalf("ttl = %v, want 5m", ttl)
	}

	mr.FastForward(5*time.Minute + time.Second)
	if _, err := s.TakeConfirmation(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("take after ttl = %v, want ErrNotFound", err)
	}
}

func TestTokenTTLFollowsInjectedClock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	now := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	s := NewTokenStore(rdb, "drt", time.Hour).WithClock(func() time.Time { return now })

	if err := s.SaveToken(ctx, tokenRecord("tok", "a@example.com", now.Add(30*time.Minute))); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	key := "drt:t:" + strconv.Itoa(int(store.TokenPasswordReset)) + ":tok"
	if ttl := mr.TTL(key); ttl != 90*time.Minute {
		t.Fatalf("ttl = %v, want 1h30m", ttl)
	}
}
