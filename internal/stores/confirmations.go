package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/dramauth/store"
)

// ConfirmationStore keeps one second-factor confirmation per account under
// a single key, so a replace is a plain SET and a take is GETDEL.
type ConfirmationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.ConfirmationStore = (*ConfirmationStore)(nil)

// NewConfirmationStore returns a Redis confirmation store. Empty prefix
// defaults to "dtc".
func NewConfirmationStore(redisClient redis.UniversalClient, prefix string) *ConfirmationStore {
	if prefix == "" {
		prefix = "dtc"
	}
	return &ConfirmationStore{redis: redisClient, prefix: prefix, now: time.Now}
}

// WithClock makes key lifetimes follow now instead of the wall clock.
func (s *ConfirmationStore) WithClock(now func() time.Time) *ConfirmationStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *ConfirmationStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *ConfirmationStore) ReplaceConfirmation(ctx context.Context, c *store.TwoFactorConfirmation) error {
	encoded, err := encodeConfirmation(c)
	if err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, s.key(c.AccountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *ConfirmationStore) TakeConfirmation(ctx context.Context, accountID string) (*store.TwoFactorConfirmation, error) {
	data, err := s.redis.GetDel(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeConfirmation(accountID, data)
}

func (s *ConfirmationStore) DeleteConfirmation(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
