package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/dramauth/store"
)

const maxTxRetries = 4

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("token redis unavailable")

// TokenStore keeps email tokens in Redis.
//
// Layout under prefix p:
//
//	p:t:<kind>:<token>  encoded record
//	p:e:<kind>:<email>  token currently live for the pair
//	p:exp               sorted set of "<kind>:<token>" scored by expiry
//
// Keys carry a Redis TTL of the token lifetime plus Retention so an
// expired token is still observable (and reported as expired) for a
// while before Redis evicts it.
type TokenStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ store.TokenStore = (*TokenStore)(nil)

// NewTokenStore returns a Redis token store. Empty prefix defaults to "drt".
func NewTokenStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *TokenStore {
	if prefix == "" {
		prefix = "drt"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &TokenStore{redis: redisClient, prefix: prefix, retention: retention, now: time.Now}
}

// WithClock makes key lifetimes follow now instead of the wall clock.
func (s *TokenStore) WithClock(now func() time.Time) *TokenStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *TokenStore) tokenKey(kind store.TokenKind, token string) string {
	return s.prefix + ":t:" + strconv.Itoa(int(kind)) + ":" + token
}

func (s *TokenStore) emailKey(kind store.TokenKind, email string) string {
	return s.prefix + ":e:" + strconv.Itoa(int(kind)) + ":" + email
}

func (s *TokenStore) expiryKey() string {
	return s.prefix + ":exp"
}

func member(kind store.TokenKind, token string) string {
	return strconv.Itoa(int(kind)) + ":" + token
}

func (s *TokenStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now()) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *TokenStore) SaveToken(ctx context.Context, record *store.TokenRecord) error {
	rec := *record
	rec.Email = store.NormalizeEmail(rec.Email)
	encoded, err := encodeTokenRecord(&rec)
	if err != nil {
		return err
	}

	emailKey := s.emailKey(rec.Kind, rec.Email)
	ttl := s.ttl(rec.ExpiresAt)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := tx.Get(ctx, emailKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if previous != "" && previous != rec.Token {
					pipe.Del(ctx, s.tokenKey(rec.Kind, previous))
					pipe.ZRem(ctx, s.expiryKey(), member(rec.Kind, previous))
				}
				pipe.Set(ctx, s.tokenKey(rec.Kind, rec.Token), encoded, ttl)
				pipe.Set(ctx, emailKey, rec.Token, ttl)
				pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
					Score:  float64(rec.ExpiresAt.Unix()),
					Member: member(rec.Kind, rec.Token),
				})
				return nil
			})
			return err
		}, emailKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: save contention", ErrRedisUnavailable)
}

func (s *TokenStore) GetToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(kind, token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeTokenRecord(data)
}

func (s *TokenStore) FindTokenByEmail(ctx context.Context, kind store.TokenKind, email string) (*store.TokenRecord, error) {
	token, err := s.redis.Get(ctx, s.emailKey(kind, store.NormalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.GetToken(ctx, kind, token)
}

func (s *TokenStore) TakeToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	key := s.tokenKey(kind, token)

	for i := 0; i < maxTxRetries; i++ {
		var taken *store.TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			emailKey := s.emailKey(kind, record.Email)
			indexed, err := tx.Get(ctx, emailKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, s.expiryKey(), member(kind, token))
				if indexed == token {
					pipe.Del(ctx, emailKey)
				}
				return nil
			})
			if err != nil {
				return err
			}
			taken = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, store.ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return taken, nil
	}

	// Every retry lost to a concurrent writer; the winner consumed it.
	return nil, store.ErrNotFound
}

func (s *TokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	members, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := 0
	for _, m := range members {
		kindPart, token, ok := strings.Cut(m, ":")
		if !ok {
			_ = s.redis.ZRem(ctx, s.expiryKey(), m).Err()
			continue
		}
		kind, err := strconv.Atoi(kindPart)
		if err != nil {
			_ = s.redis.ZRem(ctx, s.expiryKey(), m).Err()
			continue
		}

		record, err := s.GetToken(ctx, store.TokenKind(kind), token)
		if errors.Is(err, store.ErrNotFound) {
			// Already taken or evicted by Redis.
			_ = s.redis.ZRem(ctx, s.expiryKey(), m).Err()
			continue
		}
		if err != nil {
			return removed, err
		}
		if !record.Expired(now) {
			continue
		}
		if _, err := s.TakeToken(ctx, record.Kind, record.Token); err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
