package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "session:"
	fieldAccess  = "access_token"
	fieldRefresh = "refresh_token"
)

// RedisStore keeps one hash per session. All gateway instances read and
// write the same hashes, which is what lets a polling waiter observe an
// access token refreshed by another request (or another instance).
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session: ttl must be > 0")
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Credentials, error) {
	vals, err := s.rdb.HGetAll(ctx, keyPrefix+key).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("session: get %q: %w", key, err)
	}
	// HGETALL on a missing key returns an empty map, matching the
	// "missing means zero Credentials" contract.
	return Credentials{
		AccessToken:  vals[fieldAccess],
		RefreshToken: vals[fieldRefresh],
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, creds Credentials) error {
	rkey := keyPrefix + key
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, rkey)
	pipe.HSet(ctx, rkey, fieldAccess, creds.AccessToken, fieldRefresh, creds.RefreshToken)
	pipe.Expire(ctx, rkey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: put %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetAccessToken(ctx context.Context, key, accessToken string) error {
	// HSET on an existing hash keeps its TTL; the session does not get
	// longer just because an access token was refreshed.
	if err := s.rdb.HSet(ctx, keyPrefix+key, fieldAccess, accessToken).Err(); err != nil {
		return fmt.Errorf("session: set access token %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("session: delete %q: %w", key, err)
	}
	return nil
}
