package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "refresh_lock:"

// releaseScript deletes the lock only if this instance still owns it, so a
// lock that expired and was re-acquired elsewhere is never clobbered.
var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = owner token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLockTable extends refresh deduplication across gateway instances.
//
// Safety properties:
// - Atomic acquire via SET NX.
// - TTL prevents leaked locks on process crash.
// - Owner-checked release via Lua.
type RedisLockTable struct {
	rdb *redis.Client
	ttl time.Duration

	// owners tracks the random value written by this instance's acquires;
	// Release must not delete a lock held by someone else.
	mu     sync.Mutex
	owners map[string]string
}

func NewRedisLockTable(rdb *redis.Client, ttl time.Duration) (*RedisLockTable, error) {
	if rdb == nil {
		return nil, fmt.Errorf("refresh: redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh: lock ttl must be > 0")
	}
	return &RedisLockTable{rdb: rdb, ttl: ttl, owners: make(map[string]string)}, nil
}

func (t *RedisLockTable) TryAcquire(ctx context.Context, key string) (bool, error) {
	owner := uuid.NewString()
	ok, err := t.rdb.SetNX(ctx, lockPrefix+key, owner, t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("refresh: acquire %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	t.mu.Lock()
	t.owners[key] = owner
	t.mu.Unlock()
	return true, nil
}

func (t *RedisLockTable) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	owner, ok := t.owners[key]
	delete(t.owners, key)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := releaseScript.Run(ctx, t.rdb, []string{lockPrefix + key}, owner).Result(); err != nil {
		return fmt.Errorf("refresh: release %q: %w", key, err)
	}
	return nil
}

func (t *RedisLockTable) Held(ctx context.Context, key string) (bool, error) {
	n, err := t.rdb.Exists(ctx, lockPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("refresh: held %q: %w", key, err)
	}
	return n > 0, nil
}
