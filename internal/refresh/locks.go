package refresh

import (
	"context"
	"sync"
)

// LockTable marks session keys with a refresh believed to be in flight.
//
// Invariant: a key is present if and only if some caller is between
// TryAcquire and Release for it. The coordinator releases on every exit
// path, so entries never outlive the refresh attempt that created them.
type LockTable interface {
	// TryAcquire atomically checks-and-marks key. False means another
	// caller already holds it.
	TryAcquire(ctx context.Context, key string) (bool, error)

	// Release unmarks key. Releasing a key that is not held is a no-op.
	Release(ctx context.Context, key string) error

	// Held reports whether key is currently marked.
	Held(ctx context.Context, key string) (bool, error)
}

// MemoryLockTable is the single-process lock table: a mutex-guarded set.
// The mutex makes check-and-mark a single atomic step; a read-then-write
// sequence would let two requests both observe idle and both refresh.
type MemoryLockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLockTable() *MemoryLockTable {
	return &MemoryLockTable{held: make(map[string]struct{})}
}

func (t *MemoryLockTable) TryAcquire(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; ok {
		return false, nil
	}
	t.held[key] = struct{}{}
	return true, nil
}

func (t *MemoryLockTable) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
	return nil
}

func (t *MemoryLockTable) Held(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[key]
	return ok, nil
}
