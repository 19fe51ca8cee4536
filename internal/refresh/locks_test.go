package refresh

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryLockTable_AcquireReleaseCycle(t *testing.T) {
	lt := NewMemoryLockTable()
	ctx := context.Background()

	ok, err := lt.TryAcquire(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to win, ok=%v err=%v", ok, err)
	}
	ok, err = lt.TryAcquire(ctx, "k")
	if err != nil || ok {
		t.Fatalf("expected second acquire to lose, ok=%v err=%v", ok, err)
	}

	held, _ := lt.Held(ctx, "k")
	if !held {
		t.Fatalf("expected key held")
	}

	if err := lt.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	held, _ = lt.Held(ctx, "k")
	if held {
		t.Fatalf("expected key released")
	}

	// Releasing an unheld key is a no-op.
	if err := lt.Release(ctx, "k"); err != nil {
		t.Fatalf("release of unheld key: %v", err)
	}
}

func TestMemoryLockTable_KeysAreIndependent(t *testing.T) {
	lt := NewMemoryLockTable()
	ctx := context.Background()

	if ok, _ := lt.TryAcquire(ctx, "a"); !ok {
		t.Fatalf("expected acquire of a")
	}
	if ok, _ := lt.TryAcquire(ctx, "b"); !ok {
		t.Fatalf("expected acquire of b despite a being held")
	}
}

func TestMemoryLockTable_SingleWinnerUnderContention(t *testing.T) {
	lt := NewMemoryLockTable()
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := lt.TryAcquire(ctx, "k"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}
