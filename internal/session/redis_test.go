package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := NewRedisStore(rdb, time.Hour)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s, mr
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	s, _ := testRedisStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", Credentials{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	creds, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if creds.AccessToken != "a1" || creds.RefreshToken != "r1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestRedisStore_MissingKeyYieldsZeroCredentials(t *testing.T) {
	s, _ := testRedisStore(t)
	creds, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if creds.AccessToken != "" || creds.RefreshToken != "" {
		t.Fatalf("expected zero credentials, got %+v", creds)
	}
}

func TestRedisStore_SetAccessTokenKeepsRefreshAndTTL(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", Credentials{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.SetAccessToken(ctx, "k", "a2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	creds, _ := s.Get(ctx, "k")
	if creds.AccessToken != "a2" || creds.RefreshToken != "r1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if mr.TTL("session:k") <= 0 {
		t.Fatalf("expected session ttl preserved")
	}
}

func TestRedisStore_SessionExpires(t *testing.T) {
	s, mr := testRedisStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "k", Credentials{RefreshToken: "r1"})
	mr.FastForward(2 * time.Hour)

	creds, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if creds.RefreshToken != "" {
		t.Fatalf("expected expired session to read as empty, got %+v", creds)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := testRedisStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "k", Credentials{RefreshToken: "r1"})
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	creds, _ := s.Get(ctx, "k")
	if creds.RefreshToken != "" {
		t.Fatalf("expected session gone, got %+v", creds)
	}
}
