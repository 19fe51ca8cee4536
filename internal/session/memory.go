package session

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-process store for tests and single-node
// dev runs. It does not expire entries.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credentials)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds[key], nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key] = creds
	return nil
}

func (s *MemoryStore) SetAccessToken(ctx context.Context, key, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.creds[key]
	c.AccessToken = accessToken
	s.creds[key] = c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, key)
	return nil
}
