package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store backed by go-cache. It suits single
// node deployments and tests.
type MemoryStore struct {
	c  *gocache.Cache
	mu sync.Mutex // serialises IncrementWithTTL
}

// NewMemoryStore returns a store whose expired entries are swept every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exp, found := s.c.GetWithExpiration(key)
	if !found {
		s.c.Set(key, int64(1), window)
		return 1, window, nil
	}
	count, err := s.c.IncrementInt64(key, 1)
	if err != nil {
		return 0, 0, err
	}
	remaining := window
	if !exp.IsZero() {
		remaining = time.Until(exp)
	}
	return count, remaining, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.c.Set(key, cp, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Delete(k)
	}
	return nil
}

// Len reports the number of stored items, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}
