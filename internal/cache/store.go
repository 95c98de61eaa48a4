package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the memory, database and redis
// drivers. Rate limiting uses the counter; cache-aside reads use the rest.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DatabaseStore)(nil)
	_ Store = (*RedisStore)(nil)
)
