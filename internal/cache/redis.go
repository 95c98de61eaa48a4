package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/logger"
)

// RedisConfig captures the connection parameters of the Redis backed store.
type RedisConfig struct {
	Address      string
	Username     string
	Password     string
	DB           int
	TLS          bool
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	PoolSize     int

	// ConnectRetries bounds the startup ping attempts.
	ConnectRetries int
}

const (
	defaultRedisDialTimeout = 5 * time.Second
	defaultRedisIOTimeout   = 3 * time.Second
	redisKeyPrefix          = "happycat:"
)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and pings it with capped exponential
// backoff so misconfiguration surfaces during startup.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultRedisDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultRedisIOTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultRedisIOTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 5
	}

	opts := &redis.Options{
		Addr:            cfg.Address,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		PoolSize:        cfg.PoolSize,
	}
	if cfg.TLS {
		host := cfg.Address
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	store := &RedisStore{rdb: rdb}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.ConnectRetries)), ctx)

	log := logger.WithModule("cache")
	err := backoff.RetryNotify(func() error {
		return store.Ping(ctx)
	}, policy, func(err error, wait time.Duration) {
		log.Warn("redis not reachable, retrying", zap.String("address", cfg.Address), zap.Error(err), zap.Duration("backoff", wait))
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Address, err)
	}
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Ping checks connectivity, used by health probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// IncrementWithTTL increments key and sets the expiry on first use. It
// returns the count and the remaining time-to-live.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	k := prefixed(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		if err := s.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// Set stores value with the given TTL; zero means no expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, prefixed(key), value, ttl).Err()
}

// Get returns the value for key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Delete removes keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = prefixed(k)
	}
	return s.rdb.Del(ctx, full...).Err()
}

func prefixed(key string) string {
	return redisKeyPrefix + key
}
