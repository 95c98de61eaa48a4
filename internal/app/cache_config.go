package app

import (
	"strings"

	"github.com/charlesng35/happycat/internal/cache"
)

// Cache drivers.
const (
	CacheDriverMemory   = "memory"
	CacheDriverDatabase = "database"
	CacheDriverRedis    = "redis"
)

// DriverName normalises the configured driver, defaulting to memory.
func (c CacheConfig) DriverName() string {
	switch d := strings.ToLower(strings.TrimSpace(c.Driver)); d {
	case CacheDriverDatabase, CacheDriverRedis:
		return d
	default:
		return CacheDriverMemory
	}
}

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:        strings.TrimSpace(c.Redis.Address),
		Username:       strings.TrimSpace(c.Redis.Username),
		Password:       c.Redis.Password,
		DB:             c.Redis.DB,
		TLS:            c.Redis.TLS,
		DialTimeout:    c.Redis.DialTimeout,
		ReadTimeout:    c.Redis.ReadTimeout,
		WriteTimeout:   c.Redis.WriteTimeout,
		MaxRetries:     c.Redis.MaxRetries,
		ConnectRetries: c.Redis.ConnectRetries,
	}
}

// AsideOptions converts the cache-aside policy into options for cache.NewAside.
func (c CacheConfig) AsideOptions() []cache.AsideOption {
	return []cache.AsideOption{
		cache.WithTTL(c.TTL),
		cache.WithInvalidation(c.InvalidateOnWrite),
	}
}
