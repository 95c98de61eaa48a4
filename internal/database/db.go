package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/pkg/logger"
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	ConnectRetries int
}

// Open builds the gorm handle for cfg.Driver without touching the network;
// Connect is what waits for the server.
func Open(cfg Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger:               gormLogger(),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", normaliseDriver(cfg.Driver), err)
	}
	if normaliseDriver(cfg.Driver) == driverSQLite {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("database: enable sqlite foreign keys: %w", err)
		}
	}
	return db, nil
}

// Connect opens the database and pings it until it answers, retrying with
// capped exponential backoff. Each ping is bounded by cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 5
	}

	log := logger.WithModule("database")
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return sqlDB.PingContext(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("database not reachable, retrying", zap.Error(err), zap.Duration("backoff", wait))
	}
	if err := backoff.RetryNotify(ping, RetryPolicy(ctx, retries), notify); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// RetryPolicy is the capped exponential backoff used for startup connections.
func RetryPolicy(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// AutoMigrateAndSeed convenience helper used during application start-up.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
