package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/happycat/internal/models"
)

var errNoDatabase = errors.New("cache: database store not initialised")

// "key" is reserved in MySQL, so every predicate goes through clause.Column
// to get dialect quoting.
var keyColumn = clause.Column{Name: "key"}

// DatabaseStore keeps cache entries in the primary SQL database. It is the
// fallback driver when no redis is configured and the memory store would not
// be shared between replicas.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

type DatabaseOption func(*DatabaseStore)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) DatabaseOption {
	return func(s *DatabaseStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewDatabaseStore(db *gorm.DB, opts ...DatabaseOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	s := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DatabaseStore) session(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, errNoDatabase
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx), nil
}

// IncrementWithTTL bumps the counter at key. An expired or missing counter
// restarts at one with a fresh window.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	db, err := s.session(ctx)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now().UTC()
	var entry models.CacheEntry
	err = db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(clause.Eq{Column: keyColumn, Value: key}).
			Take(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.CacheEntry{Key: key}
		case err != nil:
			return err
		}

		if !entry.Live(now) {
			entry.Counter = 0
			entry.ExpiresAt = nil
		}
		if entry.ExpiresAt == nil {
			expiry := now.Add(window)
			entry.ExpiresAt = &expiry
		}
		entry.Counter++
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return entry.Counter, entry.ExpiresAt.Sub(now), nil
}

// Set upserts value at key. A non-positive ttl stores it without expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	db, err := s.session(ctx)
	if err != nil {
		return err
	}

	entry := models.CacheEntry{Key: key, Value: value}
	if ttl > 0 {
		expiry := s.now().UTC().Add(ttl)
		entry.ExpiresAt = &expiry
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{keyColumn},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

// Get returns the value at key. Expired rows are treated as misses and removed.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.session(ctx)
	if err != nil {
		return nil, false, err
	}

	var entry models.CacheEntry
	err = db.Where(clause.Eq{Column: keyColumn, Value: key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !entry.Live(s.now().UTC()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	db, err := s.session(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	return db.Where(clause.IN{Column: keyColumn, Values: values}).Delete(&models.CacheEntry{}).Error
}

// PurgeExpired removes every entry past its expiry and reports how many went.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	db, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}
