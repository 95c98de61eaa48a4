package cache

import (
	"context"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

const (
	// DefaultTTL bounds how stale a cached read may be.
	DefaultTTL = 300 * time.Second

	generationTTL = 24 * time.Hour
)

// Aside serves reads cache-first and populates the store on a miss. A nil
// Aside or nil store disables caching and every read goes to the loader.
//
// With invalidation enabled each collection carries a generation counter
// that is embedded in its keys; Bump moves the counter so earlier entries
// are no longer addressed. Without it entries only expire by TTL.
type Aside struct {
	store      Store
	ttl        time.Duration
	invalidate bool
	log        *zap.Logger
}

// AsideOption customises an Aside.
type AsideOption func(*Aside)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) AsideOption {
	return func(a *Aside) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithInvalidation toggles generation based invalidation on write.
func WithInvalidation(enabled bool) AsideOption {
	return func(a *Aside) {
		a.invalidate = enabled
	}
}

// NewAside builds an Aside on store.
func NewAside(store Store, opts ...AsideOption) *Aside {
	a := &Aside{
		store: store,
		ttl:   DefaultTTL,
		log:   logger.WithModule("cache"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL returns the configured entry lifetime.
func (a *Aside) TTL() time.Duration {
	if a == nil {
		return 0
	}
	return a.ttl
}

func (a *Aside) enabled() bool {
	return a != nil && a.store != nil
}

// Bump advances the generation of each collection. Errors are logged and
// returned so post-commit hooks can count them.
func (a *Aside) Bump(ctx context.Context, collections ...string) error {
	if !a.enabled() || !a.invalidate {
		return nil
	}
	gen := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	var firstErr error
	for _, c := range collections {
		if err := a.store.Set(ctx, generationKey(c), gen, generationTTL); err != nil {
			a.log.Warn("bump cache generation", zap.String("collection", c), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Invalidate schedules a generation bump for collections once tx commits.
// Rolled back transactions leave the cache untouched.
func (a *Aside) Invalidate(tx *database.Tx, collections ...string) {
	if tx == nil || !a.enabled() || !a.invalidate || len(collections) == 0 {
		return
	}
	tx.AfterCommit(func(ctx context.Context) error {
		return a.Bump(ctx, collections...)
	})
}

// versioned appends the collection generation to key. ok is false when the
// generation cannot be read, in which case the caller must bypass the cache.
func (a *Aside) versioned(ctx context.Context, collection, key string) (string, bool) {
	if !a.invalidate {
		return key, true
	}
	raw, found, err := a.store.Get(ctx, generationKey(collection))
	if err != nil {
		a.fail(collection, "read generation", err)
		return "", false
	}
	gen := "0"
	if found && len(raw) > 0 {
		gen = string(raw)
	}
	return key + ":gen=" + gen, true
}

func (a *Aside) fail(collection, op string, err error) {
	metrics.CacheRequests.WithLabelValues(collection, "error").Inc()
	a.log.Warn("cache unavailable, reading through",
		zap.String("collection", collection),
		zap.String("op", op),
		zap.Error(err),
	)
}

// lookup decodes a cached value into dst. Decode failures count as a miss.
func (a *Aside) lookup(ctx context.Context, collection, key string, dst any) bool {
	raw, found, err := a.store.Get(ctx, key)
	if err != nil {
		a.fail(collection, "get", err)
		return false
	}
	if !found {
		metrics.CacheRequests.WithLabelValues(collection, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		a.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		metrics.CacheRequests.WithLabelValues(collection, "miss").Inc()
		return false
	}
	metrics.CacheRequests.WithLabelValues(collection, "hit").Inc()
	return true
}

func (a *Aside) populate(ctx context.Context, collection, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		a.log.Warn("encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := a.store.Set(ctx, key, raw, a.ttl); err != nil {
		a.fail(collection, "set", err)
	}
}

// PageLoader returns one page of records plus the total matching count.
type PageLoader[T any] func(ctx context.Context) ([]T, int64, error)

// CachedPage serves a paginated list through the cache. q must already be
// normalised. Loader errors are returned untouched and nothing is cached.
func CachedPage[T any](ctx context.Context, a *Aside, collection, op string, filters []Filter, q Query, load PageLoader[T]) (Page[T], error) {
	if !a.enabled() {
		return loadPage(ctx, q, load)
	}

	key, ok := a.versioned(ctx, collection, Key(collection, op, filters, q))
	if !ok {
		return loadPage(ctx, q, load)
	}

	var cached Page[T]
	if a.lookup(ctx, collection, key, &cached) {
		return cached, nil
	}

	page, err := loadPage(ctx, q, load)
	if err != nil {
		return page, err
	}
	a.populate(ctx, collection, key, page)
	return page, nil
}

func loadPage[T any](ctx context.Context, q Query, load PageLoader[T]) (Page[T], error) {
	data, total, err := load(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	return NewPage(data, q, total), nil
}

// CachedItem serves a single record read through the cache.
func CachedItem[T any](ctx context.Context, a *Aside, collection, id string, load func(ctx context.Context) (T, error)) (T, error) {
	if !a.enabled() {
		return load(ctx)
	}

	key, ok := a.versioned(ctx, collection, ItemKey(collection, id))
	if !ok {
		return load(ctx)
	}

	var cached T
	if a.lookup(ctx, collection, key, &cached) {
		return cached, nil
	}

	item, err := load(ctx)
	if err != nil {
		return item, err
	}
	a.populate(ctx, collection, key, item)
	return item, nil
}
