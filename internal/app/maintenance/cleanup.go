package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/logger"
)

const (
	defaultSchedule       = "@hourly"
	defaultTokenRetention = 30 * 24 * time.Hour
)

// TokenPurger removes revoked bearer token records.
type TokenPurger interface {
	PurgeRevoked(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachePurger removes expired cache rows.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SubscriptionExpirer ends subscriptions whose period is over.
type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner runs the periodic housekeeping jobs on a cron schedule. Each
// dependency left nil disables its job.
type Cleaner struct {
	db        *gorm.DB
	tokens    TokenPurger
	cache     CachePurger
	subs      SubscriptionExpirer
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	schedule  string
}

type Option func(*Cleaner)

func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetention adjusts how long revoked tokens are kept.
func WithTokenRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithSchedule overrides the cron specification.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithCachePurger enables purging of a database backed cache.
func WithCachePurger(p CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = p
	}
}

// WithSubscriptionExpirer enables expiring subscriptions past their end date.
func WithSubscriptionExpirer(e SubscriptionExpirer) Option {
	return func(cleaner *Cleaner) {
		cleaner.subs = e
	}
}

func NewCleaner(db *gorm.DB, tokens TokenPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:        db,
		tokens:    tokens,
		now:       time.Now,
		retention: defaultTokenRetention,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// task is one maintenance step. count is how many rows it touched.
type task struct {
	name string
	run  func(ctx context.Context, now time.Time) (count int64, err error)
}

func (c *Cleaner) tasks() []task {
	var out []task
	if c.tokens != nil {
		out = append(out, task{"purge revoked tokens", func(ctx context.Context, now time.Time) (int64, error) {
			return c.tokens.PurgeRevoked(ctx, now.Add(-c.retention))
		}})
	}
	if c.cache != nil {
		out = append(out, task{"purge expired cache entries", func(ctx context.Context, _ time.Time) (int64, error) {
			return c.cache.PurgeExpired(ctx)
		}})
	}
	if c.subs != nil {
		out = append(out, task{"expire subscriptions", c.subs.ExpireSubscriptions})
	}
	if c.db != nil {
		out = append(out, task{"deactivate invitation codes", func(ctx context.Context, now time.Time) (int64, error) {
			return ExpireInvitationCodes(ctx, c.db, now)
		}})
	}
	return out
}

// Start schedules RunOnce. With nothing to maintain it does nothing.
func (c *Cleaner) Start() error {
	if len(c.tasks()) == 0 {
		return nil
	}
	job := func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance run failed", zap.Error(err))
		}
	}
	if _, err := c.cron.AddFunc(c.schedule, job); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once a running
// job has finished.
func (c *Cleaner) Stop() context.Context {
	return c.cron.Stop()
}

// RunOnce runs every task against the same instant. A failing task does not
// stop the rest; failures are combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	now := c.now()

	var errs error
	for _, t := range c.tasks() {
		n, err := t.run(ctx, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: %s: %w", t.name, err))
			continue
		}
		if n > 0 {
			c.log.Info(t.name, zap.Int64("count", n))
		}
	}
	return errs
}

// ExpireInvitationCodes deactivates codes whose expiry has passed or whose
// uses are exhausted.
func ExpireInvitationCodes(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("expire invitation codes: db is required")
	}

	res := db.WithContext(ctx).
		Model(&models.InvitationCode{}).
		Where("is_active = ?", true).
		Where("(expired_at IS NOT NULL AND expired_at < ?) OR uses_left <= 0", now).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("expire invitation codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
