package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

// ErrTxDone is returned when a finished transaction handle is reused.
var ErrTxDone = errors.New("database: transaction already finished")

// Hook is a post-commit side effect. Its error is logged, never returned.
type Hook func(ctx context.Context) error

// Tx is a unit of work against the database. The outermost Run that created
// it owns it: only the owner commits or rolls back. A Tx must be advanced by
// one call chain at a time and is never shared between goroutines.
type Tx struct {
	db    *gorm.DB
	ctx   context.Context
	hooks []Hook
	done  bool
}

// DB returns the transactional gorm handle.
func (t *Tx) DB() *gorm.DB {
	return t.db
}

// Context returns the context the transaction was started with.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// AfterCommit registers h to run once the owning transaction commits.
// Hooks are dropped when the transaction rolls back.
func (t *Tx) AfterCommit(h Hook) {
	if h == nil {
		return
	}
	t.hooks = append(t.hooks, h)
}

// Run executes fn inside a transaction. When outer is nil Run owns the
// transaction: it begins it, commits on success, rolls back on error or
// panic, then runs the post-commit hooks. When outer is non-nil fn runs on
// the caller's transaction and its lifecycle is left untouched.
func Run(ctx context.Context, db *gorm.DB, outer *Tx, fn func(tx *Tx) error) error {
	owns := outer == nil
	if !owns {
		if outer.done {
			return ErrTxDone
		}
		return fn(outer)
	}

	if db == nil {
		return errors.New("database: nil handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	begun := db.WithContext(ctx).Begin()
	if begun.Error != nil {
		return fmt.Errorf("begin transaction: %w", begun.Error)
	}
	tx := &Tx{db: begun, ctx: ctx}

	committed := false
	defer func() {
		if committed {
			return
		}
		tx.rollback()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := begun.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	tx.done = true
	metrics.Transactions.WithLabelValues("commit").Inc()

	tx.runHooks()
	return nil
}

// Do is Run for callbacks that produce a value.
func Do[T any](ctx context.Context, db *gorm.DB, outer *Tx, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := Run(ctx, db, outer, func(tx *Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (t *Tx) rollback() {
	if t.done {
		return
	}
	t.done = true
	t.hooks = nil
	metrics.Transactions.WithLabelValues("rollback").Inc()
	if err := t.db.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		logger.WithModule("tx").Warn("rollback failed", zap.Error(err))
	}
}

func (t *Tx) runHooks() {
	hooks := t.hooks
	t.hooks = nil
	ctx := context.WithoutCancel(t.ctx)
	for i, h := range hooks {
		runHook(ctx, i, h)
	}
}

func runHook(ctx context.Context, idx int, h Hook) {
	log := logger.WithModule("tx")
	defer func() {
		if r := recover(); r != nil {
			metrics.AfterCommitFailures.Inc()
			log.Error("post-commit hook panicked", zap.Int("hook", idx), zap.Any("panic", r))
		}
	}()
	if err := h(ctx); err != nil {
		metrics.AfterCommitFailures.Inc()
		log.Warn("post-commit hook failed", zap.Int("hook", idx), zap.Error(err))
	}
}
