package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

// Handler processes the payload of one job.
type Handler func(ctx context.Context, payload []byte) error

// WorkerConfig tunes polling and retries.
type WorkerConfig struct {
	PollInterval    time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	return c
}

// Worker drains a Queue, dispatching jobs to handlers by name. Failing jobs
// are retried with exponential backoff and dropped after MaxAttempts.
type Worker struct {
	queue *Queue
	cfg   WorkerConfig
	log   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker builds a worker over q.
func NewWorker(q *Queue, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    q,
		cfg:      cfg.withDefaults(),
		log:      logger.WithModule("queue"),
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for jobs named name, replacing any earlier handler.
func (w *Worker) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("queue worker started", zap.Uint64("pending", w.queue.Len()))
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := w.ProcessOne(ctx)
			if err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					w.log.Info("queue worker stopped")
					return
				}
				w.log.Error("queue worker error", zap.Error(err))
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.log.Info("queue worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne handles the oldest job. It reports false when the queue was empty.
// A job interrupted by ctx is left in the queue for the next run.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, id, err := w.queue.next()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	h, ok := w.handler(job.Name)
	if !ok {
		metrics.QueueJobs.WithLabelValues(job.Name, "dropped").Inc()
		w.log.Error("no handler for job, dropping", zap.String("job", job.Name), zap.String("id", job.ID))
		return true, w.finish(job, id)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.InitialInterval
	policy.MaxInterval = w.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	op := func() error {
		job.Attempts++
		return h(ctx, job.Payload)
	}
	notify := func(err error, wait time.Duration) {
		metrics.QueueJobs.WithLabelValues(job.Name, "retry").Inc()
		w.log.Warn("job failed, retrying",
			zap.String("job", job.Name),
			zap.String("id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err = backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.cfg.MaxAttempts-1)), ctx),
		notify,
	)
	switch {
	case err == nil:
		metrics.QueueJobs.WithLabelValues(job.Name, "done").Inc()
		return true, w.finish(job, id)
	case ctx.Err() != nil:
		w.log.Info("job interrupted, kept for next start",
			zap.String("job", job.Name),
			zap.String("id", job.ID),
		)
		return true, ctx.Err()
	default:
		metrics.QueueJobs.WithLabelValues(job.Name, "dropped").Inc()
		w.log.Error("job exhausted retries, dropping",
			zap.String("job", job.Name),
			zap.String("id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
		return true, w.finish(job, id)
	}
}

// finish acknowledges a completed or dropped job. If the queue closed in the
// meantime the job stays stored and runs again after restart.
func (w *Worker) finish(job *Job, id uint64) error {
	if err := w.queue.ack(id); err != nil {
		if errors.Is(err, ErrClosed) {
			w.log.Warn("queue closed before job was acknowledged; it will run again",
				zap.String("job", job.Name),
				zap.String("id", job.ID),
			)
		}
		return err
	}
	return nil
}
