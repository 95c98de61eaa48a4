package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beeker1121/goque"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Job is one unit of deferred work.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Enqueuer accepts jobs for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// Queue is a persistent FIFO of jobs stored on disk. A job stays stored until
// its worker acknowledges it, so jobs interrupted by a shutdown or crash run
// again after restart; delivery is at least once. A Queue has one consumer.
type Queue struct {
	mu     sync.Mutex
	q      *goque.Queue
	closed bool
	log    *zap.Logger
}

// Open opens or creates the queue stored in dir.
func Open(dir string) (*Queue, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("queue: directory is required")
	}
	q, err := goque.OpenQueue(dir)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", dir, err)
	}
	return &Queue{q: q, log: logger.WithModule("queue")}, nil
}

// Enqueue appends a job named name carrying payload encoded as JSON.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("queue: job name is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encode %s payload: %w", name, err)
	}

	job := Job{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(job); err != nil {
		return err
	}
	metrics.QueueJobs.WithLabelValues(name, "enqueued").Inc()
	q.log.Debug("job enqueued", zap.String("job", name), zap.String("id", job.ID))
	return nil
}

func (q *Queue) push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode job: %w", err)
	}
	if _, err := q.q.Enqueue(raw); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", job.Name, err)
	}
	return nil
}

// next returns the oldest job without removing it, along with the item id
// to pass to ack once the job is finished. It returns nil when the queue is
// empty. Undecodable entries are logged and discarded.
func (q *Queue) next() (*Job, uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, 0, ErrClosed
	}

	for {
		item, err := q.q.Peek()
		if errors.Is(err, goque.ErrEmpty) {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("queue: peek: %w", err)
		}

		var job Job
		if err := json.Unmarshal(item.Value, &job); err != nil {
			q.log.Error("dropping undecodable job", zap.Uint64("item", item.ID), zap.Error(err))
			if _, err := q.q.Dequeue(); err != nil {
				return nil, 0, fmt.Errorf("queue: discard item %d: %w", item.ID, err)
			}
			continue
		}
		return &job, item.ID, nil
	}
}

// ack removes the item returned by next. An item that is no longer at the
// head has already been removed.
func (q *Queue) ack(id uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	head, err := q.q.Peek()
	if errors.Is(err, goque.ErrEmpty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue: peek: %w", err)
	}
	if head.ID != id {
		return nil
	}
	if _, err := q.q.Dequeue(); err != nil {
		return fmt.Errorf("queue: dequeue item %d: %w", id, err)
	}
	return nil
}

// Len reports the number of pending jobs.
func (q *Queue) Len() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	return q.q.Length()
}

// Ping reports whether the queue is open.
func (q *Queue) Ping(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the underlying store.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.q.Close()
}
