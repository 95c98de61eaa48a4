package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/pkg/mail"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "jobs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func fastWorker(q *Queue, attempts int) *Worker {
	return NewWorker(q, WorkerConfig{
		PollInterval:    10 * time.Millisecond,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func TestEnqueueIsFIFO(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a", map[string]int{"n": 1}))
	require.NoError(t, q.Enqueue(ctx, "b", map[string]int{"n": 2}))
	require.Equal(t, uint64(2), q.Len())

	first, id, err := q.next()
	require.NoError(t, err)
	require.Equal(t, "a", first.Name)
	require.JSONEq(t, `{"n":1}`, string(first.Payload))

	again, _, err := q.next()
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID, "unacknowledged job stays at the head")
	require.Equal(t, uint64(2), q.Len())

	require.NoError(t, q.ack(id))
	require.NoError(t, q.ack(id), "acknowledging twice removes nothing else")
	require.Equal(t, uint64(1), q.Len())

	second, id, err := q.next()
	require.NoError(t, err)
	require.Equal(t, "b", second.Name)
	require.NoError(t, q.ack(id))

	empty, _, err := q.next()
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestJobsSurviveReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	q, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), JobVerifyEmail, CodeEmailPayload{Email: "a@b.c"}))
	require.NoError(t, q.Close())

	q, err = Open(dir)
	require.NoError(t, err)
	defer q.Close()
	require.Equal(t, uint64(1), q.Len())
}

func TestEnqueueAfterClose(t *testing.T) {
	q, err := Open(filepath.Join(t.TempDir(), "jobs"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	err = q.Enqueue(context.Background(), "x", nil)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, q.Ping(context.Background()), ErrClosed)
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 3)
	calls := 0
	w.Handle("flaky", func(ctx context.Context, payload []byte) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), "flaky", "x"))
	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 3, calls)
	require.Zero(t, q.Len())
}

func TestWorkerDropsAfterMaxAttempts(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 2)
	calls := 0
	w.Handle("broken", func(context.Context, []byte) error {
		calls++
		return errors.New("nope")
	})

	require.NoError(t, q.Enqueue(context.Background(), "broken", "x"))
	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 2, calls)
	require.Zero(t, q.Len())
}

func TestWorkerDropsUnknownJobs(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 2)

	require.NoError(t, q.Enqueue(context.Background(), "mystery", "x"))
	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	processed, err = w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestWorkerRunDrainsUntilCancelled(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 1)

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{}, 3)
	w.Handle("note", func(_ context.Context, payload []byte) error {
		mu.Lock()
		seen = append(seen, string(payload))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	for _, v := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(context.Background(), "note", v))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	cancel()
	<-stopped

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{`"1"`, `"2"`, `"3"`}, seen)
}

func TestWorkerKeepsJobInterruptedByShutdown(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	q, err := Open(dir)
	require.NoError(t, err)

	w := fastWorker(q, 3)
	started := make(chan struct{})
	w.Handle(JobVerifyEmail, func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, q.Enqueue(context.Background(), JobVerifyEmail, CodeEmailPayload{Email: "kid@example.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job not started")
	}
	cancel()
	require.NoError(t, q.Close())
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	q, err = Open(dir)
	require.NoError(t, err)
	defer q.Close()
	require.Equal(t, uint64(1), q.Len())

	delivered := 0
	w = fastWorker(q, 1)
	w.Handle(JobVerifyEmail, func(context.Context, []byte) error {
		delivered++
		return nil
	})
	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 1, delivered)
	require.Zero(t, q.Len())
}

func TestWorkerFinishAfterCloseKeepsJob(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jobs")
	q, err := Open(dir)
	require.NoError(t, err)

	w := fastWorker(q, 1)
	w.Handle("note", func(context.Context, []byte) error {
		return q.Close()
	})
	require.NoError(t, q.Enqueue(context.Background(), "note", "x"))

	_, err = w.ProcessOne(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	q, err = Open(dir)
	require.NoError(t, err)
	defer q.Close()
	require.Equal(t, uint64(1), q.Len())
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestMailJobsRenderAndSend(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 1)
	mailer := &recordingMailer{}
	RegisterMailJobs(w, mailer)

	require.NoError(t, q.Enqueue(context.Background(), JobVerifyEmail, CodeEmailPayload{
		Email:    "kid@example.com",
		Username: "kid01",
		Code:     "123456",
		Year:     2026,
	}))
	_, err := w.ProcessOne(context.Background())
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	require.Equal(t, []string{"kid@example.com"}, mailer.sent[0].To)
	require.Equal(t, "Verify your HappyCat account", mailer.sent[0].Subject)
}

func TestMailJobTreatsDisabledSMTPAsSuccess(t *testing.T) {
	q := openTestQueue(t)
	w := fastWorker(q, 3)
	mailer := &recordingMailer{err: mail.ErrSMTPDisabled}
	RegisterMailJobs(w, mailer)

	h, ok := w.handler(JobResetPassword)
	require.True(t, ok)
	require.NoError(t, h(context.Background(), []byte(`{"email":"p@example.com","code":"654321"}`)))

	require.Error(t, h(context.Background(), []byte(`not json`)))
}
