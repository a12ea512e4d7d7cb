package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	mu      sync.Mutex
	results map[string]error
	done    chan struct{}
}

func newOutcome(expected int) (*outcome, ResultHook) {
	o := &outcome{results: map[string]error{}, done: make(chan struct{})}
	return o, func(job Job, err error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.results[job.ID] = err
		if len(o.results) == expected {
			close(o.done)
		}
	}
}

func (o *outcome) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	out, hook := newOutcome(3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2, OnResult: hook})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: id, Type: "notify"}))
	}
	out.wait(t)
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	for _, err := range out.results {
		assert.NoError(t, err)
	}
}

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var attempts int32
	out, hook := newOutcome(1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("smtp down")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond, OnResult: hook})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "x"}))
	out.wait(t)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.EqualError(t, out.results["x"], "smtp down")
}

func TestQueueRetrySucceeds(t *testing.T) {
	var attempts int32
	out, hook := newOutcome(1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.New("temporary")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond, OnResult: hook})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "x"}))
	out.wait(t)
	assert.NoError(t, out.results["x"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestQueueEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueClosed)

	q.Start(context.Background())
	q.Stop()
	err = q.Enqueue(context.Background(), Job{ID: "y"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
