// Package queue provides a generic on-demand work queue. A single worker
// goroutine is started when work arrives and exits once the queue drains, so
// an idle queue holds no goroutines. Failed jobs are retried in order until an
// attempt budget is exhausted.
package queue

import (
	"context"
	"fmt"
	"sync"

	"unilink.org/internal/obs"
)

const defaultMaxAttempts = 5

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithMaxAttempts overrides the per-job attempt budget.
func WithMaxAttempts[T any](n int) Option[T] {
	return func(q *Queue[T]) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithOnDrop installs a callback invoked after a job exhausts its attempts.
func WithOnDrop[T any](fn func(item T, err error)) Option[T] {
	return func(q *Queue[T]) { q.onDrop = fn }
}

type job[T any] struct {
	item    T
	attempt int
}

// Queue executes jobs one at a time in arrival order. Safe for concurrent
// Enqueue calls; the handler only ever runs on the single worker goroutine.
type Queue[T any] struct {
	name        string
	handle      func(ctx context.Context, item T) error
	maxAttempts int
	onDrop      func(item T, err error)

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending []job[T]
	running bool
	closed  bool
}

// New builds a queue. The context bounds all handler invocations; once it is
// cancelled no further work starts and Enqueue becomes a no-op.
func New[T any](ctx context.Context, name string, handle func(ctx context.Context, item T) error, opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		name:        name,
		handle:      handle,
		maxAttempts: defaultMaxAttempts,
		ctx:         ctx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a job and starts the worker if none is running.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.ctx.Err() != nil {
		return
	}
	q.pending = append(q.pending, job[T]{item: item, attempt: 1})
	obs.SetQueueDepth(q.name, len(q.pending))
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.work()
	}
}

// Len reports the number of jobs waiting, excluding the one in flight.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting new jobs and waits for the worker to drain.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// Wait blocks until the current worker, if any, has exited.
func (q *Queue[T]) Wait() { q.wg.Wait() }

func (q *Queue[T]) work() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.ctx.Err() != nil {
			// The running flag must flip inside the same critical section
			// that observed the empty slice, otherwise an Enqueue racing
			// with worker exit could leave a job with no worker.
			q.running = false
			q.pending = nil
			obs.SetQueueDepth(q.name, 0)
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		obs.SetQueueDepth(q.name, len(q.pending))
		q.mu.Unlock()

		err := q.run(next.item)
		if err == nil {
			continue
		}
		if next.attempt >= q.maxAttempts {
			obs.IncQueueDropped(q.name)
			obs.Error("queue job dropped", map[string]any{
				"queue":    q.name,
				"attempts": next.attempt,
				"error":    err.Error(),
			})
			if q.onDrop != nil {
				q.onDrop(next.item, err)
			}
			continue
		}
		obs.IncQueueRetry(q.name)
		obs.Warn("queue job failed, retrying", map[string]any{
			"queue":   q.name,
			"attempt": next.attempt,
			"error":   err.Error(),
		})
		q.mu.Lock()
		q.pending = append(q.pending, job[T]{item: next.item, attempt: next.attempt + 1})
		obs.SetQueueDepth(q.name, len(q.pending))
		q.mu.Unlock()
	}
}

// run invokes the handler and converts panics into errors so one bad job
// cannot kill the worker.
func (q *Queue[T]) run(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue handler panic: %v", r)
		}
	}()
	return q.handle(q.ctx, item)
}
