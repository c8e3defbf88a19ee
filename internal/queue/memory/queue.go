// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Queue is an unbounded in-memory FIFO with context-aware operations and idempotency keys.
// Workers enqueue their own children, so Enqueue never blocks. Retries are re-delivered
// after their backoff with time.AfterFunc.
type Queue struct {
	policy crawler.RetryPolicy
	// ready holds at most one wake-up for a blocked Dequeue.
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	items     []crawler.QueueItem
	pending   map[string]struct{}
	active    map[string]struct{}
	timers    map[string]*time.Timer
	completed int64
	failed    int64
	closed    bool
}

var _ crawler.Queue = (*Queue)(nil)

// NewQueue constructs a new queue. capacity only sizes the initial buffer. A nil policy
// uses the crawler's exponential defaults.
func NewQueue(capacity int, policy crawler.RetryPolicy) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	if policy == nil {
		policy = crawler.NewExponentialRetryPolicy(0, 0, 0)
	}
	return &Queue{
		policy:  policy,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		items:   make([]crawler.QueueItem, 0, capacity),
		pending: make(map[string]struct{}),
		active:  make(map[string]struct{}),
		timers:  make(map[string]*time.Timer),
	}
}

// Enqueue appends a job. It reports false without error when the key is already waiting,
// delayed or active.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, crawler.ErrQueueClosed
	}
	if _, dup := q.pending[item.Key]; dup {
		return false, nil
	}
	q.pending[item.Key] = struct{}{}
	q.pushLocked(item)
	return true, nil
}

func (q *Queue) pushLocked(item crawler.QueueItem) {
	q.items = append(q.items, item)
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue pops the next job, blocking until one is available, the context ends or the
// queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = crawler.QueueItem{}
			q.items = q.items[1:]
			q.active[item.Key] = struct{}{}
			if len(q.items) > 0 {
				// Pass the wake-up on so another waiter takes the rest.
				q.signal()
			}
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return crawler.QueueItem{}, crawler.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Complete releases the item's key.
func (q *Queue) Complete(_ context.Context, item crawler.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, item.Key)
	delete(q.pending, item.Key)
	q.completed++
	return nil
}

// Fail schedules a retry when the policy allows it and reports whether it did.
func (q *Queue) Fail(_ context.Context, item crawler.QueueItem, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, item.Key)

	if q.closed || !q.policy.ShouldRetry(cause, item.Attempt) {
		delete(q.pending, item.Key)
		q.failed++
		return false, nil
	}

	next := item
	next.Attempt++
	q.timers[item.Key] = time.AfterFunc(q.policy.Backoff(item.Attempt), func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, next.Key)
		if q.closed {
			delete(q.pending, next.Key)
			return
		}
		q.pushLocked(next)
	})
	return true, nil
}

// Stats reports the current counts.
func (q *Queue) Stats(_ context.Context) (crawler.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return crawler.QueueStats{
		Active:    int64(len(q.active)),
		Waiting:   int64(len(q.items)),
		Delayed:   int64(len(q.timers)),
		Completed: q.completed,
		Failed:    q.failed,
	}, nil
}

// Close rejects further enqueues and drops delayed retries. Waiting items can still be
// dequeued; after that Dequeue reports ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for key, timer := range q.timers {
		timer.Stop()
		delete(q.timers, key)
		delete(q.pending, key)
	}
	close(q.done)
	q.closed = true
}
