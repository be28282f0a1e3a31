package downloader

import (
	"sync"

	"cryptoKline/internal/domain"
)

// Queue is an unbounded FIFO. Push never blocks; Pop blocks until an item is available.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop removes and returns the oldest item, waiting for one if needed.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	return q.shift()
}

// TryPop is Pop without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.shift(), true
}

func (q *Queue[T]) shift() T {
	var zero T
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// TaskQueue carries tasks to workers. A nil entry tells one worker to exit.
type TaskQueue = Queue[*domain.FetchTask]

// NewTaskQueue creates an empty task queue.
func NewTaskQueue() *TaskQueue {
	return NewQueue[*domain.FetchTask]()
}

// UnroutedReason says why a task ended up in the result channel.
type UnroutedReason string

const (
	ReasonEmpty       UnroutedReason = "empty"        // Fetch returned no rows
	ReasonFetchFailed UnroutedReason = "fetch_failed" // Non-retryable fetch error
	ReasonSinkFailed  UnroutedReason = "sink_failed"  // At least one sink rejected the batch
	ReasonPanic       UnroutedReason = "panic"        // Worker recovered from a panic
)

// Unrouted is a task that did not reach every sink.
type Unrouted struct {
	Task   domain.FetchTask
	Reason UnroutedReason
	Err    error // nil for a plain empty result
	Rows   int   // Rows fetched before the failure, if any
}

// ResultChannel collects unrouted tasks until a caller drains them.
type ResultChannel struct {
	q *Queue[Unrouted]
}

// NewResultChannel creates an empty result channel.
func NewResultChannel() *ResultChannel {
	return &ResultChannel{q: NewQueue[Unrouted]()}
}

// Push records an unrouted task.
func (r *ResultChannel) Push(u Unrouted) { r.q.Push(u) }

// Drain returns and clears every recorded task.
func (r *ResultChannel) Drain() []Unrouted { return r.q.Drain() }

// Len returns the number of recorded tasks.
func (r *ResultChannel) Len() int { return r.q.Len() }
