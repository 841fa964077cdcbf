// Package queue provides the bounded FIFO that buffers records between the
// owner loop and a storage writer.
package queue

import "sync"

// Queue is a thread-safe FIFO. With a limit, pushing past it evicts the
// oldest items so a stalled writer cannot grow memory without bound.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New creates an empty queue holding at most limit items; zero is unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends items and returns how many old items were evicted.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return q.trimLocked()
}

// Requeue puts items back at the head, ahead of anything pushed since they
// were drained. Eviction still drops the oldest.
func (q *Queue[T]) Requeue(items []T) int {
	if len(items) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(items, q.items...)
	return q.trimLocked()
}

func (q *Queue[T]) trimLocked() int {
	over := len(q.items) - q.limit
	if q.limit <= 0 || over <= 0 {
		return 0
	}
	q.items = append([]T(nil), q.items[over:]...)
	q.dropped += uint64(over)
	return over
}

// Drain returns all items in order and empties the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted over the queue's lifetime.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
