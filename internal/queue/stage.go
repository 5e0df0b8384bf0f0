package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Close, and by Get once a closed queue is drained.
// Consumers treat it as the shutdown sentinel and exit their loop.
var ErrClosed = errors.New("stage queue closed")

// StageQueue is a bounded FIFO with blocking Put and Get
type StageQueue[T any] struct {
	name  string
	items chan T

	mu       sync.RWMutex
	closed   bool
	stopPuts chan struct{}
	sealed   chan struct{}
	once     sync.Once
}

// NewStageQueue creates a queue holding at most capacity items (minimum 1)
func NewStageQueue[T any](name string, capacity int) *StageQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &StageQueue[T]{
		name:     name,
		items:    make(chan T, capacity),
		stopPuts: make(chan struct{}),
		sealed:   make(chan struct{}),
	}
}

// Put appends v, waiting while the queue is full
func (q *StageQueue[T]) Put(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- v:
		return nil
	case <-q.stopPuts:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get removes the oldest item, waiting while the queue is empty. Items put before
// Close are still delivered; afterwards Get returns ErrClosed.
func (q *StageQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-q.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.sealed:
		select {
		case v := <-q.items:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Close stops accepting items. Pending Puts fail with ErrClosed; once Close returns no
// Put is in flight, so consumers that observe ErrClosed have seen every item.
func (q *StageQueue[T]) Close() {
	q.once.Do(func() {
		close(q.stopPuts)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.sealed)
	})
}

// Name returns the queue name used in logs and metrics
func (q *StageQueue[T]) Name() string {
	return q.name
}

// Len returns the number of queued items
func (q *StageQueue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity
func (q *StageQueue[T]) Cap() int {
	return cap(q.items)
}
