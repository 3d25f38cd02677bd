// Package queue provides an unbounded FIFO used to hand audio chunks from the
// real-time capture callback to the recognizer side.
package queue

import (
	"context"
	"sync"
)

// Queue is a generic unbounded FIFO for a single producer and single consumer.
// Enqueue never waits on the consumer, which keeps it safe to call from an
// audio callback. It is not lock-free: producer and consumer share one mutex,
// but every critical section is a constant-time slice update and the consumer
// never holds the lock while it waits or while the item is processed, so the
// callback contends for at most one such update.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	closed   bool
	detached bool
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New creates and returns a new Queue instance.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends item without blocking. It returns false once the producer
// has closed the queue or the consumer has detached; callers treat that as the
// signal to stop producing.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	if q.closed || q.detached {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Dequeue removes and returns the front element, blocking until one is
// available. The boolean is false when the stream has ended: the producer
// closed and the queue drained, the consumer detached, or ctx was cancelled.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if q.detached {
			q.mu.Unlock()
			return zero, false
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// Close marks the producer side finished. Items already queued are still
// delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signalDone()
}

// Detach marks the consumer gone and drops anything still queued. Subsequent
// Enqueue calls return false.
func (q *Queue[T]) Detach() {
	q.mu.Lock()
	q.detached = true
	q.items = nil
	q.mu.Unlock()
	q.signalDone()
}

func (q *Queue[T]) signalDone() {
	q.doneOnce.Do(func() { close(q.done) })
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}
