package flow

import (
	"sync"

	"github.com/opencontroller/padbridge/pkg/types"
)

// Queue is a bounded FIFO with drop-oldest overflow. Producers never block:
// when the queue is full the oldest queued item is discarded to make room
// for the new one. Consumers receive from C().
type Queue[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// NewQueue creates a queue with the given capacity (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Push enqueues v. It reports whether an older item was dropped to make
// room, and returns ErrChannelClosed after Close.
func (q *Queue[T]) Push(v T) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, types.ErrChannelClosed
	}
	for {
		select {
		case q.ch <- v:
			return dropped, nil
		default:
		}
		// Full: evict the oldest. The consumer may race the eviction,
		// in which case the next send attempt succeeds anyway.
		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// C returns the receive channel. It is closed by Close once all queued
// items have been pushed, so consumers can range over it.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close closes the queue. Queued items remain receivable; further pushes
// fail with ErrChannelClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
