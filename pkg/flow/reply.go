package flow

import (
	"context"
	"sync"
)

type outcome[T any] struct {
	val T
	err error
}

// Reply is a single-use response slot attached to a request. Exactly one
// Deliver wins; later deliveries are discarded. Wait blocks until the
// response arrives or the context is done.
type Reply[T any] struct {
	once sync.Once
	ch   chan outcome[T]
}

// NewReply creates an empty reply slot.
func NewReply[T any]() *Reply[T] {
	return &Reply[T]{ch: make(chan outcome[T], 1)}
}

// Deliver fulfils the slot. Only the first call has any effect.
func (r *Reply[T]) Deliver(val T, err error) {
	r.once.Do(func() {
		r.ch <- outcome[T]{val: val, err: err}
	})
}

// Wait blocks for the delivered value or context cancellation. The slot
// stays fulfilled, so a Wait after delivery returns immediately.
func (r *Reply[T]) Wait(ctx context.Context) (T, error) {
	select {
	case out := <-r.ch:
		// Put it back so repeated Waits observe the same outcome.
		r.ch <- out
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
