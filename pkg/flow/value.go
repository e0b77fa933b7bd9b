package flow

import "sync"

// Value is a latest-value broadcast cell. Writers replace the current
// value; each watcher observes the most recent value at its own pace and
// may miss intermediate ones, but never sees them out of order.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	set    bool
	closed bool
	nextID int
	subs   map[int]chan T
}

// NewValue creates an empty cell.
func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[int]chan T)}
}

// Set stores v and notifies all watchers. A watcher that has not consumed
// the previous notification has it replaced rather than queued behind it.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = val
	v.set = true
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- val
	}
}

// Get returns the current value and whether one has been set.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur, v.set
}

// Watch registers a watcher. The returned channel carries the current
// value immediately (if any) and every subsequent Set, latest-wins. The
// cancel func unregisters the watcher; the channel is closed on cancel or
// when the cell is closed.
func (v *Value[T]) Watch() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch := make(chan T, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	if v.set {
		ch <- v.cur
	}
	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close closes all watcher channels. Subsequent Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}
