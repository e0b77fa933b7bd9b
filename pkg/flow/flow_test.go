package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/types"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue[int](8)
	for i := 0; i < 5; i++ {
		dropped, err := q.Push(i)
		require.NoError(t, err)
		assert.False(t, dropped)
	}
	q.Close()

	var got []int
	for v := range q.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue[int](3)
	for i := 0; i < 3; i++ {
		_, err := q.Push(i)
		require.NoError(t, err)
	}

	dropped, err := q.Push(3)
	require.NoError(t, err)
	assert.True(t, dropped, "push into a full queue should evict the oldest")

	q.Close()
	var got []int
	for v := range q.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got, "oldest item evicted, order preserved")
}

func TestQueuePushAfterClose(t *testing.T) {
	q := NewQueue[string](2)
	q.Close()
	q.Close() // idempotent

	_, err := q.Push("late")
	assert.ErrorIs(t, err, types.ErrChannelClosed)
}

func TestQueueDrainAfterClose(t *testing.T) {
	q := NewQueue[int](4)
	_, err := q.Push(42)
	require.NoError(t, err)
	q.Close()

	v, ok := <-q.C()
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = <-q.C()
	assert.False(t, ok, "channel closes once drained")
}

func TestValueLatestWins(t *testing.T) {
	v := NewValue[int]()
	ch, cancel := v.Watch()
	defer cancel()

	// Watcher never reads between sets: it must see only the last value.
	v.Set(1)
	v.Set(2)
	v.Set(3)

	select {
	case got := <-ch:
		assert.Equal(t, 3, got)
	case <-time.After(time.Second):
		t.Fatal("watcher never notified")
	}

	cur, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 3, cur)
}

func TestValueWatchDeliversCurrent(t *testing.T) {
	v := NewValue[string]()
	v.Set("ready")

	ch, cancel := v.Watch()
	defer cancel()

	select {
	case got := <-ch:
		assert.Equal(t, "ready", got)
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive current value")
	}
}

func TestValueGetBeforeSet(t *testing.T) {
	v := NewValue[int]()
	_, ok := v.Get()
	assert.False(t, ok)
}

func TestValueCancelStopsDelivery(t *testing.T) {
	v := NewValue[int]()
	ch, cancel := v.Watch()
	cancel()

	_, open := <-ch
	assert.False(t, open, "cancel closes the watcher channel")

	// Set after cancel must not panic.
	v.Set(7)
}

func TestValueCloseClosesWatchers(t *testing.T) {
	v := NewValue[int]()
	ch, cancel := v.Watch()
	defer cancel()

	v.Close()

	_, open := <-ch
	assert.False(t, open)

	// Watch after close yields an already-closed channel.
	ch2, cancel2 := v.Watch()
	defer cancel2()
	_, open = <-ch2
	assert.False(t, open)
}

func TestReplyDeliverAndWait(t *testing.T) {
	r := NewReply[int]()
	go r.Deliver(99, nil)

	got, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, got)

	// Repeated waits observe the same outcome.
	got, err = r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, got)
}

func TestReplyFirstDeliveryWins(t *testing.T) {
	r := NewReply[string]()
	r.Deliver("first", nil)
	r.Deliver("second", errors.New("ignored"))

	got, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestReplyWaitHonorsContext(t *testing.T) {
	r := NewReply[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplyDeliverError(t *testing.T) {
	r := NewReply[int]()
	r.Deliver(0, types.ErrNotConnected)

	_, err := r.Wait(context.Background())
	assert.ErrorIs(t, err, types.ErrNotConnected)
}
