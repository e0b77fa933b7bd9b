package processor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/types"
)

func TestApplyDeadzone(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		dz   float64
		want float64
	}{
		{"zero stays zero", 0, 0.05, 0},
		{"inside deadzone", 0.03, 0.05, 0},
		{"negative inside deadzone", -0.04, 0.05, 0},
		{"full deflection", 1.0, 0.05, 1.0},
		{"full negative deflection", -1.0, 0.05, -1.0},
		{"rescaled midpoint", 0.525, 0.05, 0.5},
		{"negative rescaled", -0.525, 0.05, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyDeadzone(tt.in, tt.dz)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		ev   types.RawInputEvent
		want bool
	}{
		{"valid axis", types.RawInputEvent{Control: types.ControlLeftStickX, Value: 0.5}, true},
		{"axis out of range", types.RawInputEvent{Control: types.ControlLeftStickX, Value: 1.5}, false},
		{"valid trigger", types.RawInputEvent{Control: types.ControlLeftTrigger, Value: 0.9}, true},
		{"negative trigger", types.RawInputEvent{Control: types.ControlLeftTrigger, Value: -0.1}, false},
		{"valid button", types.RawInputEvent{Control: types.ControlButtonA, Value: 1}, true},
		{"fractional button", types.RawInputEvent{Control: types.ControlButtonA, Value: 0.3}, false},
		{"unknown control", types.RawInputEvent{Control: "pedal", Value: 1}, false},
		{"nan value", types.RawInputEvent{Control: types.ControlLeftStickX, Value: math.NaN()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate(tt.ev))
		})
	}
}

func collect(t *testing.T, p *Processor, n int) []types.ControllerOutput {
	t.Helper()
	var out []types.ControllerOutput
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-p.Events().C():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out, got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestProcessorButtonEdges(t *testing.T) {
	in := flow.NewQueue[types.RawInputEvent](16)
	p := New(in, Config{Interval: time.Millisecond})

	now := time.Now()
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlButtonA, Value: 1, Timestamp: now})
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlButtonA, Value: 1, Timestamp: now}) // duplicate
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlButtonA, Value: 0, Timestamp: now})
	in.Close()
	p.Start()

	got := collect(t, p, 2)
	require.Len(t, got, 2, "duplicate press must be filtered")

	assert.Equal(t, types.OutputPress, got[0].Kind)
	assert.True(t, got[0].State.Buttons.Has(types.ControlButtonA))

	assert.Equal(t, types.OutputRelease, got[1].Kind)
	assert.False(t, got[1].State.Buttons.Has(types.ControlButtonA))
}

func TestProcessorAxisDeadzoneAndJitter(t *testing.T) {
	in := flow.NewQueue[types.RawInputEvent](16)
	p := New(in, Config{Interval: time.Millisecond, Deadzone: 0.05, Epsilon: 0.01})

	now := time.Now()
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlLeftStickX, Value: 0.5, Timestamp: now})
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlLeftStickX, Value: 0.503, Timestamp: now}) // jitter
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlLeftStickX, Value: 0.02, Timestamp: now})  // inside dz
	in.Close()
	p.Start()

	got := collect(t, p, 2)
	require.Len(t, got, 2)

	assert.Equal(t, types.OutputAxis, got[0].Kind)
	assert.InDelta(t, (0.5-0.05)/0.95, got[0].Value, 1e-9)
	assert.InDelta(t, got[0].Value, got[0].State.LeftStick.X, 1e-9)

	// The move back inside the deadzone reads as a return to zero.
	assert.InDelta(t, 0.0, got[1].Value, 1e-9)
}

func TestProcessorPreservesOrder(t *testing.T) {
	in := flow.NewQueue[types.RawInputEvent](16)
	p := New(in, Config{Interval: time.Millisecond})

	now := time.Now()
	seq := []types.RawInputEvent{
		{Control: types.ControlButtonA, Value: 1, Timestamp: now},
		{Control: types.ControlLeftStickY, Value: -1, Timestamp: now},
		{Control: types.ControlButtonB, Value: 1, Timestamp: now},
		{Control: types.ControlButtonA, Value: 0, Timestamp: now},
	}
	for _, ev := range seq {
		_, err := in.Push(ev)
		require.NoError(t, err)
	}
	in.Close()
	p.Start()

	got := collect(t, p, 4)
	require.Len(t, got, 4)
	for i, ev := range seq {
		assert.Equal(t, ev.Control, got[i].Control, "event %d out of order", i)
	}
}

func TestProcessorDiscardsMalformed(t *testing.T) {
	in := flow.NewQueue[types.RawInputEvent](16)
	p := New(in, Config{Interval: time.Millisecond})

	now := time.Now()
	_, _ = in.Push(types.RawInputEvent{Control: "pedal", Value: 1, Timestamp: now})
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlLeftStickX, Value: 3.0, Timestamp: now})
	_, _ = in.Push(types.RawInputEvent{Control: types.ControlButtonA, Value: 1, Timestamp: now})
	in.Close()
	p.Start()

	got := collect(t, p, 1)
	require.Len(t, got, 1, "malformed events must not produce outputs")
	assert.Equal(t, types.ControlButtonA, got[0].Control)
}

func TestProcessorClosesOutputWhenInputCloses(t *testing.T) {
	in := flow.NewQueue[types.RawInputEvent](4)
	p := New(in, Config{Interval: time.Millisecond})
	p.Start()
	in.Close()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not terminate")
	}

	_, ok := <-p.Events().C()
	assert.False(t, ok, "output queue must close on termination")
}
