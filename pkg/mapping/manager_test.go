package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/types"
)

func TestManagerRegisterAndLookup(t *testing.T) {
	m := NewManager(Config{})

	eng, err := m.Register(types.ProtocolRadio)
	require.NoError(t, err)
	assert.NotEmpty(t, eng.ID())
	assert.Equal(t, types.EngineInitializing, eng.State())

	got, ok := m.Engine(eng.ID())
	require.True(t, ok)
	assert.Same(t, eng, got)

	_, err = m.RegisterWithID(eng.ID(), types.ProtocolKeyboard)
	assert.ErrorIs(t, err, types.ErrConfigValidation, "duplicate IDs rejected")

	_, err = m.Register("midi")
	assert.ErrorIs(t, err, types.ErrConfigValidation, "unknown protocol rejected")
}

func TestManagerDispatchOrderAndIsolation(t *testing.T) {
	m := NewManager(Config{QueueSize: 4})

	first, err := m.RegisterWithID("eng-first", types.ProtocolRadio)
	require.NoError(t, err)
	require.NoError(t, first.Configure(DefaultRadioTable()))
	require.NoError(t, first.Activate())

	// Second engine never activates: dispatch must skip it silently.
	second, err := m.RegisterWithID("eng-second", types.ProtocolKeyboard)
	require.NoError(t, err)
	require.NoError(t, second.Configure(types.MappingTable{
		Name: "keys",
		Keys: []types.KeyBinding{{Control: types.ControlButtonA, Key: 57}},
	}))

	st := types.ControllerState{}
	st.Buttons = st.Buttons.With(types.ControlButtonA)
	m.Dispatch(types.ControllerOutput{
		Control: types.ControlButtonA,
		Kind:    types.OutputPress,
		Value:   1,
		State:   st,
	})

	require.NoError(t, first.Deactivate())

	sink := m.Outputs(types.ProtocolRadio)
	sink.Close()
	var outs []Output
	for out := range sink.C() {
		outs = append(outs, out)
	}
	require.NotEmpty(t, outs)
	assert.Equal(t, types.ChannelMax, outs[0].Frame[types.ChannelAux3])

	assert.Equal(t, 0, m.Outputs(types.ProtocolKeyboard).Len(), "configured-but-inactive engine maps nothing")
}

func TestManagerStartConsumesUntilClose(t *testing.T) {
	m := NewManager(Config{})
	eng, err := m.RegisterWithID("eng-run", types.ProtocolRadio)
	require.NoError(t, err)
	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())

	in := flow.NewQueue[types.ControllerOutput](8)
	m.Start(in)

	_, err = in.Push(types.ControllerOutput{
		Control: types.ControlRightStickX,
		Kind:    types.OutputAxis,
		Value:   1,
		State:   types.ControllerState{RightStick: types.StickPosition{X: 1}},
	})
	require.NoError(t, err)
	in.Close()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop on queue closure")
	}

	require.NoError(t, eng.Deactivate())
	sink := m.Outputs(types.ProtocolRadio)
	sink.Close()

	var frames int
	for out := range sink.C() {
		if out.HasFrame {
			frames++
		}
	}
	assert.GreaterOrEqual(t, frames, 2, "mapped frame plus failsafe")
}

func TestManagerRemoveRequiresTerminated(t *testing.T) {
	m := NewManager(Config{})
	eng, err := m.RegisterWithID("eng-rm", types.ProtocolRadio)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Remove("eng-rm"), types.ErrInvalidTransition)

	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())
	require.NoError(t, eng.Deactivate())

	require.NoError(t, m.Remove("eng-rm"))
	_, ok := m.Engine("eng-rm")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Remove("eng-rm"), types.ErrConfigValidation, "double remove")
}

func TestManagerStateCounts(t *testing.T) {
	m := NewManager(Config{})

	a, err := m.RegisterWithID("eng-a", types.ProtocolRadio)
	require.NoError(t, err)
	b, err := m.RegisterWithID("eng-b", types.ProtocolRadio)
	require.NoError(t, err)
	require.NoError(t, b.Configure(DefaultRadioTable()))

	counts := m.StateCounts()
	assert.Equal(t, 1, counts[types.EngineInitializing])
	assert.Equal(t, 1, counts[types.EngineConfigured])
	_ = a
}

func TestManagerShutdownDeactivatesActives(t *testing.T) {
	m := NewManager(Config{})
	eng, err := m.RegisterWithID("eng-sd", types.ProtocolRadio)
	require.NoError(t, err)
	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())

	idle, err := m.RegisterWithID("eng-idle", types.ProtocolKeyboard)
	require.NoError(t, err)

	m.Shutdown()

	assert.Equal(t, types.EngineTerminated, eng.State())
	assert.Equal(t, types.EngineInitializing, idle.State(), "never-activated engines are left alone")

	_, ok := <-m.Outputs(types.ProtocolRadio).C()
	// Failsafe frame is still in the sink; drain until closed.
	for ok {
		_, ok = <-m.Outputs(types.ProtocolRadio).C()
	}
}

func TestManagerBackloggedEngineDropsOldest(t *testing.T) {
	m := NewManager(Config{QueueSize: 2})
	eng, err := m.RegisterWithID("eng-slow", types.ProtocolRadio)
	require.NoError(t, err)
	require.NoError(t, eng.Configure(DefaultRadioTable()))

	// Flip to Active without starting the consumer loop so the queue
	// backs up deterministically.
	eng.mu.Lock()
	eng.state = types.EngineActive
	eng.mu.Unlock()

	for i := 0; i < 5; i++ {
		v := float64(i) / 5
		m.Dispatch(types.ControllerOutput{
			Control: types.ControlRightStickX,
			Kind:    types.OutputAxis,
			Value:   v,
			State:   types.ControllerState{RightStick: types.StickPosition{X: v}},
		})
	}

	assert.Equal(t, 2, eng.queue.Len(), "queue bounded at capacity")

	eng.queue.Close()
	var got []types.ControllerOutput
	for ev := range eng.queue.C() {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.InDelta(t, 0.6, got[0].Value, 1e-9, "oldest events evicted first")
	assert.InDelta(t, 0.8, got[1].Value, 1e-9)
}
