package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/types"
)

// TestTransitionTable checks every state/operation pair exhaustively.
func TestTransitionTable(t *testing.T) {
	states := []types.EngineState{
		types.EngineInitializing,
		types.EngineConfigured,
		types.EngineActive,
		types.EngineDeactivating,
		types.EngineTerminated,
	}
	ops := []Op{OpConfigure, OpActivate, OpDeactivate}

	legal := map[types.EngineState]map[Op]types.EngineState{
		types.EngineInitializing: {OpConfigure: types.EngineConfigured},
		types.EngineConfigured: {
			OpConfigure: types.EngineConfigured,
			OpActivate:  types.EngineActive,
		},
		types.EngineActive: {
			OpConfigure:  types.EngineActive,
			OpDeactivate: types.EngineDeactivating,
		},
	}

	for _, from := range states {
		for _, op := range ops {
			got, err := Next(from, op)
			want, ok := legal[from][op]
			if ok {
				require.NoError(t, err, "%s from %s should be legal", op, from)
				assert.Equal(t, want, got)
			} else {
				assert.ErrorIs(t, err, types.ErrInvalidTransition, "%s from %s should be illegal", op, from)
				assert.Equal(t, from, got, "illegal operation must not change state")
			}
		}
	}
}

func testEngine(t *testing.T) (*Engine, *flow.Queue[Output]) {
	t.Helper()
	sink := flow.NewQueue[Output](64)
	strat, err := NewStrategy(types.ProtocolRadio)
	require.NoError(t, err)
	return newEngine("eng-test", strat, 16, sink), sink
}

func TestEngineLifecycleHappyPath(t *testing.T) {
	eng, _ := testEngine(t)
	assert.Equal(t, types.EngineInitializing, eng.State())

	require.NoError(t, eng.Configure(DefaultRadioTable()))
	assert.Equal(t, types.EngineConfigured, eng.State())

	require.NoError(t, eng.Activate())
	assert.Equal(t, types.EngineActive, eng.State())

	require.NoError(t, eng.Deactivate())
	assert.Equal(t, types.EngineTerminated, eng.State())
}

func TestEngineIllegalOperations(t *testing.T) {
	eng, _ := testEngine(t)

	assert.ErrorIs(t, eng.Activate(), types.ErrInvalidTransition, "activate before configure")
	assert.ErrorIs(t, eng.Deactivate(), types.ErrInvalidTransition, "deactivate before activate")
	assert.Equal(t, types.EngineInitializing, eng.State())

	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())
	require.NoError(t, eng.Deactivate())

	assert.ErrorIs(t, eng.Configure(DefaultRadioTable()), types.ErrInvalidTransition, "terminated engines are not revived")
	assert.ErrorIs(t, eng.Activate(), types.ErrInvalidTransition)
	assert.Equal(t, types.EngineTerminated, eng.State())
}

func TestEngineConfigureValidationPreservesState(t *testing.T) {
	eng, _ := testEngine(t)

	bad := types.MappingTable{
		Name:     "bad",
		Channels: []types.ChannelBinding{{Control: types.ControlLeftStickX, Channel: 99}},
	}
	err := eng.Configure(bad)
	assert.ErrorIs(t, err, types.ErrConfigValidation)
	assert.Equal(t, types.EngineInitializing, eng.State(), "failed validation must not advance state")

	// A valid table still works afterwards.
	require.NoError(t, eng.Configure(DefaultRadioTable()))
	assert.Equal(t, types.EngineConfigured, eng.State())
}

func axisEvent(control types.ControlID, v float64, state types.ControllerState) types.ControllerOutput {
	return types.ControllerOutput{
		Control:   control,
		Kind:      types.OutputAxis,
		Value:     v,
		State:     state,
		Timestamp: time.Now(),
	}
}

func TestEngineDeactivateDrainsAndEmitsFailsafe(t *testing.T) {
	eng, sink := testEngine(t)
	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())

	st := types.ControllerState{RightStick: types.StickPosition{X: 1}}
	eng.offer(axisEvent(types.ControlRightStickX, 1, st))

	require.NoError(t, eng.Deactivate())

	sink.Close()
	var outs []Output
	for out := range sink.C() {
		outs = append(outs, out)
	}
	require.NotEmpty(t, outs, "queued event must be mapped before termination")

	last := outs[len(outs)-1]
	require.True(t, last.HasFrame)
	assert.Equal(t, types.NeutralFrame(), last.Frame, "final output is the failsafe frame")

	first := outs[0]
	assert.Equal(t, types.ChannelMax, first.Frame[types.ChannelRoll], "queued roll event mapped on the way out")
}

func TestEngineIgnoresEventsWhenNotActive(t *testing.T) {
	eng, sink := testEngine(t)
	require.NoError(t, eng.Configure(DefaultRadioTable()))

	st := types.ControllerState{RightStick: types.StickPosition{X: 1}}
	eng.offer(axisEvent(types.ControlRightStickX, 1, st))

	assert.Equal(t, 0, eng.queue.Len(), "inactive engines accept nothing")
	assert.Equal(t, 0, sink.Len())
}

func TestEngineSignificanceFilter(t *testing.T) {
	eng, sink := testEngine(t)
	require.NoError(t, eng.Configure(DefaultRadioTable()))
	require.NoError(t, eng.Activate())

	// First axis event always maps.
	st := types.ControllerState{RightStick: types.StickPosition{X: 0.5}}
	eng.offer(axisEvent(types.ControlRightStickX, 0.5, st))

	// A sub-threshold nudge with the same button set is skipped.
	st2 := types.ControllerState{RightStick: types.StickPosition{X: 0.52}}
	eng.offer(axisEvent(types.ControlRightStickX, 0.52, st2))

	// A button edge always maps regardless of stick movement.
	st3 := st2
	st3.Buttons = st3.Buttons.With(types.ControlButtonA)
	eng.offer(types.ControllerOutput{
		Control: types.ControlButtonA,
		Kind:    types.OutputPress,
		Value:   1,
		State:   st3,
	})

	require.NoError(t, eng.Deactivate())

	sink.Close()
	var outs []Output
	for out := range sink.C() {
		outs = append(outs, out)
	}
	// First axis + button press + failsafe; the nudge is filtered.
	require.Len(t, outs, 3)
	assert.Equal(t, types.ChannelMax, outs[1].Frame[types.ChannelAux3])
}
