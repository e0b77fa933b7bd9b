package mapping

import (
	"fmt"

	"github.com/opencontroller/padbridge/pkg/types"
)

// radioStrategy maps controls onto RC channels: sticks scale around the
// midpoint, triggers span the full range, and buttons snap between their
// pressed and released values. Every mapped event yields the complete
// current frame.
type radioStrategy struct {
	bindings map[types.ControlID][]types.ChannelBinding
	frame    types.ChannelFrame
	failsafe types.ChannelFrame
}

func newRadioStrategy() *radioStrategy {
	return &radioStrategy{
		bindings: make(map[types.ControlID][]types.ChannelBinding),
		frame:    types.NeutralFrame(),
		failsafe: types.NeutralFrame(),
	}
}

func (s *radioStrategy) Kind() types.ProtocolKind { return types.ProtocolRadio }

func (s *radioStrategy) Apply(table types.MappingTable) error {
	if len(table.Keys) > 0 || len(table.Sticks) > 0 {
		return fmt.Errorf("%w: radio table carries key bindings", types.ErrConfigValidation)
	}
	if len(table.Channels) == 0 {
		return fmt.Errorf("%w: radio table has no channel bindings", types.ErrConfigValidation)
	}

	bindings := make(map[types.ControlID][]types.ChannelBinding)
	seen := make(map[types.RadioChannel]bool)
	for _, cb := range table.Channels {
		if cb.Channel < 0 || cb.Channel >= types.NumChannels {
			return fmt.Errorf("%w: channel %d out of range", types.ErrConfigValidation, cb.Channel)
		}
		if seen[cb.Channel] {
			return fmt.Errorf("%w: channel %d bound twice", types.ErrConfigValidation, cb.Channel)
		}
		seen[cb.Channel] = true
		if !knownControl(cb.Control) {
			return fmt.Errorf("%w: unknown control %q", types.ErrConfigValidation, cb.Control)
		}
		if cb.Pressed != 0 && (cb.Pressed < types.ChannelMin || cb.Pressed > types.ChannelMax) {
			return fmt.Errorf("%w: pressed value %d out of range", types.ErrConfigValidation, cb.Pressed)
		}
		if cb.Released != 0 && (cb.Released < types.ChannelMin || cb.Released > types.ChannelMax) {
			return fmt.Errorf("%w: released value %d out of range", types.ErrConfigValidation, cb.Released)
		}
		bindings[cb.Control] = append(bindings[cb.Control], cb)
	}

	// The live frame carries over so a rebind does not glitch the link.
	s.bindings = bindings
	return nil
}

func (s *radioStrategy) Map(ev types.ControllerOutput) []Output {
	bound, ok := s.bindings[ev.Control]
	if !ok {
		return nil
	}

	for _, cb := range bound {
		var val uint16
		switch ev.Kind {
		case types.OutputAxis:
			val = scaleAxis(ev.Control, ev.Value)
			if cb.Invert {
				val = types.ChannelMin + types.ChannelMax - val
			}
		case types.OutputPress:
			val = cb.Pressed
			if val == 0 {
				val = types.ChannelMax
			}
		case types.OutputRelease:
			val = cb.Released
			if val == 0 {
				val = types.ChannelMin
			}
		}
		s.frame[cb.Channel] = val
	}

	return []Output{{Protocol: types.ProtocolRadio, Frame: s.frame, HasFrame: true}}
}

func (s *radioStrategy) Failsafe() (Output, bool) {
	s.frame = s.failsafe
	return Output{Protocol: types.ProtocolRadio, Frame: s.frame, HasFrame: true}, true
}

// scaleAxis converts a normalized value into a pulse width: sticks span
// [-1, 1] around the midpoint, triggers span [0, 1] across the full range.
func scaleAxis(control types.ControlID, v float64) uint16 {
	span := float64(types.ChannelMax - types.ChannelMin)
	var out float64
	if control == types.ControlLeftTrigger || control == types.ControlRightTrigger {
		out = float64(types.ChannelMin) + v*span
	} else {
		out = float64(types.ChannelMid) + v*span/2
	}
	if out < float64(types.ChannelMin) {
		out = float64(types.ChannelMin)
	}
	if out > float64(types.ChannelMax) {
		out = float64(types.ChannelMax)
	}
	return uint16(out + 0.5)
}

func knownControl(c types.ControlID) bool {
	if c.IsAxis() {
		return true
	}
	for _, b := range types.Buttons {
		if b == c {
			return true
		}
	}
	return false
}

// DefaultRadioTable is the Mode-2 layout: right stick on roll and pitch,
// left stick on yaw and throttle, triggers on Aux1/Aux2, and the A and B
// buttons on Aux3/Aux4. Pitch and throttle are inverted so pushing the
// stick forward raises the channel.
func DefaultRadioTable() types.MappingTable {
	return types.MappingTable{
		Name: "mode2",
		Channels: []types.ChannelBinding{
			{Control: types.ControlRightStickX, Channel: types.ChannelRoll},
			{Control: types.ControlRightStickY, Channel: types.ChannelPitch, Invert: true},
			{Control: types.ControlLeftStickY, Channel: types.ChannelThrottle, Invert: true},
			{Control: types.ControlLeftStickX, Channel: types.ChannelYaw},
			{Control: types.ControlLeftTrigger, Channel: types.ChannelAux1},
			{Control: types.ControlRightTrigger, Channel: types.ChannelAux2},
			{Control: types.ControlButtonA, Channel: types.ChannelAux3},
			{Control: types.ControlButtonB, Channel: types.ChannelAux4},
		},
	}
}
