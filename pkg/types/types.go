package types

import "time"

// ControlID identifies a physical control on a gamepad.
type ControlID string

const (
	ControlLeftStickX   ControlID = "left_stick_x"
	ControlLeftStickY   ControlID = "left_stick_y"
	ControlRightStickX  ControlID = "right_stick_x"
	ControlRightStickY  ControlID = "right_stick_y"
	ControlLeftTrigger  ControlID = "left_trigger"
	ControlRightTrigger ControlID = "right_trigger"
	ControlButtonA      ControlID = "button_a"
	ControlButtonB      ControlID = "button_b"
	ControlButtonX      ControlID = "button_x"
	ControlButtonY      ControlID = "button_y"
	ControlLeftBumper   ControlID = "left_bumper"
	ControlRightBumper  ControlID = "right_bumper"
	ControlStart        ControlID = "start"
	ControlSelect       ControlID = "select"
	ControlDPadUp       ControlID = "dpad_up"
	ControlDPadDown     ControlID = "dpad_down"
	ControlDPadLeft     ControlID = "dpad_left"
	ControlDPadRight    ControlID = "dpad_right"
)

// IsAxis reports whether the control produces continuous values.
func (c ControlID) IsAxis() bool {
	switch c {
	case ControlLeftStickX, ControlLeftStickY,
		ControlRightStickX, ControlRightStickY,
		ControlLeftTrigger, ControlRightTrigger:
		return true
	}
	return false
}

// Buttons enumerates all digital controls in a stable order for ButtonSet.
var Buttons = []ControlID{
	ControlButtonA, ControlButtonB, ControlButtonX, ControlButtonY,
	ControlLeftBumper, ControlRightBumper, ControlStart, ControlSelect,
	ControlDPadUp, ControlDPadDown, ControlDPadLeft, ControlDPadRight,
}

var buttonBits = func() map[ControlID]uint32 {
	m := make(map[ControlID]uint32, len(Buttons))
	for i, b := range Buttons {
		m[b] = 1 << uint(i)
	}
	return m
}()

// ButtonSet is a bitmask of currently held buttons.
type ButtonSet uint32

// Has reports whether the button is held.
func (s ButtonSet) Has(b ControlID) bool {
	return s&ButtonSet(buttonBits[b]) != 0
}

// With returns the set with the button held.
func (s ButtonSet) With(b ControlID) ButtonSet {
	return s | ButtonSet(buttonBits[b])
}

// Without returns the set with the button released.
func (s ButtonSet) Without(b ControlID) ButtonSet {
	return s &^ ButtonSet(buttonBits[b])
}

// RawInputEvent is a single sample read from a gamepad device. Values are
// normalized: axes to [-1, 1], triggers to [0, 1], buttons to 0 or 1.
type RawInputEvent struct {
	Control   ControlID
	Value     float64
	Timestamp time.Time
}

// OutputKind classifies a processed controller event.
type OutputKind string

const (
	OutputPress   OutputKind = "press"
	OutputRelease OutputKind = "release"
	OutputAxis    OutputKind = "axis"
)

// StickPosition is a 2D stick reading after deadzone rescaling.
type StickPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ControllerState is a full snapshot of the gamepad after a processed event.
// Being a value type it can be copied into every ControllerOutput without
// aliasing the processor's working state.
type ControllerState struct {
	LeftStick    StickPosition
	RightStick   StickPosition
	LeftTrigger  float64
	RightTrigger float64
	Buttons      ButtonSet
}

// ControllerOutput is a processed event emitted by the event processor.
// State reflects the controller after this event was applied.
type ControllerOutput struct {
	Control   ControlID
	Kind      OutputKind
	Value     float64
	State     ControllerState
	Timestamp time.Time
}

// ProtocolKind names the downstream protocol an engine emits for.
type ProtocolKind string

const (
	ProtocolKeyboard ProtocolKind = "keyboard"
	ProtocolRadio    ProtocolKind = "radio"
)

// EngineState is a mapping engine lifecycle state.
type EngineState string

const (
	EngineInitializing EngineState = "initializing"
	EngineConfigured   EngineState = "configured"
	EngineActive       EngineState = "active"
	EngineDeactivating EngineState = "deactivating"
	EngineTerminated   EngineState = "terminated"
)

// ConnectionState is a protocol handler connection state.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnClosing      ConnectionState = "closing"
)

// Stick identifies one of the two analog sticks.
type Stick string

const (
	StickLeft  Stick = "left"
	StickRight Stick = "right"
)

// Section is a compass region of a stick's travel, plus Center.
type Section string

const (
	SectionCenter    Section = "center"
	SectionNorth     Section = "north"
	SectionNorthEast Section = "north_east"
	SectionEast      Section = "east"
	SectionSouthEast Section = "south_east"
	SectionSouth     Section = "south"
	SectionSouthWest Section = "south_west"
	SectionWest      Section = "west"
	SectionNorthWest Section = "north_west"
)

// RadioChannel is an RC channel index in a transmitted frame.
type RadioChannel int

const (
	ChannelRoll RadioChannel = iota
	ChannelPitch
	ChannelThrottle
	ChannelYaw
	ChannelAux1
	ChannelAux2
	ChannelAux3
	ChannelAux4
	ChannelAux5
	ChannelAux6
	ChannelAux7
	ChannelAux8

	// NumChannels is the number of channels in a radio frame.
	NumChannels = 12
)

// Channel pulse widths in microseconds.
const (
	ChannelMin uint16 = 1000
	ChannelMax uint16 = 2000
	ChannelMid uint16 = (ChannelMin + ChannelMax) / 2
)

// ChannelFrame is one complete set of channel values for the radio link.
type ChannelFrame [NumChannels]uint16

// NeutralFrame returns a frame with every channel at midpoint except
// throttle, which sits at minimum.
func NeutralFrame() ChannelFrame {
	var f ChannelFrame
	for i := range f {
		f[i] = ChannelMid
	}
	f[ChannelThrottle] = ChannelMin
	return f
}

// KeyEvent is a keystroke command for the virtual keyboard sink.
type KeyEvent struct {
	Code  int
	Press bool
}

// KeyBinding maps a button to a key code for press/release emission.
type KeyBinding struct {
	Control ControlID `json:"control"`
	Key     int       `json:"key"`
}

// StickBinding maps stick sections to held key codes. While the stick sits
// in a bound section the key is held; leaving the section releases it.
type StickBinding struct {
	Stick    Stick           `json:"stick"`
	Sections map[Section]int `json:"sections"`
}

// ChannelBinding maps a control to a radio channel. Axes scale into
// [ChannelMin, ChannelMax]; buttons emit Pressed/Released values.
type ChannelBinding struct {
	Control  ControlID    `json:"control"`
	Channel  RadioChannel `json:"channel"`
	Invert   bool         `json:"invert,omitempty"`
	Pressed  uint16       `json:"pressed,omitempty"`
	Released uint16       `json:"released,omitempty"`
}

// MappingTable is the complete binding set for one engine.
type MappingTable struct {
	Name     string           `json:"name"`
	Keys     []KeyBinding     `json:"keys,omitempty"`
	Sticks   []StickBinding   `json:"sticks,omitempty"`
	Channels []ChannelBinding `json:"channels,omitempty"`
}

// Clone returns a deep copy of the table.
func (t MappingTable) Clone() MappingTable {
	out := MappingTable{Name: t.Name}
	out.Keys = append([]KeyBinding(nil), t.Keys...)
	out.Channels = append([]ChannelBinding(nil), t.Channels...)
	for _, sb := range t.Sticks {
		cp := StickBinding{Stick: sb.Stick, Sections: make(map[Section]int, len(sb.Sections))}
		for k, v := range sb.Sections {
			cp.Sections[k] = v
		}
		out.Sticks = append(out.Sticks, cp)
	}
	return out
}
