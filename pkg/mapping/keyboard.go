package mapping

import (
	"fmt"
	"math"

	"github.com/opencontroller/padbridge/pkg/types"
)

const (
	// regionEnterRadius is the stick magnitude at which a deflection
	// leaves Center.
	regionEnterRadius = 0.5

	// regionHysteresis widens whichever section the stick is currently
	// in, so jitter at a boundary cannot toggle keys.
	regionHysteresis = 0.08

	// sectionHalfWidth is half the angular span of a compass section.
	sectionHalfWidth = math.Pi / 8
)

// keyboardStrategy maps button edges to key press/release pairs and stick
// positions to held section keys.
type keyboardStrategy struct {
	keys   map[types.ControlID]int
	sticks map[types.Stick]*stickRegion

	held           map[int]bool
	pendingRelease []int
}

type stickRegion struct {
	sections map[types.Section]int
	current  types.Section
}

func newKeyboardStrategy() *keyboardStrategy {
	return &keyboardStrategy{
		keys:   make(map[types.ControlID]int),
		sticks: make(map[types.Stick]*stickRegion),
		held:   make(map[int]bool),
	}
}

func (s *keyboardStrategy) Kind() types.ProtocolKind { return types.ProtocolKeyboard }

func (s *keyboardStrategy) Apply(table types.MappingTable) error {
	if len(table.Channels) > 0 {
		return fmt.Errorf("%w: keyboard table carries channel bindings", types.ErrConfigValidation)
	}

	keys := make(map[types.ControlID]int, len(table.Keys))
	for _, kb := range table.Keys {
		if kb.Control.IsAxis() {
			return fmt.Errorf("%w: key binding on axis %q", types.ErrConfigValidation, kb.Control)
		}
		if kb.Key <= 0 {
			return fmt.Errorf("%w: key binding for %q has no key code", types.ErrConfigValidation, kb.Control)
		}
		if _, dup := keys[kb.Control]; dup {
			return fmt.Errorf("%w: duplicate key binding for %q", types.ErrConfigValidation, kb.Control)
		}
		keys[kb.Control] = kb.Key
	}

	sticks := make(map[types.Stick]*stickRegion, len(table.Sticks))
	for _, sb := range table.Sticks {
		if sb.Stick != types.StickLeft && sb.Stick != types.StickRight {
			return fmt.Errorf("%w: unknown stick %q", types.ErrConfigValidation, sb.Stick)
		}
		if _, dup := sticks[sb.Stick]; dup {
			return fmt.Errorf("%w: duplicate stick binding for %q", types.ErrConfigValidation, sb.Stick)
		}
		sections := make(map[types.Section]int, len(sb.Sections))
		for sec, code := range sb.Sections {
			if !validSection(sec) {
				return fmt.Errorf("%w: unknown section %q", types.ErrConfigValidation, sec)
			}
			if code <= 0 {
				return fmt.Errorf("%w: section %q has no key code", types.ErrConfigValidation, sec)
			}
			sections[sec] = code
		}
		sticks[sb.Stick] = &stickRegion{sections: sections, current: types.SectionCenter}
	}

	// Keys held under the old table are released on the next mapped
	// event so a live rebind cannot strand a key down.
	for code := range s.held {
		s.pendingRelease = append(s.pendingRelease, code)
	}
	s.held = make(map[int]bool)

	s.keys = keys
	s.sticks = sticks
	return nil
}

func (s *keyboardStrategy) Map(ev types.ControllerOutput) []Output {
	var events []types.KeyEvent

	for _, code := range s.pendingRelease {
		events = append(events, types.KeyEvent{Code: code, Press: false})
	}
	s.pendingRelease = nil

	switch ev.Kind {
	case types.OutputPress:
		if code, ok := s.keys[ev.Control]; ok {
			events = append(events, types.KeyEvent{Code: code, Press: true})
			s.held[code] = true
		}
	case types.OutputRelease:
		if code, ok := s.keys[ev.Control]; ok {
			events = append(events, types.KeyEvent{Code: code, Press: false})
			delete(s.held, code)
		}
	case types.OutputAxis:
		events = append(events, s.updateStick(types.StickLeft, ev.State.LeftStick)...)
		events = append(events, s.updateStick(types.StickRight, ev.State.RightStick)...)
	}

	if len(events) == 0 {
		return nil
	}
	return []Output{{Protocol: types.ProtocolKeyboard, Keys: events}}
}

func (s *keyboardStrategy) updateStick(stick types.Stick, pos types.StickPosition) []types.KeyEvent {
	region, ok := s.sticks[stick]
	if !ok {
		return nil
	}
	next := sectionFor(pos, region.current)
	if next == region.current {
		return nil
	}

	var events []types.KeyEvent
	if code, bound := region.sections[region.current]; bound {
		events = append(events, types.KeyEvent{Code: code, Press: false})
		delete(s.held, code)
	}
	if code, bound := region.sections[next]; bound {
		events = append(events, types.KeyEvent{Code: code, Press: true})
		s.held[code] = true
	}
	region.current = next
	return events
}

func (s *keyboardStrategy) Failsafe() (Output, bool) {
	var events []types.KeyEvent
	for _, code := range s.pendingRelease {
		events = append(events, types.KeyEvent{Code: code, Press: false})
	}
	s.pendingRelease = nil
	for code := range s.held {
		events = append(events, types.KeyEvent{Code: code, Press: false})
	}
	s.held = make(map[int]bool)
	for _, region := range s.sticks {
		region.current = types.SectionCenter
	}
	if len(events) == 0 {
		return Output{}, false
	}
	return Output{Protocol: types.ProtocolKeyboard, Keys: events}, true
}

// sectionFor resolves a stick position to a section, biased toward the
// current one: the magnitude boundary and the angular boundaries of the
// current section are widened by the hysteresis margin.
func sectionFor(pos types.StickPosition, current types.Section) types.Section {
	mag := math.Hypot(pos.X, pos.Y)
	enter := regionEnterRadius + regionHysteresis
	if current != types.SectionCenter {
		enter = regionEnterRadius - regionHysteresis
	}
	if mag < enter {
		return types.SectionCenter
	}

	// Screen coordinates put +Y down; flip so north is up.
	angle := math.Atan2(-pos.Y, pos.X)
	next := bucketFor(angle)
	if current != types.SectionCenter && next != current {
		if angularDistance(angle, sectionCenters[current]) <= sectionHalfWidth+regionHysteresis {
			return current
		}
	}
	return next
}

var sectionCenters = map[types.Section]float64{
	types.SectionEast:      0,
	types.SectionNorthEast: math.Pi / 4,
	types.SectionNorth:     math.Pi / 2,
	types.SectionNorthWest: 3 * math.Pi / 4,
	types.SectionWest:      math.Pi,
	types.SectionSouthWest: -3 * math.Pi / 4,
	types.SectionSouth:     -math.Pi / 2,
	types.SectionSouthEast: -math.Pi / 4,
}

func bucketFor(angle float64) types.Section {
	best := types.SectionEast
	bestDist := math.MaxFloat64
	for sec, center := range sectionCenters {
		if d := angularDistance(angle, center); d < bestDist {
			best, bestDist = sec, d
		}
	}
	return best
}

func angularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// DefaultKeyboardTable binds the left stick compass sections to WASD and
// the face buttons to common action keys, using Linux input key codes.
func DefaultKeyboardTable() types.MappingTable {
	return types.MappingTable{
		Name: "wasd",
		Keys: []types.KeyBinding{
			{Control: types.ControlButtonA, Key: 57},     // space
			{Control: types.ControlButtonB, Key: 46},     // c
			{Control: types.ControlButtonX, Key: 18},     // e
			{Control: types.ControlButtonY, Key: 19},     // r
			{Control: types.ControlLeftBumper, Key: 42},  // left shift
			{Control: types.ControlRightBumper, Key: 29}, // left ctrl
		},
		Sticks: []types.StickBinding{
			{Stick: types.StickLeft, Sections: map[types.Section]int{
				types.SectionNorth: 17, // w
				types.SectionWest:  30, // a
				types.SectionSouth: 31, // s
				types.SectionEast:  32, // d
			}},
		},
	}
}

func validSection(s types.Section) bool {
	if s == types.SectionCenter {
		return true
	}
	_, ok := sectionCenters[s]
	return ok
}
