package mapping

import (
	"fmt"

	"github.com/opencontroller/padbridge/pkg/types"
)

// Output is one unit of mapped work bound for a protocol handler: either a
// batch of keystrokes or a complete radio channel frame.
type Output struct {
	Protocol types.ProtocolKind
	Keys     []types.KeyEvent
	Frame    types.ChannelFrame
	HasFrame bool
}

// Strategy converts processed controller events into protocol outputs.
// Implementations are stateful (held keys, current frame) and are only
// ever called from their engine's goroutine, so they need no locking.
type Strategy interface {
	// Kind names the protocol this strategy emits for.
	Kind() types.ProtocolKind

	// Apply validates the table and installs it, replacing any previous
	// one. On error the previous table stays in effect.
	Apply(table types.MappingTable) error

	// Map converts one event into zero or more outputs.
	Map(ev types.ControllerOutput) []Output

	// Failsafe returns the neutral output emitted while deactivating:
	// key releases for everything held, or the failsafe frame. ok is
	// false when there is nothing to emit.
	Failsafe() (out Output, ok bool)
}

// NewStrategy builds the strategy for a protocol kind.
func NewStrategy(kind types.ProtocolKind) (Strategy, error) {
	switch kind {
	case types.ProtocolKeyboard:
		return newKeyboardStrategy(), nil
	case types.ProtocolRadio:
		return newRadioStrategy(), nil
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", types.ErrConfigValidation, kind)
	}
}
