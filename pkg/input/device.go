package input

import "github.com/opencontroller/padbridge/pkg/types"

// DeviceInfo describes an attached gamepad.
type DeviceInfo struct {
	Index int
	Name  string
}

// Device is a source of normalized gamepad samples. Implementations
// normalize stick axes to [-1, 1], triggers to [0, 1], and buttons to
// 0 or 1 before handing them to the collector.
type Device interface {
	// Name returns the device's human-readable name.
	Name() string

	// Poll returns one event per control that changed since the previous
	// poll, in a stable control order. It returns ErrDeviceDisconnected
	// once the device has gone away; that error is terminal.
	Poll() ([]types.RawInputEvent, error)

	// Close releases the device.
	Close() error
}
