package input

import (
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/opencontroller/padbridge/pkg/types"
)

// Init brings up the SDL game controller subsystem. Call once before
// ListDevices or OpenDevice; pair with Quit on shutdown.
func Init() error {
	if err := sdl.Init(sdl.INIT_GAMECONTROLLER); err != nil {
		return fmt.Errorf("sdl init: %w", err)
	}
	return nil
}

// Quit shuts down SDL.
func Quit() {
	sdl.Quit()
}

// ListDevices enumerates attached gamepads. Joysticks without a game
// controller mapping are skipped.
func ListDevices() []DeviceInfo {
	var out []DeviceInfo
	for i := 0; i < sdl.NumJoysticks(); i++ {
		if !sdl.IsGameController(i) {
			continue
		}
		out = append(out, DeviceInfo{Index: i, Name: sdl.GameControllerNameForIndex(i)})
	}
	return out
}

// OpenDevice opens the gamepad at the given enumeration index.
func OpenDevice(index int) (Device, error) {
	pad := sdl.GameControllerOpen(index)
	if pad == nil || !pad.Attached() {
		return nil, fmt.Errorf("open gamepad %d: %w", index, types.ErrDeviceDisconnected)
	}
	return &sdlDevice{
		pad:  pad,
		prev: make(map[types.ControlID]float64),
	}, nil
}

type axisControl struct {
	axis    sdl.GameControllerAxis
	control types.ControlID
	trigger bool
}

type buttonControl struct {
	button  sdl.GameControllerButton
	control types.ControlID
}

// Stable poll order: axes first, then buttons.
var axisControls = []axisControl{
	{sdl.CONTROLLER_AXIS_LEFTX, types.ControlLeftStickX, false},
	{sdl.CONTROLLER_AXIS_LEFTY, types.ControlLeftStickY, false},
	{sdl.CONTROLLER_AXIS_RIGHTX, types.ControlRightStickX, false},
	{sdl.CONTROLLER_AXIS_RIGHTY, types.ControlRightStickY, false},
	{sdl.CONTROLLER_AXIS_TRIGGERLEFT, types.ControlLeftTrigger, true},
	{sdl.CONTROLLER_AXIS_TRIGGERRIGHT, types.ControlRightTrigger, true},
}

var buttonControls = []buttonControl{
	{sdl.CONTROLLER_BUTTON_A, types.ControlButtonA},
	{sdl.CONTROLLER_BUTTON_B, types.ControlButtonB},
	{sdl.CONTROLLER_BUTTON_X, types.ControlButtonX},
	{sdl.CONTROLLER_BUTTON_Y, types.ControlButtonY},
	{sdl.CONTROLLER_BUTTON_LEFTSHOULDER, types.ControlLeftBumper},
	{sdl.CONTROLLER_BUTTON_RIGHTSHOULDER, types.ControlRightBumper},
	{sdl.CONTROLLER_BUTTON_START, types.ControlStart},
	{sdl.CONTROLLER_BUTTON_BACK, types.ControlSelect},
	{sdl.CONTROLLER_BUTTON_DPAD_UP, types.ControlDPadUp},
	{sdl.CONTROLLER_BUTTON_DPAD_DOWN, types.ControlDPadDown},
	{sdl.CONTROLLER_BUTTON_DPAD_LEFT, types.ControlDPadLeft},
	{sdl.CONTROLLER_BUTTON_DPAD_RIGHT, types.ControlDPadRight},
}

// sdlDevice reads a GameController by polled snapshot diffing: every Poll
// samples all controls and emits events only for changed values.
type sdlDevice struct {
	pad  *sdl.GameController
	prev map[types.ControlID]float64
}

func (d *sdlDevice) Name() string {
	return d.pad.Joystick().Name()
}

func (d *sdlDevice) Poll() ([]types.RawInputEvent, error) {
	sdl.GameControllerUpdate()
	if !d.pad.Attached() {
		return nil, types.ErrDeviceDisconnected
	}

	now := time.Now()
	var evs []types.RawInputEvent

	for _, ac := range axisControls {
		raw := d.pad.Axis(ac.axis)
		var v float64
		if ac.trigger {
			v = clamp(float64(raw)/32767.0, 0, 1)
		} else {
			v = clamp(float64(raw)/32767.0, -1, 1)
		}
		if d.prev[ac.control] != v {
			d.prev[ac.control] = v
			evs = append(evs, types.RawInputEvent{Control: ac.control, Value: v, Timestamp: now})
		}
	}

	for _, bc := range buttonControls {
		v := 0.0
		if d.pad.Button(bc.button) == 1 {
			v = 1.0
		}
		if d.prev[bc.control] != v {
			d.prev[bc.control] = v
			evs = append(evs, types.RawInputEvent{Control: bc.control, Value: v, Timestamp: now})
		}
	}

	return evs, nil
}

func (d *sdlDevice) Close() error {
	d.pad.Close()
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
