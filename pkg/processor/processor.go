package processor

import (
	"math"
	"time"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

const (
	defaultInterval  = 130 * time.Millisecond
	defaultDeadzone  = 0.05
	defaultEpsilon   = 0.01
	defaultQueueSize = 64
	statsInterval    = 10 * time.Second
)

// Config holds processor settings.
type Config struct {
	// Interval is the processing cadence; each cycle drains everything
	// queued since the last one (default 130ms).
	Interval time.Duration

	// Deadzone is the stick/trigger magnitude below which a value reads
	// as zero; values above it are rescaled to preserve full travel
	// (default 0.05).
	Deadzone float64

	// Epsilon is the minimum axis change that produces an output; smaller
	// moves are treated as jitter (default 0.01).
	Epsilon float64

	// QueueSize is the capacity of the output queue (default 64).
	QueueSize int
}

// Processor turns raw device samples into ControllerOutput events: it
// validates, applies the deadzone, suppresses jitter, detects button
// edges, and stamps every output with a state snapshot. Arrival order is
// preserved. It terminates when its input queue closes, closing its own
// output queue in turn.
type Processor struct {
	in  *flow.Queue[types.RawInputEvent]
	out *flow.Queue[types.ControllerOutput]
	cfg Config

	state     types.ControllerState
	lastAxis  map[types.ControlID]float64
	pressedAt map[types.ControlID]time.Time

	doneCh chan struct{}

	processed uint64
	filtered  uint64
}

// New creates a processor reading from in.
func New(in *flow.Queue[types.RawInputEvent], cfg Config) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Deadzone <= 0 {
		cfg.Deadzone = defaultDeadzone
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = defaultEpsilon
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Processor{
		in:        in,
		out:       flow.NewQueue[types.ControllerOutput](cfg.QueueSize),
		cfg:       cfg,
		lastAxis:  make(map[types.ControlID]float64),
		pressedAt: make(map[types.ControlID]time.Time),
		doneCh:    make(chan struct{}),
	}
}

// Events returns the processed event queue. It closes when the processor
// terminates.
func (p *Processor) Events() *flow.Queue[types.ControllerOutput] {
	return p.out
}

// Done is closed when the processor has terminated.
func (p *Processor) Done() <-chan struct{} {
	return p.doneCh
}

// Start launches the processing loop.
func (p *Processor) Start() {
	go p.run()
}

func (p *Processor) run() {
	logger := log.WithComponent("processor")
	logger.Info().
		Dur("interval", p.cfg.Interval).
		Float64("deadzone", p.cfg.Deadzone).
		Msg("processor started")

	defer func() {
		p.out.Close()
		close(p.doneCh)
		logger.Info().Msg("processor stopped")
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-stats.C:
			total := p.processed + p.filtered
			if total > 0 {
				logger.Debug().
					Uint64("processed", p.processed).
					Uint64("filtered", p.filtered).
					Float64("efficiency", float64(p.processed)/float64(total)).
					Msg("processing stats")
			}
			p.processed, p.filtered = 0, 0

		case <-ticker.C:
			if !p.drain() {
				return
			}
		}
	}
}

// drain processes everything queued since the last cycle, in order. It
// returns false once the input queue has closed.
func (p *Processor) drain() bool {
	for {
		select {
		case ev, ok := <-p.in.C():
			if !ok {
				return false
			}
			p.process(ev)
		default:
			return true
		}
	}
}

func (p *Processor) process(ev types.RawInputEvent) {
	if !validate(ev) {
		metrics.MalformedEventsTotal.Inc()
		plog := log.WithComponent("processor")
		plog.Warn().
			Str("control", string(ev.Control)).
			Float64("value", ev.Value).
			Msg("malformed event discarded")
		return
	}

	if ev.Control.IsAxis() {
		p.processAxis(ev)
	} else {
		p.processButton(ev)
	}
}

func (p *Processor) processAxis(ev types.RawInputEvent) {
	v := applyDeadzone(ev.Value, p.cfg.Deadzone)
	if math.Abs(v-p.lastAxis[ev.Control]) < p.cfg.Epsilon {
		p.filtered++
		metrics.DebouncedEventsTotal.Inc()
		return
	}
	p.lastAxis[ev.Control] = v
	p.applyAxisState(ev.Control, v)
	p.emit(types.ControllerOutput{
		Control:   ev.Control,
		Kind:      types.OutputAxis,
		Value:     v,
		State:     p.state,
		Timestamp: ev.Timestamp,
	})
}

func (p *Processor) processButton(ev types.RawInputEvent) {
	pressed := ev.Value > 0.5
	if pressed == p.state.Buttons.Has(ev.Control) {
		p.filtered++
		metrics.DebouncedEventsTotal.Inc()
		return
	}

	kind := types.OutputRelease
	value := 0.0
	if pressed {
		kind = types.OutputPress
		value = 1.0
		p.state.Buttons = p.state.Buttons.With(ev.Control)
		p.pressedAt[ev.Control] = ev.Timestamp
	} else {
		p.state.Buttons = p.state.Buttons.Without(ev.Control)
		if at, ok := p.pressedAt[ev.Control]; ok {
			delete(p.pressedAt, ev.Control)
			plog := log.WithComponent("processor")
			plog.Debug().
				Str("control", string(ev.Control)).
				Dur("held", ev.Timestamp.Sub(at)).
				Msg("button released")
		}
	}

	p.emit(types.ControllerOutput{
		Control:   ev.Control,
		Kind:      kind,
		Value:     value,
		State:     p.state,
		Timestamp: ev.Timestamp,
	})
}

func (p *Processor) applyAxisState(c types.ControlID, v float64) {
	switch c {
	case types.ControlLeftStickX:
		p.state.LeftStick.X = v
	case types.ControlLeftStickY:
		p.state.LeftStick.Y = v
	case types.ControlRightStickX:
		p.state.RightStick.X = v
	case types.ControlRightStickY:
		p.state.RightStick.Y = v
	case types.ControlLeftTrigger:
		p.state.LeftTrigger = v
	case types.ControlRightTrigger:
		p.state.RightTrigger = v
	}
}

func (p *Processor) emit(out types.ControllerOutput) {
	p.processed++
	metrics.ProcessedEventsTotal.WithLabelValues(string(out.Kind)).Inc()
	_, _ = p.out.Push(out)
}

func validate(ev types.RawInputEvent) bool {
	if math.IsNaN(ev.Value) || math.IsInf(ev.Value, 0) {
		return false
	}
	switch {
	case ev.Control == types.ControlLeftTrigger || ev.Control == types.ControlRightTrigger:
		return ev.Value >= 0 && ev.Value <= 1
	case ev.Control.IsAxis():
		return ev.Value >= -1 && ev.Value <= 1
	default:
		for _, b := range types.Buttons {
			if b == ev.Control {
				return ev.Value == 0 || ev.Value == 1
			}
		}
		return false
	}
}

// applyDeadzone zeroes values inside the deadzone and rescales the rest so
// the usable range still spans the full output interval.
func applyDeadzone(v, dz float64) float64 {
	if math.Abs(v) < dz {
		return 0
	}
	sign := 1.0
	if v < 0 {
		sign = -1.0
	}
	return sign * (math.Abs(v) - dz) / (1 - dz)
}
