package mapping

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

// Op is a lifecycle operation requested on an engine.
type Op string

const (
	OpConfigure  Op = "configure"
	OpActivate   Op = "activate"
	OpDeactivate Op = "deactivate"
)

// transitions is the complete lifecycle table. An absent entry means the
// operation is illegal from that state and fails with ErrInvalidTransition
// leaving the state untouched. Deactivating and Terminated accept nothing;
// Terminated engines are only ever replaced, never revived.
var transitions = map[types.EngineState]map[Op]types.EngineState{
	types.EngineInitializing: {
		OpConfigure: types.EngineConfigured,
	},
	types.EngineConfigured: {
		OpConfigure: types.EngineConfigured,
		OpActivate:  types.EngineActive,
	},
	types.EngineActive: {
		OpConfigure:  types.EngineActive,
		OpDeactivate: types.EngineDeactivating,
	},
	types.EngineDeactivating: {},
	types.EngineTerminated:   {},
}

// Next returns the state reached by applying op in from, or
// ErrInvalidTransition if the pair is not in the table.
func Next(from types.EngineState, op Op) (types.EngineState, error) {
	if to, ok := transitions[from][op]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s from %s", types.ErrInvalidTransition, op, from)
}

// significanceThreshold is the minimum stick/trigger travel between mapped
// events; smaller moves with an unchanged button set are skipped.
const significanceThreshold = 0.05

// Engine is one mapping engine: a lifecycle state machine wrapping a
// strategy, fed by its own bounded queue. Lifecycle operations are
// serialized by a mutex; mapping happens on the engine's goroutine.
type Engine struct {
	id    string
	strat Strategy
	queue *flow.Queue[types.ControllerOutput]
	sink  *flow.Queue[Output]

	mu    sync.Mutex
	state types.EngineState

	// stratMu serializes strategy access between live rebinds and the
	// mapping loop.
	stratMu sync.Mutex

	doneCh chan struct{}
	logger zerolog.Logger

	lastMapped types.ControllerState
	hasMapped  bool
	filtered   uint64
}

func newEngine(id string, strat Strategy, queueSize int, sink *flow.Queue[Output]) *Engine {
	return &Engine{
		id:     id,
		strat:  strat,
		queue:  flow.NewQueue[types.ControllerOutput](queueSize),
		sink:   sink,
		state:  types.EngineInitializing,
		doneCh: make(chan struct{}),
		logger: log.WithEngineID(id),
	}
}

// ID returns the engine's identifier.
func (e *Engine) ID() string { return e.id }

// Kind returns the protocol the engine emits for.
func (e *Engine) Kind() types.ProtocolKind { return e.strat.Kind() }

// State returns the current lifecycle state.
func (e *Engine) State() types.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Configure validates and installs a mapping table. Legal from
// Initializing (first configuration), Configured (reconfigure), and Active
// (live rebind). A validation failure leaves both state and the previous
// table unchanged.
func (e *Engine) Configure(table types.MappingTable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := Next(e.state, OpConfigure)
	if err != nil {
		return err
	}
	e.stratMu.Lock()
	err = e.strat.Apply(table)
	e.stratMu.Unlock()
	if err != nil {
		return err
	}
	e.setState(next)
	e.logger.Info().Str("table", table.Name).Msg("engine configured")
	return nil
}

// Activate starts the engine's mapping loop. Legal only from Configured.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := Next(e.state, OpActivate)
	if err != nil {
		return err
	}
	e.setState(next)
	go e.run()
	e.logger.Info().Msg("engine activated")
	return nil
}

// Deactivate drains the engine synchronously: it stops accepting events,
// lets the loop finish the backlog, emits the strategy's failsafe output,
// and lands in Terminated. Legal only from Active.
func (e *Engine) Deactivate() error {
	e.mu.Lock()
	next, err := Next(e.state, OpDeactivate)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.setState(next)
	e.mu.Unlock()

	e.queue.Close()
	<-e.doneCh

	e.stratMu.Lock()
	out, ok := e.strat.Failsafe()
	e.stratMu.Unlock()
	if ok {
		e.emit(out)
	}

	e.mu.Lock()
	e.setState(types.EngineTerminated)
	e.mu.Unlock()
	e.logger.Info().Msg("engine terminated")
	return nil
}

// offer hands a processed event to the engine. Events are accepted only
// while Active; a full queue evicts its oldest entry.
func (e *Engine) offer(ev types.ControllerOutput) {
	e.mu.Lock()
	active := e.state == types.EngineActive
	e.mu.Unlock()
	if !active {
		return
	}
	dropped, err := e.queue.Push(ev)
	if err != nil {
		return
	}
	if dropped {
		metrics.EventsDroppedTotal.WithLabelValues(e.id).Inc()
		e.logger.Debug().Msg("engine backlogged, oldest event dropped")
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for ev := range e.queue.C() {
		if !e.significant(ev) {
			e.filtered++
			continue
		}
		e.stratMu.Lock()
		outs := e.strat.Map(ev)
		e.stratMu.Unlock()
		for _, out := range outs {
			e.emit(out)
		}
	}
}

// significant reports whether the event moves the controller enough to be
// worth remapping: any button edge always is; pure axis motion must exceed
// the significance threshold on at least one stick axis or trigger since
// the last mapped event.
func (e *Engine) significant(ev types.ControllerOutput) bool {
	if ev.Kind != types.OutputAxis {
		e.lastMapped = ev.State
		e.hasMapped = true
		return true
	}
	if !e.hasMapped {
		e.lastMapped = ev.State
		e.hasMapped = true
		return true
	}
	prev, cur := e.lastMapped, ev.State
	moved := math.Abs(cur.LeftStick.X-prev.LeftStick.X) >= significanceThreshold ||
		math.Abs(cur.LeftStick.Y-prev.LeftStick.Y) >= significanceThreshold ||
		math.Abs(cur.RightStick.X-prev.RightStick.X) >= significanceThreshold ||
		math.Abs(cur.RightStick.Y-prev.RightStick.Y) >= significanceThreshold ||
		math.Abs(cur.LeftTrigger-prev.LeftTrigger) >= significanceThreshold ||
		math.Abs(cur.RightTrigger-prev.RightTrigger) >= significanceThreshold
	if moved || cur.Buttons != prev.Buttons {
		e.lastMapped = cur
		return true
	}
	return false
}

func (e *Engine) emit(out Output) {
	metrics.MappedOutputsTotal.WithLabelValues(string(out.Protocol)).Inc()
	_, _ = e.sink.Push(out)
}

// setState must be called with e.mu held.
func (e *Engine) setState(s types.EngineState) {
	if e.state == s {
		return
	}
	e.logger.Debug().
		Str("from", string(e.state)).
		Str("to", string(s)).
		Msg("engine state change")
	e.state = s
}
