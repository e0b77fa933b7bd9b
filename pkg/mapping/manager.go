package mapping

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

const (
	defaultQueueSize = 16
	sinkQueueSize    = 64
)

// Config holds manager settings.
type Config struct {
	// QueueSize is the per-engine event queue capacity (default 16).
	QueueSize int
}

// Manager owns the engine registry and the fan-out of processed events.
// Each processed event is offered to every active engine in registration
// order; a backlogged engine drops its oldest queued event rather than
// stalling its siblings. Mapped outputs funnel into one sink queue per
// protocol, consumed by the protocol handlers.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	order   []string

	sinks  map[types.ProtocolKind]*flow.Queue[Output]
	cfg    Config
	logger zerolog.Logger
	doneCh chan struct{}
}

// NewManager creates an empty manager with one output sink per protocol.
func NewManager(cfg Config) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Manager{
		engines: make(map[string]*Engine),
		sinks: map[types.ProtocolKind]*flow.Queue[Output]{
			types.ProtocolKeyboard: flow.NewQueue[Output](sinkQueueSize),
			types.ProtocolRadio:    flow.NewQueue[Output](sinkQueueSize),
		},
		cfg:    cfg,
		logger: log.WithComponent("mapping"),
		doneCh: make(chan struct{}),
	}
}

// Register creates an engine for the protocol kind with a generated ID.
// The engine starts in Initializing and accepts no events until it is
// configured and activated.
func (m *Manager) Register(kind types.ProtocolKind) (*Engine, error) {
	return m.RegisterWithID(uuid.New().String(), kind)
}

// RegisterWithID creates an engine with a caller-chosen ID, used when
// restoring engines from a saved session.
func (m *Manager) RegisterWithID(id string, kind types.ProtocolKind) (*Engine, error) {
	strat, err := NewStrategy(kind)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.engines[id]; exists {
		return nil, fmt.Errorf("%w: engine %q already registered", types.ErrConfigValidation, id)
	}
	eng := newEngine(id, strat, m.cfg.QueueSize, m.sinks[kind])
	m.engines[id] = eng
	m.order = append(m.order, id)
	m.logger.Info().Str("engine_id", id).Str("kind", string(kind)).Msg("engine registered")
	return eng, nil
}

// Engine returns the engine with the given ID.
func (m *Manager) Engine(id string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[id]
	return eng, ok
}

// List returns all engines in registration order.
func (m *Manager) List() []*Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Engine, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.engines[id])
	}
	return out
}

// Configure installs a mapping table on an engine.
func (m *Manager) Configure(id string, table types.MappingTable) error {
	eng, ok := m.Engine(id)
	if !ok {
		return fmt.Errorf("%w: no engine %q", types.ErrConfigValidation, id)
	}
	return eng.Configure(table)
}

// Activate starts an engine's mapping loop.
func (m *Manager) Activate(id string) error {
	eng, ok := m.Engine(id)
	if !ok {
		return fmt.Errorf("%w: no engine %q", types.ErrConfigValidation, id)
	}
	return eng.Activate()
}

// Deactivate drains an engine and leaves it Terminated.
func (m *Manager) Deactivate(id string) error {
	eng, ok := m.Engine(id)
	if !ok {
		return fmt.Errorf("%w: no engine %q", types.ErrConfigValidation, id)
	}
	return eng.Deactivate()
}

// Remove deletes a terminated engine from the registry.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[id]
	if !ok {
		return fmt.Errorf("%w: no engine %q", types.ErrConfigValidation, id)
	}
	if eng.State() != types.EngineTerminated {
		return fmt.Errorf("%w: remove from %s", types.ErrInvalidTransition, eng.State())
	}
	delete(m.engines, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.logger.Info().Str("engine_id", id).Msg("engine removed")
	return nil
}

// Outputs returns the sink queue for a protocol.
func (m *Manager) Outputs(kind types.ProtocolKind) *flow.Queue[Output] {
	return m.sinks[kind]
}

// StateCounts reports the number of engines in each lifecycle state.
func (m *Manager) StateCounts() map[types.EngineState]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[types.EngineState]int)
	for _, eng := range m.engines {
		counts[eng.State()]++
	}
	return counts
}

// Dispatch offers one processed event to every active engine in
// registration order.
func (m *Manager) Dispatch(ev types.ControllerOutput) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DispatchDuration)

	m.mu.RLock()
	engines := make([]*Engine, 0, len(m.order))
	for _, id := range m.order {
		engines = append(engines, m.engines[id])
	}
	m.mu.RUnlock()

	for _, eng := range engines {
		eng.offer(ev)
	}
}

// Start launches the dispatch loop over the processor's output queue. The
// loop ends when that queue closes.
func (m *Manager) Start(in *flow.Queue[types.ControllerOutput]) {
	go func() {
		defer close(m.doneCh)
		for ev := range in.C() {
			m.Dispatch(ev)
		}
		m.logger.Info().Msg("dispatch loop stopped")
	}()
}

// Done is closed when the dispatch loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.doneCh
}

// Shutdown deactivates every engine that is still active and closes the
// output sinks. Engines that cannot be deactivated (already terminated or
// never activated) are skipped.
func (m *Manager) Shutdown() {
	for _, eng := range m.List() {
		if eng.State() == types.EngineActive {
			if err := eng.Deactivate(); err != nil {
				m.logger.Warn().Err(err).Str("engine_id", eng.ID()).Msg("deactivate failed")
			}
		}
	}
	for _, sink := range m.sinks {
		sink.Close()
	}
	m.logger.Info().Msg("mapping manager shut down")
}
