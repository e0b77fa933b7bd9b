package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/input"
	"github.com/opencontroller/padbridge/pkg/keyout"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/mapping"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/processor"
	"github.com/opencontroller/padbridge/pkg/protocol"
	"github.com/opencontroller/padbridge/pkg/session"
	"github.com/opencontroller/padbridge/pkg/types"
)

// Config collects the tunables of every pipeline stage. Zero values fall
// back to each stage's defaults.
type Config struct {
	Input     input.Config
	Processor processor.Config
	Mapping   mapping.Config
	Autosave  time.Duration
	Retry     protocol.RetryPolicy
}

// Deps are the injected externals. Device, Store, and Live are required;
// the rest default to the real implementations and exist so tests can
// substitute fakes.
type Deps struct {
	Device input.Device
	Store  *session.Store
	Live   *session.Live

	// KeySink defaults to a uinput-backed virtual keyboard.
	KeySink *keyout.Sink

	// RadioDialer defaults to opening the serial port named in the live
	// radio configuration at dial time.
	RadioDialer protocol.LinkDialer

	// NewBroker defaults to the MQTT broker handler constructor.
	NewBroker func(types.BrokerServer, []string, protocol.RetryPolicy) *protocol.BrokerHandler
}

// App supervises the whole pipeline: collector, processor, mapping
// manager, protocol handlers, output sinks, and persistence. Control
// plane operations that touch shared wiring (broker rebuilds, engine
// registry changes, session loads) are serialized through an intent
// queue; everything else goes straight to the owning task.
type App struct {
	cfg  Config
	live *session.Live

	sessions *session.Manager
	autosave *session.Autosave

	collector *input.Collector
	proc      *processor.Processor
	mapper    *mapping.Manager
	keySink   *keyout.Sink
	gauges    *metrics.Collector

	radio     *protocol.RadioHandler
	newBroker func(types.BrokerServer, []string, protocol.RetryPolicy) *protocol.BrokerHandler

	// broker is owned by the intent loop; Shutdown reads it only after
	// the loop has exited.
	broker *protocol.BrokerHandler

	brokerStatus *flow.Value[protocol.Status]
	radioStatus  *flow.Value[protocol.Status]
	linkStats    *flow.Value[protocol.LinkStats]

	intentCh chan intent
	stopCh   chan struct{}
	loopDone chan struct{}
	pumpDone chan struct{}

	wg           sync.WaitGroup
	shutdownOnce sync.Once
	logger       zerolog.Logger
}

// New wires the pipeline without starting it.
func New(cfg Config, deps Deps) (*App, error) {
	keySink := deps.KeySink
	if keySink == nil {
		var err error
		keySink, err = keyout.New()
		if err != nil {
			return nil, err
		}
	}

	newBroker := deps.NewBroker
	if newBroker == nil {
		newBroker = protocol.NewBrokerHandler
	}

	live := deps.Live
	radioDialer := deps.RadioDialer
	if radioDialer == nil {
		radioDialer = func(ctx context.Context) (protocol.Link, error) {
			return protocol.SerialDialer(live.Snapshot().Radio)(ctx)
		}
	}

	sessions := session.NewManager(deps.Store, live)

	a := &App{
		cfg:  cfg,
		live: live,

		sessions: sessions,
		autosave: session.NewAutosave(sessions, cfg.Autosave),

		collector: input.NewCollector(deps.Device, cfg.Input),
		mapper:    mapping.NewManager(cfg.Mapping),
		keySink:   keySink,

		radio:     protocol.NewRadioHandler(radioDialer, cfg.Retry),
		newBroker: newBroker,

		brokerStatus: flow.NewValue[protocol.Status](),
		radioStatus:  flow.NewValue[protocol.Status](),
		linkStats:    flow.NewValue[protocol.LinkStats](),

		intentCh: make(chan intent),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
		pumpDone: make(chan struct{}),

		logger: log.WithComponent("app"),
	}
	a.proc = processor.New(a.collector.Events(), cfg.Processor)
	a.gauges = metrics.NewCollector(a.mapper)
	return a, nil
}

// Start launches every task and restores engines from the live session.
func (a *App) Start() {
	a.sessions.Start()
	a.autosave.Start()

	a.collector.Start()
	a.proc.Start()
	a.mapper.Start(a.proc.Events())
	a.keySink.Start(a.mapper.Outputs(types.ProtocolKeyboard))
	a.gauges.Start()

	a.radio.Start()
	a.mirrorStatus(a.radio.Status(), a.radioStatus)
	a.pumpTelemetry(a.radio)
	go a.radioPump()

	a.restoreEngines(a.live.Snapshot())

	go a.intentLoop()

	if snap := a.live.Snapshot(); snap.Broker.AutoConnect && snap.Broker.Server.URL != "" {
		go func() {
			if err := a.ConnectBroker(context.Background(), ""); err != nil {
				a.logger.Warn().Err(err).Msg("broker auto-connect failed")
			}
		}()
	}

	a.logger.Info().Msg("pipeline started")
}

// InputDone is closed when the collector terminates, including on device
// disconnect. InputErr reports why.
func (a *App) InputDone() <-chan struct{} { return a.collector.Done() }

// InputErr returns the collector's terminal error once InputDone closed.
func (a *App) InputErr() error { return a.collector.Err() }

// BrokerStatus is the latest broker connection status. It survives broker
// handler rebuilds across profile switches.
func (a *App) BrokerStatus() *flow.Value[protocol.Status] { return a.brokerStatus }

// RadioStatus is the latest radio connection status.
func (a *App) RadioStatus() *flow.Value[protocol.Status] { return a.radioStatus }

// LinkStats is the latest decoded radio link statistics.
func (a *App) LinkStats() *flow.Value[protocol.LinkStats] { return a.linkStats }

// Engines lists the registered mapping engines in registration order.
func (a *App) Engines() []*mapping.Engine { return a.mapper.List() }

// Session returns a snapshot of the live session document.
func (a *App) Session() *types.SessionConfig { return a.live.Snapshot() }

// SaveSession persists the live session under its current name.
func (a *App) SaveSession(ctx context.Context) error { return a.sessions.Save(ctx) }

// SaveSessionAs persists the live session under a new name.
func (a *App) SaveSessionAs(ctx context.Context, name string) error {
	return a.sessions.SaveAs(ctx, name)
}

// ListSessions returns the saved session names.
func (a *App) ListSessions(ctx context.Context) ([]string, error) { return a.sessions.List(ctx) }

// DeleteSession removes a saved session.
func (a *App) DeleteSession(ctx context.Context, name string) error {
	return a.sessions.Delete(ctx, name)
}

// Shutdown tears the pipeline down in dependency order: control plane,
// protocol handlers, engines, input, then one final synchronous save.
func (a *App) Shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() {
		a.logger.Info().Msg("shutting down")

		close(a.stopCh)
		<-a.loopDone

		if a.broker != nil {
			a.broker.Close()
		}

		// Park the link on neutral before dropping it. Best effort: a
		// link that was never connected rejects the frame.
		_ = a.radio.Send(types.NeutralFrame())
		a.radio.Close()

		// Deactivating engines flushes their failsafe outputs into the
		// sinks before the sinks close, so the key sink still sees every
		// pending release.
		a.mapper.Shutdown()
		<-a.keySink.Done()
		<-a.pumpDone

		a.collector.Stop()
		<-a.proc.Done()
		<-a.mapper.Done()

		a.autosave.Stop()
		if err := a.sessions.SaveOnShutdown(ctx); err != nil {
			a.logger.Error().Err(err).Msg("final save failed")
		}
		a.sessions.Stop()

		a.wg.Wait()
		a.brokerStatus.Close()
		a.radioStatus.Close()
		a.linkStats.Close()
		a.gauges.Stop()

		a.logger.Info().Msg("shutdown complete")
	})
}

// restoreEngines rebuilds the engine registry from a session document.
// Individual failures are logged and skipped so one bad table does not
// block the rest of the session.
func (a *App) restoreEngines(cfg *types.SessionConfig) {
	for _, ec := range cfg.Engines {
		eng, err := a.mapper.RegisterWithID(ec.ID, ec.Kind)
		if err != nil {
			a.logger.Warn().Err(err).Str("engine_id", ec.ID).Msg("engine restore failed")
			continue
		}
		if err := eng.Configure(ec.Table); err != nil {
			a.logger.Warn().Err(err).Str("engine_id", ec.ID).Msg("engine restore failed")
			continue
		}
		if err := eng.Activate(); err != nil {
			a.logger.Warn().Err(err).Str("engine_id", ec.ID).Msg("engine restore failed")
		}
	}
}
