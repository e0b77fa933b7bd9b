package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

// requestQueueSize bounds the persistence request channel. Callers block
// on submission, so the bound only smooths bursts.
const requestQueueSize = 8

// RequestKind identifies a persistence operation.
type RequestKind int

const (
	reqSave RequestKind = iota
	reqSaveAs
	reqAutosave
	reqLoad
	reqDelete
	reqList
)

func (k RequestKind) String() string {
	switch k {
	case reqSave:
		return "save"
	case reqSaveAs:
		return "save_as"
	case reqAutosave:
		return "autosave"
	case reqLoad:
		return "load"
	case reqDelete:
		return "delete"
	case reqList:
		return "list"
	default:
		return "unknown"
	}
}

// Result carries the outcome of a persistence request. Only the fields
// relevant to the request kind are populated.
type Result struct {
	Config *types.SessionConfig
	Names  []string
}

type request struct {
	kind    RequestKind
	name    string
	trigger string
	reply   *flow.Reply[Result]
}

// Manager serializes all persistence operations through a single worker,
// so saves, loads, and autosaves never interleave on the store.
type Manager struct {
	store *Store
	live  *Live

	reqCh  chan request
	stopCh chan struct{}
	doneCh chan struct{}

	// autosavePending is set while an autosave tick is queued but not yet
	// processed; further ticks are dropped until it clears.
	autosavePending atomic.Bool

	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewManager creates a persistence manager over an open store and the
// live session. Start must be called before submitting requests.
func NewManager(store *Store, live *Live) *Manager {
	return &Manager{
		store:  store,
		live:   live,
		reqCh:  make(chan request, requestQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: log.WithComponent("session"),
	}
}

// Start launches the worker.
func (m *Manager) Start() {
	go m.run()
}

// Stop shuts the worker down after it finishes the request in flight.
// Pending requests still queued are answered with an error.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}

// Save persists the current live session under its own name.
func (m *Manager) Save(ctx context.Context) error {
	_, err := m.submit(ctx, request{kind: reqSave, trigger: "manual", reply: flow.NewReply[Result]()})
	return err
}

// SaveOnShutdown is the final synchronous save during teardown. Identical
// to Save except for the trigger recorded in metrics.
func (m *Manager) SaveOnShutdown(ctx context.Context) error {
	_, err := m.submit(ctx, request{kind: reqSave, trigger: "shutdown", reply: flow.NewReply[Result]()})
	return err
}

// SaveAs persists the current live session under a new name and renames
// the live session to match.
func (m *Manager) SaveAs(ctx context.Context, name string) error {
	_, err := m.submit(ctx, request{kind: reqSaveAs, name: name, reply: flow.NewReply[Result]()})
	return err
}

// Load reads the named session from the store, replaces the live session
// with it, and returns a snapshot so the caller can rebuild engines.
func (m *Manager) Load(ctx context.Context, name string) (*types.SessionConfig, error) {
	res, err := m.submit(ctx, request{kind: reqLoad, name: name, reply: flow.NewReply[Result]()})
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// Delete removes the named session from the store.
func (m *Manager) Delete(ctx context.Context, name string) error {
	_, err := m.submit(ctx, request{kind: reqDelete, name: name, reply: flow.NewReply[Result]()})
	return err
}

// List returns all saved session names.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	res, err := m.submit(ctx, request{kind: reqList, reply: flow.NewReply[Result]()})
	if err != nil {
		return nil, err
	}
	return res.Names, nil
}

// TryAutosave queues an autosave tick without blocking. It reports false
// when a tick is already queued or the request channel is saturated, in
// which case the tick is dropped.
func (m *Manager) TryAutosave() bool {
	if !m.autosavePending.CompareAndSwap(false, true) {
		return false
	}
	select {
	case m.reqCh <- request{kind: reqAutosave}:
		return true
	case <-m.stopCh:
		m.autosavePending.Store(false)
		return false
	default:
		m.autosavePending.Store(false)
		return false
	}
}

func (m *Manager) submit(ctx context.Context, req request) (Result, error) {
	select {
	case m.reqCh <- req:
	case <-m.stopCh:
		return Result{}, fmt.Errorf("session manager stopped")
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	return req.reply.Wait(ctx)
}

func (m *Manager) run() {
	defer close(m.doneCh)
	m.logger.Info().Msg("session manager started")
	metrics.UpdateComponent("session", true, "running")

	for {
		select {
		case req := <-m.reqCh:
			m.handle(req)
		case <-m.stopCh:
			// Answer anything still queued before exiting.
			for {
				select {
				case req := <-m.reqCh:
					if req.reply != nil {
						req.reply.Deliver(Result{}, fmt.Errorf("session manager stopped"))
					}
				default:
					m.logger.Info().Msg("session manager stopped")
					return
				}
			}
		}
	}
}

func (m *Manager) handle(req request) {
	var (
		res Result
		err error
	)

	switch req.kind {
	case reqSave:
		err = m.save(req.trigger)
	case reqSaveAs:
		m.live.Update(func(cfg *types.SessionConfig) {
			cfg.Name = req.name
		})
		err = m.save("manual")
	case reqAutosave:
		m.autosavePending.Store(false)
		err = m.save("autosave")
	case reqLoad:
		res.Config, err = m.load(req.name)
	case reqDelete:
		err = m.store.DeleteSession(req.name)
	case reqList:
		res.Names, err = m.store.ListSessions()
	}

	if err != nil {
		m.logger.Error().Err(err).Str("op", req.kind.String()).Str("name", req.name).Msg("persistence request failed")
	}
	if req.reply != nil {
		req.reply.Deliver(res, err)
	}
}

func (m *Manager) save(trigger string) error {
	timer := metrics.NewTimer()

	snapshot := m.live.Snapshot()
	snapshot.SavedAt = time.Now().UTC()

	if err := m.store.SaveSession(snapshot); err != nil {
		metrics.SaveErrorsTotal.Inc()
		metrics.UpdateComponent("session", false, err.Error())
		return err
	}
	if err := m.store.SetLastSession(snapshot.Name); err != nil {
		metrics.SaveErrorsTotal.Inc()
		return err
	}
	metrics.UpdateComponent("session", true, "running")

	m.live.Update(func(cfg *types.SessionConfig) {
		cfg.SavedAt = snapshot.SavedAt
	})

	metrics.SavesTotal.WithLabelValues(trigger).Inc()
	timer.ObserveDuration(metrics.SaveDuration)
	m.logger.Debug().Str("session", snapshot.Name).Str("trigger", trigger).Msg("session saved")
	return nil
}

func (m *Manager) load(name string) (*types.SessionConfig, error) {
	cfg, err := m.store.LoadSession(name)
	if err != nil {
		return nil, err
	}
	m.live.Replace(cfg.Clone())
	if err := m.store.SetLastSession(name); err != nil {
		m.logger.Warn().Err(err).Str("session", name).Msg("failed to record last session")
	}
	m.logger.Info().Str("session", name).Msg("session loaded")
	return cfg, nil
}
