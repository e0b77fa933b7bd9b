package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
)

// DefaultAutosaveInterval is how often the live session is flushed to disk
// when no interval is configured.
const DefaultAutosaveInterval = 30 * time.Second

// Autosave periodically queues save requests on the persistence manager.
// Ticks that land while a save is already queued are dropped rather than
// allowed to pile up behind a slow disk.
type Autosave struct {
	mgr      *Manager
	interval time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewAutosave creates an autosave worker. A non-positive interval falls
// back to the default.
func NewAutosave(mgr *Manager, interval time.Duration) *Autosave {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Autosave{
		mgr:      mgr,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   log.WithComponent("autosave"),
	}
}

// Start launches the ticker loop.
func (a *Autosave) Start() {
	go a.run()
}

// Stop halts the ticker. It does not wait for a queued autosave to finish;
// the manager owns that.
func (a *Autosave) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	<-a.doneCh
}

func (a *Autosave) run() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("autosave started")
	for {
		select {
		case <-ticker.C:
			if !a.mgr.TryAutosave() {
				metrics.AutosaveDroppedTotal.Inc()
				a.logger.Debug().Msg("autosave tick dropped, save already queued")
			}
		case <-a.stopCh:
			a.logger.Info().Msg("autosave stopped")
			return
		}
	}
}
