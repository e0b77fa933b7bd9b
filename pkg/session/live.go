package session

import (
	"sync"

	"github.com/opencontroller/padbridge/pkg/types"
)

// messageHistoryCap bounds the broker message history kept in a session.
const messageHistoryCap = 256

// Live is the in-memory session configuration shared between the
// presentation layer and the persistence manager. All disk I/O happens on
// snapshots, never while the lock is held.
type Live struct {
	mu  sync.RWMutex
	cfg *types.SessionConfig
}

// NewLive wraps a session document.
func NewLive(cfg *types.SessionConfig) *Live {
	if cfg == nil {
		cfg = types.NewSessionConfig("default")
	}
	return &Live{cfg: cfg}
}

// Snapshot returns a deep copy of the current configuration.
func (l *Live) Snapshot() *types.SessionConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Clone()
}

// Update applies a mutation under the write lock. The function must not
// block or retain the config.
func (l *Live) Update(fn func(cfg *types.SessionConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.cfg)
}

// Replace swaps the whole configuration, taking ownership of cfg.
func (l *Live) Replace(cfg *types.SessionConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// Name returns the current session name.
func (l *Live) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Name
}

// AppendMessage adds a broker exchange to the history, evicting the
// oldest entries beyond the cap.
func (l *Live) AppendMessage(msg types.BrokerMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Messages = append(l.cfg.Messages, msg)
	if n := len(l.cfg.Messages); n > messageHistoryCap {
		l.cfg.Messages = append([]types.BrokerMessage(nil), l.cfg.Messages[n-messageHistoryCap:]...)
	}
}
