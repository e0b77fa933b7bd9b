package metrics

import (
	"time"

	"github.com/opencontroller/padbridge/pkg/types"
)

// EngineStater reports the number of mapping engines in each lifecycle
// state. Implemented by the mapping manager.
type EngineStater interface {
	StateCounts() map[types.EngineState]int
}

// Collector periodically samples gauge-style metrics that are not updated
// at their point of change.
type Collector struct {
	engines EngineStater
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(engines EngineStater) *Collector {
	return &Collector{
		engines: engines,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts := c.engines.StateCounts()
	states := []types.EngineState{
		types.EngineInitializing,
		types.EngineConfigured,
		types.EngineActive,
		types.EngineDeactivating,
		types.EngineTerminated,
	}
	for _, s := range states {
		EnginesTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
