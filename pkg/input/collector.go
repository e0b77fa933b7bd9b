package input

import (
	"sync"
	"time"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/log"
	"github.com/opencontroller/padbridge/pkg/metrics"
	"github.com/opencontroller/padbridge/pkg/types"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultQueueSize    = 256
	statsInterval       = 10 * time.Second
)

// Config holds collector settings.
type Config struct {
	// PollInterval is how often the device is sampled (default 10ms).
	PollInterval time.Duration

	// QueueSize is the capacity of the raw event queue (default 256).
	QueueSize int
}

// Collector is the long-lived task that reads a gamepad and feeds the raw
// event queue. Closing the queue is its only termination signal to the
// processor: a device disconnect or a Stop both end in queue closure.
type Collector struct {
	dev      Device
	out      *flow.Queue[types.RawInputEvent]
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	// err is written before doneCh closes and read only after.
	err error
}

// NewCollector creates a collector for the given device.
func NewCollector(dev Device, cfg Config) *Collector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Collector{
		dev:      dev,
		out:      flow.NewQueue[types.RawInputEvent](cfg.QueueSize),
		interval: cfg.PollInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Events returns the raw event queue. It closes when the collector stops.
func (c *Collector) Events() *flow.Queue[types.RawInputEvent] {
	return c.out
}

// Start launches the poll loop.
func (c *Collector) Start() {
	go c.run()
}

// Stop terminates the collector and waits for the loop to exit. Safe to
// call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// Done is closed when the collector has terminated for any reason.
func (c *Collector) Done() <-chan struct{} {
	return c.doneCh
}

// Err returns the terminal error, if any, once Done is closed. A clean
// Stop leaves it nil; a device disconnect reports ErrDeviceDisconnected.
func (c *Collector) Err() error {
	select {
	case <-c.doneCh:
		return c.err
	default:
		return nil
	}
}

func (c *Collector) run() {
	logger := log.WithComponent("input")
	logger.Info().Str("device", c.dev.Name()).Msg("collector started")
	metrics.UpdateComponent("input", true, "collecting")

	defer func() {
		c.out.Close()
		if err := c.dev.Close(); err != nil {
			logger.Warn().Err(err).Msg("device close failed")
		}
		close(c.doneCh)
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	stats := time.NewTicker(statsInterval)
	defer stats.Stop()
	var windowEvents int

	for {
		select {
		case <-c.stopCh:
			logger.Info().Msg("collector stopped")
			return

		case <-stats.C:
			logger.Debug().
				Float64("events_per_sec", float64(windowEvents)/statsInterval.Seconds()).
				Msg("input rate")
			windowEvents = 0

		case <-ticker.C:
			evs, err := c.dev.Poll()
			if err != nil {
				c.err = err
				metrics.UpdateComponent("input", false, err.Error())
				logger.Error().Err(err).Msg("device lost, collector terminating")
				return
			}
			for _, ev := range evs {
				metrics.RawEventsTotal.Inc()
				windowEvents++
				if _, err := c.out.Push(ev); err != nil {
					// Queue closed under us: shutdown already in progress.
					return
				}
			}
		}
	}
}
