package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Input metrics
	RawEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "padbridge_raw_events_total",
			Help: "Total raw input events read from the device",
		},
	)

	MalformedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "padbridge_malformed_events_total",
			Help: "Raw events discarded for out-of-range or unknown controls",
		},
	)

	ProcessedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_processed_events_total",
			Help: "Processed controller events by kind",
		},
		[]string{"kind"},
	)

	DebouncedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "padbridge_debounced_events_total",
			Help: "Raw events suppressed by the significance filter",
		},
	)

	// Mapping metrics
	EnginesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "padbridge_engines_total",
			Help: "Registered mapping engines by lifecycle state",
		},
		[]string{"state"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_events_dropped_total",
			Help: "Events evicted from a backlogged engine queue",
		},
		[]string{"engine_id"},
	)

	MappedOutputsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_mapped_outputs_total",
			Help: "Outputs produced by mapping engines by protocol",
		},
		[]string{"protocol"},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "padbridge_dispatch_duration_seconds",
			Help:    "Time to fan one processed event out to all active engines",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		},
	)

	// Protocol metrics
	ConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "padbridge_connection_state",
			Help: "Current connection state per handler (1 = in this state)",
		},
		[]string{"handler", "state"},
	)

	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_reconnect_attempts_total",
			Help: "Reconnection attempts per handler",
		},
		[]string{"handler"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_messages_sent_total",
			Help: "Payloads sent per handler",
		},
		[]string{"handler"},
	)

	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_messages_received_total",
			Help: "Payloads received per handler",
		},
		[]string{"handler"},
	)

	SendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_send_errors_total",
			Help: "Send failures per handler",
		},
		[]string{"handler"},
	)

	// Persistence metrics
	SavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padbridge_saves_total",
			Help: "Session save operations by trigger",
		},
		[]string{"trigger"},
	)

	SaveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "padbridge_save_errors_total",
			Help: "Failed session save operations",
		},
	)

	AutosaveDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "padbridge_autosave_dropped_total",
			Help: "Autosave ticks dropped because a save was already queued",
		},
	)

	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "padbridge_save_duration_seconds",
			Help:    "Session save latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RawEventsTotal,
		MalformedEventsTotal,
		ProcessedEventsTotal,
		DebouncedEventsTotal,
		EnginesTotal,
		EventsDroppedTotal,
		MappedOutputsTotal,
		DispatchDuration,
		ConnectionState,
		ReconnectAttemptsTotal,
		MessagesSentTotal,
		MessagesReceivedTotal,
		SendErrorsTotal,
		SavesTotal,
		SaveErrorsTotal,
		AutosaveDroppedTotal,
		SaveDuration,
	)
}

// SetConnectionState updates the per-handler state gauge, clearing the
// other states so exactly one series per handler reads 1.
func SetConnectionState(handler, state string) {
	states := []string{"disconnected", "connecting", "connected", "reconnecting", "closing"}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1.0
		}
		ConnectionState.WithLabelValues(handler, s).Set(v)
	}
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
