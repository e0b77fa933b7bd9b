/*
Package metrics provides Prometheus instrumentation and health checking for
padbridge.

Counters and histograms are updated inline by the packages that own them:
the input collector and event processor count raw, malformed, processed,
and debounced events; the mapping manager counts per-engine queue drops and
observes dispatch latency; the protocol handlers track connection state,
reconnect attempts, and send/receive totals; the persistence manager tracks
saves, save errors, and dropped autosave ticks.

The Collector samples gauge-style values (engines per lifecycle state) on a
15 second ticker from the mapping manager.

Health checking follows the component model: long-lived tasks register
themselves with RegisterComponent and flip their status with
UpdateComponent. HealthHandler, ReadyHandler, and LivenessHandler serve
/health, /ready, and /live; readiness requires the input and session
components.

Handler() exposes the registry at /metrics via promhttp.

Usage:

	metrics.RawEventsTotal.Inc()
	metrics.EventsDroppedTotal.WithLabelValues(engineID).Inc()
	metrics.SetConnectionState("broker", "connected")

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SaveDuration)
*/
package metrics
