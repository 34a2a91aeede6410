package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay lifecycle
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eli_relay_sessions_started_total",
			Help: "Relay sessions that reached the active state",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eli_relay_sessions_active",
			Help: "Relay sessions currently active",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eli_relay_sessions_closed_total",
			Help: "Relay sessions torn down, by cause",
		},
		[]string{"cause"}, // "client", "upstream", "fault"
	)

	AuthRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eli_relay_auth_rejections_total",
			Help: "Connections rejected for invalid or missing tokens",
		},
	)

	UpstreamDialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eli_relay_upstream_dial_failures_total",
			Help: "Failed EVI websocket handshakes",
		},
	)

	// Persistence
	EventsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eli_relay_events_persisted_total",
			Help: "Transcript events committed to the store",
		},
		[]string{"type"}, // "USER_MESSAGE" or "AGENT_MESSAGE"
	)

	EventWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eli_relay_event_write_failures_total",
			Help: "Transcript events dropped because the store write failed",
		},
	)
)
