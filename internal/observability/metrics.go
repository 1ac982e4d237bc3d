// Package observability provides Prometheus metrics for the relay service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the centralized metric set. Create one per process with
// NewMetrics; all metrics register with the default registry and surface
// on the /metrics endpoint.
type Metrics struct {
	// TurnCounter counts completed turns by outcome (done|failed).
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: outcome
	TurnDuration *prometheus.HistogramVec

	// ChunksAggregated counts stream chunks consumed across all turns.
	ChunksAggregated prometheus.Counter

	// ToolInvocations counts reconciled tool invocations.
	ToolInvocations prometheus.Counter

	// ReconcileDegradations counts turns whose identifier backfill
	// degraded (history lookup failed, references left unresolved).
	ReconcileDegradations prometheus.Counter

	// ActiveSessions tracks the number of live chat sessions.
	ActiveSessions prometheus.Gauge

	// HTTPRequestCounter counts API requests.
	// Labels: method, path, status
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures API request latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_turns_total",
				Help: "Total turns processed by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_turn_duration_seconds",
				Help:    "End-to-end turn duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		ChunksAggregated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_stream_chunks_total",
				Help: "Total stream chunks consumed",
			},
		),

		ToolInvocations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_tool_invocations_total",
				Help: "Total reconciled tool invocations",
			},
		),

		ReconcileDegradations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_reconcile_degradations_total",
				Help: "Turns whose identifier backfill degraded",
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_active_sessions",
				Help: "Number of live chat sessions",
			},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total HTTP requests by method, path, and status",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),
	}
}
