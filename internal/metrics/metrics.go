// Package metrics holds the gateway's Prometheus registrations. This is
// the operational/dashboard surface (request latency, pipeline stage
// latency, bridge retries); it is independent of the JSON /metrics
// snapshot the boundary server serves from the session package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway. Naming follows
// voicebridge_<subsystem>_<metric>_<unit>.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PipelineStageLatency *prometheus.HistogramVec
	FramesDropped        *prometheus.CounterVec
	FramesPassthrough    prometheus.Counter

	EgressDropped      prometheus.Counter
	EgressQueueDepth   *prometheus.GaugeVec
	ActiveSessions     prometheus.Gauge

	BridgeAttemptsTotal *prometheus.CounterVec
	BridgeQueueDepth    prometheus.Gauge
}

// New creates and registers all metrics against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers all metrics against reg. Tests
// use a fresh prometheus.NewRegistry() to avoid duplicate-registration
// panics against the global default registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebridge_http_requests_total",
				Help: "Total HTTP requests by route and status class.",
			},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicebridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		PipelineStageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicebridge_pipeline_stage_latency_ms",
				Help:    "Per-stage pipeline latency in milliseconds.",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000},
			},
			[]string{"stage"},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebridge_frames_dropped_total",
				Help: "Audio frames dropped, by reason.",
			},
			[]string{"reason"},
		),
		FramesPassthrough: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voicebridge_frames_passthrough_total",
				Help: "Audio frames accounted for in passthrough mode.",
			},
		),
		EgressDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "voicebridge_egress_dropped_total",
				Help: "Egress chunks dropped due to queue overflow.",
			},
		),
		EgressQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voicebridge_egress_queue_depth",
				Help: "Current egress queue depth per session.",
			},
			[]string{"session_id"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicebridge_active_sessions",
				Help: "Number of sessions not yet ended.",
			},
		),
		BridgeAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicebridge_event_bridge_attempts_total",
				Help: "External event bridge delivery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		BridgeQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicebridge_event_bridge_queue_depth",
				Help: "Current depth of the external event bridge queue.",
			},
		),
	}
}
