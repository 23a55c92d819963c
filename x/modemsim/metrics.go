package modemsim

import (
	"time"

	"github.com/compose-network/radiolink/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds simulator connection and frame metrics
type Metrics struct {
	registry *metrics.ComponentRegistry

	// Connection management
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionDuration prometheus.Histogram

	// Frame I/O
	FramesTotal     *prometheus.CounterVec
	FrameSizeBytes  *prometheus.HistogramVec
	ResponseLatency *prometheus.HistogramVec

	// Injected events fanned out to every client
	BroadcastsTotal     prometheus.Counter
	BroadcastRecipients prometheus.Histogram

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates simulator metrics on the process registry
func NewMetrics() *Metrics {
	return NewMetricsWith(metrics.NewComponentRegistry("radiolink", "modemsim"))
}

// NewMetricsWith creates simulator metrics on reg
func NewMetricsWith(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		registry: reg,

		ConnectionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "connections_total",
			Help: "Total number of simulator connections",
		}, []string{"state"}),

		ConnectionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "connections_active",
			Help: "Number of active simulator connections",
		}),

		ConnectionDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "connection_duration_seconds",
			Help:    "Duration of simulator connections",
			Buckets: metrics.NetworkBuckets,
		}),

		FramesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_total",
			Help: "Total number of frames by kind and direction",
		}, []string{"kind", "direction"}),

		FrameSizeBytes: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frame_size_bytes",
			Help:    "Size of frames in bytes",
			Buckets: metrics.SizeBuckets,
		}, []string{"kind", "direction"}),

		ResponseLatency: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "response_latency_seconds",
			Help:    "Time from request receipt to response write",
			Buckets: metrics.DurationBuckets,
		}, []string{"code"}),

		BroadcastsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of injected event broadcasts",
		}),

		BroadcastRecipients: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_recipients",
			Help:    "Number of connections reached per broadcast",
			Buckets: metrics.CountBuckets,
		}),

		ErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of simulator errors",
		}, []string{"type", "operation"}),
	}
}

// RecordConnection records a connection state change
func (m *Metrics) RecordConnection(state string) {
	m.ConnectionsTotal.WithLabelValues(state).Inc()

	switch state {
	case "accepted":
		m.ConnectionsActive.Inc()
	case "closed":
		m.ConnectionsActive.Dec()
	default:
	}
}

// RecordConnectionDuration records how long a connection lasted
func (m *Metrics) RecordConnectionDuration(duration time.Duration) {
	m.ConnectionDuration.Observe(duration.Seconds())
}

// RecordFrameReceived records an inbound request frame
func (m *Metrics) RecordFrameReceived(kind string, sizeBytes int) {
	m.FramesTotal.WithLabelValues(kind, "received").Inc()
	m.FrameSizeBytes.WithLabelValues(kind, "received").Observe(float64(sizeBytes))
}

// RecordFrameSent records an outbound response or event frame
func (m *Metrics) RecordFrameSent(kind string, sizeBytes int) {
	m.FramesTotal.WithLabelValues(kind, "sent").Inc()
	m.FrameSizeBytes.WithLabelValues(kind, "sent").Observe(float64(sizeBytes))
}

// RecordResponse records response latency for a request code
func (m *Metrics) RecordResponse(code string, duration time.Duration) {
	m.ResponseLatency.WithLabelValues(code).Observe(duration.Seconds())
}

// RecordBroadcast records an injected event fan-out
func (m *Metrics) RecordBroadcast(recipientCount int) {
	m.BroadcastsTotal.Inc()
	m.BroadcastRecipients.Observe(float64(recipientCount))
}

// RecordError records a simulator error
func (m *Metrics) RecordError(errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(errorType, operation).Inc()
}
