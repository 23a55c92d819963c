package modem

import (
	metrics2 "github.com/compose-network/radiolink/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all modem-level metrics
type Metrics struct {
	registry *metrics2.ComponentRegistry

	SessionsActive    prometheus.Gauge
	Teardowns         prometheus.Counter
	RequestsIssued    *prometheus.CounterVec
	RequestsCompleted *prometheus.CounterVec
	PendingRequests   prometheus.Gauge
	ResponseLatency   prometheus.Histogram
	EventsTotal       *prometheus.CounterVec
	ReplayedEvents    prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	FrameSize         prometheus.Histogram
}

// NewMetrics creates modem metrics on the process registry
func NewMetrics() *Metrics {
	return NewMetricsWith(metrics2.NewComponentRegistry("radiolink", "modem"))
}

// NewMetricsWith creates modem metrics on reg
func NewMetricsWith(reg *metrics2.ComponentRegistry) *Metrics {
	return &Metrics{
		registry: reg,

		SessionsActive: reg.NewGauge(prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of attached modem transports",
		}),

		Teardowns: reg.NewCounter(prometheus.CounterOpts{
			Name: "teardowns_total",
			Help: "Total number of transport teardowns",
		}),

		RequestsIssued: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_issued_total",
			Help: "Total number of requests issued",
		}, []string{"code"}),

		RequestsCompleted: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_completed_total",
			Help: "Total number of requests completed by outcome",
		}, []string{"code", "outcome"}),

		PendingRequests: reg.NewGauge(prometheus.GaugeOpts{
			Name: "requests_pending",
			Help: "Number of requests awaiting a response",
		}),

		ResponseLatency: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "response_latency_seconds",
			Help:    "Time from issue to envelope delivery",
			Buckets: metrics2.DurationBuckets,
		}),

		EventsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "events_total",
			Help: "Unsolicited events by code and disposition",
		}, []string{"code", "disposition"}),

		ReplayedEvents: reg.NewCounter(prometheus.CounterOpts{
			Name: "events_replayed_total",
			Help: "Buffered events replayed to a new subscriber",
		}),

		FramesDropped: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_dropped_total",
			Help: "Inbound frames dropped by reason",
		}, []string{"reason"}),

		FrameSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "frame_size_bytes",
			Help:    "Size of inbound frames",
			Buckets: metrics2.SizeBuckets,
		}),
	}
}

// RecordIssued records a request handed to the registry
func (m *Metrics) RecordIssued(code string) {
	m.RequestsIssued.WithLabelValues(code).Inc()
	m.PendingRequests.Inc()
}

// RecordCompleted records a delivered envelope
func (m *Metrics) RecordCompleted(code, outcome string, latencySeconds float64) {
	m.RequestsCompleted.WithLabelValues(code, outcome).Inc()
	m.PendingRequests.Dec()
	m.ResponseLatency.Observe(latencySeconds)
}

// RecordEvent records the disposition of an unsolicited frame
func (m *Metrics) RecordEvent(code, disposition string) {
	m.EventsTotal.WithLabelValues(code, disposition).Inc()
}

// RecordDropped records a dropped inbound frame
func (m *Metrics) RecordDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}
