package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuntimeMetrics tracks process health alongside the modem series.
type RuntimeMetrics struct {
	MemoryAlloc prometheus.Gauge
	Goroutines  prometheus.Gauge
	GCPause     prometheus.Gauge
	Uptime      prometheus.Gauge
}

func NewRuntimeMetrics(reg *ComponentRegistry) *RuntimeMetrics {
	return &RuntimeMetrics{
		MemoryAlloc: reg.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_memory_alloc_bytes",
			Help: "Currently allocated memory in bytes",
		}),
		Goroutines: reg.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_goroutines_total",
			Help: "Number of goroutines currently running",
		}),
		GCPause: reg.NewGauge(prometheus.GaugeOpts{
			Name: "runtime_gc_pause_duration_seconds",
			Help: "Most recent GC pause duration in seconds",
		}),
		Uptime: reg.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_seconds",
			Help: "Seconds since process start",
		}),
	}
}

// Collect samples the runtime once.
func (m *RuntimeMetrics) Collect(start time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.MemoryAlloc.Set(float64(ms.Alloc))
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		m.GCPause.Set(time.Duration(ms.PauseNs[(ms.NumGC+255)%256]).Seconds())
	}
	m.Uptime.Set(time.Since(start).Seconds())
}

// StartPeriodicCollection samples runtime metrics every interval until ctx is done.
func StartPeriodicCollection(ctx context.Context, interval time.Duration, start time.Time) {
	m := NewRuntimeMetrics(NewComponentRegistry("radiolink", ""))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Collect(start)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(start)
		}
	}
}
