package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DurationBuckets covers sub-millisecond modem round trips up to request timeouts.
	DurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	// SizeBuckets is for frame and payload sizes in bytes.
	SizeBuckets = prometheus.ExponentialBuckets(16, 4, 8)

	// CountBuckets is for small cardinalities such as pending requests or replayed values.
	CountBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}

	// NetworkBuckets is for connection-level latencies.
	NetworkBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5}
)
