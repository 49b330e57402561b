package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics holds Prometheus collectors for remote store operations.
type StorageMetrics struct {
	bytes     *prometheus.CounterVec
	ops       *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	attempts  *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	backoff   *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

// NewStorageMetrics registers storage metrics on the provided registry.
func NewStorageMetrics(reg *prometheus.Registry) *StorageMetrics {
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "bytes_total",
		Help:      "Total bytes moved by remote store operations.",
	}, []string{"op", "bucket"})
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "ops_total",
		Help:      "Total number of remote store operations by result.",
	}, []string{"op", "bucket", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "op_duration_seconds",
		Help:      "Histogram of remote store operation durations, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "attempts",
		Help:      "Number of attempts each remote store operation needed.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 7},
	}, []string{"op"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Retries scheduled after a failed attempt, by error kind.",
	}, []string{"op", "kind"})
	backoff := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "backoff_seconds",
		Help:      "Delay inserted before a retry, circuit delay included.",
		Buckets:   []float64{1, 2, 4, 8, 12, 16, 20, 25},
	}, []string{"op"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "public_fallback_total",
		Help:      "Public URL fallback fetches by result.",
	}, []string{"op", "result"})

	_ = reg.Register(bytes)
	_ = reg.Register(ops)
	_ = reg.Register(latency)
	_ = reg.Register(attempts)
	_ = reg.Register(retries)
	_ = reg.Register(backoff)
	_ = reg.Register(fallbacks)

	return &StorageMetrics{
		bytes:     bytes,
		ops:       ops,
		latency:   latency,
		attempts:  attempts,
		retries:   retries,
		backoff:   backoff,
		fallbacks: fallbacks,
	}
}

// Observe records one logical store operation. dur must be the total
// time spent in the operation, backoff included.
func (m *StorageMetrics) Observe(op, bucket string, bytes int64, attempts int, err error, dur time.Duration) {
	if bytes > 0 {
		m.bytes.WithLabelValues(op, bucket).Add(float64(bytes))
	}
	m.ops.WithLabelValues(op, bucket, resultLabel(err)).Inc()
	m.latency.WithLabelValues(op).Observe(dur.Seconds())
	if attempts > 0 {
		m.attempts.WithLabelValues(op).Observe(float64(attempts))
	}
}

// ObserveRetry records a retry and the delay waited before it.
func (m *StorageMetrics) ObserveRetry(op, kind string, delay time.Duration) {
	m.retries.WithLabelValues(op, kind).Inc()
	m.backoff.WithLabelValues(op).Observe(delay.Seconds())
}

// ObserveFallback records a public URL fallback fetch.
func (m *StorageMetrics) ObserveFallback(op string, err error) {
	m.fallbacks.WithLabelValues(op, resultLabel(err)).Inc()
}
