package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics holds collectors for the local cache.
type CacheMetrics struct {
	lookups      *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	evictedBytes prometheus.Counter
	entries      prometheus.Gauge
	usedBytes    prometheus.Gauge
}

// NewCacheMetrics registers cache metrics on the provided registry.
func NewCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Local cache lookups by result (hit, miss, expired, purpose_mismatch, corrupt).",
	}, []string{"result"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed from the local cache, by reason.",
	}, []string{"reason"})
	evictedBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evicted_bytes_total",
		Help:      "Bytes freed by removing local cache entries.",
	})
	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries in the local cache after the last write.",
	})
	usedBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "used_bytes",
		Help:      "Bytes used by the local cache after the last write.",
	})

	_ = reg.Register(lookups)
	_ = reg.Register(evictions)
	_ = reg.Register(evictedBytes)
	_ = reg.Register(entries)
	_ = reg.Register(usedBytes)

	return &CacheMetrics{
		lookups:      lookups,
		evictions:    evictions,
		evictedBytes: evictedBytes,
		entries:      entries,
		usedBytes:    usedBytes,
	}
}

func (m *CacheMetrics) ObserveLookup(result string) {
	m.lookups.WithLabelValues(result).Inc()
}

func (m *CacheMetrics) ObserveEviction(reason string, bytes int64) {
	m.evictions.WithLabelValues(reason).Inc()
	if bytes > 0 {
		m.evictedBytes.Add(float64(bytes))
	}
}

func (m *CacheMetrics) ObserveUsage(entries int, bytes int64) {
	m.entries.Set(float64(entries))
	m.usedBytes.Set(float64(bytes))
}

// ResolverMetrics holds collectors for filename resolution.
type ResolverMetrics struct {
	resolves *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewResolverMetrics registers resolver metrics on the provided registry.
func NewResolverMetrics(reg *prometheus.Registry) *ResolverMetrics {
	resolves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolves_total",
		Help:      "Reference resolutions by winning strategy and result.",
	}, []string{"strategy", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "resolve_duration_seconds",
		Help:      "Histogram of reference resolution durations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})

	_ = reg.Register(resolves)
	_ = reg.Register(latency)

	return &ResolverMetrics{
		resolves: resolves,
		latency:  latency,
	}
}

// ObserveResolve records one resolution. strategy is "none" when
// nothing matched.
func (m *ResolverMetrics) ObserveResolve(strategy string, err error, dur time.Duration) {
	m.resolves.WithLabelValues(strategy, resultLabel(err)).Inc()
	m.latency.WithLabelValues(strategy).Observe(dur.Seconds())
}
