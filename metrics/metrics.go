// Package metrics holds the Prometheus collectors for the persistence
// layer: remote store operations, local cache activity and filename
// resolution. Every component accepts a nil observer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sheetbridge"

// StorageObserver is implemented by StorageMetrics.
type StorageObserver interface {
	Observe(op, bucket string, bytes int64, attempts int, err error, dur time.Duration)
	ObserveRetry(op, kind string, delay time.Duration)
	ObserveFallback(op string, err error)
}

// CacheObserver is implemented by CacheMetrics.
type CacheObserver interface {
	ObserveLookup(result string)
	ObserveEviction(reason string, bytes int64)
	ObserveUsage(entries int, bytes int64)
}

// ResolverObserver is implemented by ResolverMetrics.
type ResolverObserver interface {
	ObserveResolve(strategy string, err error, dur time.Duration)
}

// Set bundles all collectors registered on one registry.
type Set struct {
	Cache    *CacheMetrics
	Registry *prometheus.Registry
	Resolver *ResolverMetrics
	Storage  *StorageMetrics
}

// NewSet creates a registry and registers every collector on it.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	return &Set{
		Cache:    NewCacheMetrics(reg),
		Registry: reg,
		Resolver: NewResolverMetrics(reg),
		Storage:  NewStorageMetrics(reg),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
