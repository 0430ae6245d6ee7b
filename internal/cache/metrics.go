package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the response cache.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	expirations   prometheus.Counter
	invalidations prometheus.Counter
	notModified   prometheus.Counter
	staleFills    prometheus.Counter
	size          prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton cache metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		hits:          counter("hits_total", "Total number of cache hits"),
		misses:        counter("misses_total", "Total number of cache misses"),
		evictions:     counter("evictions_total", "Entries evicted because the cache was full"),
		expirations:   counter("expirations_total", "Entries removed after their TTL elapsed"),
		invalidations: counter("invalidations_total", "Entries removed by invalidation patterns"),
		notModified:   counter("not_modified_total", "Conditional requests answered with 304"),
		staleFills:    counter("stale_fills_total", "Responses not stored because a matching invalidation ran during the request"),
		size: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached entries",
		}),
	}
}

// RecordNotModified counts a conditional request answered with 304.
func (m *Metrics) RecordNotModified() {
	m.notModified.Inc()
}
