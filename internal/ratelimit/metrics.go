package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisions   *prometheus.CounterVec
	released    *prometheus.CounterVec
	delayed     prometheus.Counter
	delay       prometheus.Histogram
	trackedKeys *prometheus.GaugeVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton rate limit metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			decisions: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by tier and result",
			}, []string{"tier", "result"}),
			released: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "released_total",
				Help:      "Increments handed back for successful requests on skip-successful tiers",
			}, []string{"tier"}),
			delayed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "delayed_total",
				Help:      "Requests delayed by the progressive delay tier",
			}),
			delay: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "delay_seconds",
				Help:      "Delay applied by the progressive delay tier",
				Buckets:   []float64{.5, 1, 2, 5, 10, 20, 30},
			}),
			trackedKeys: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "ratelimit",
				Name:      "tracked_keys",
				Help:      "Client keys currently tracked per tier",
			}, []string{"tier"}),
		}
	})
	return metricsInstance
}
