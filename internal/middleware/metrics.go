package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the gateway middleware.
type Metrics struct {
	panicsRecovered   prometheus.Counter
	bodyLimitRejected prometheus.Counter
}

var (
	middlewareMetrics     *Metrics
	middlewareMetricsOnce sync.Once
)

// GetMetrics returns the singleton middleware metrics instance.
func GetMetrics() *Metrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = &Metrics{
			panicsRecovered: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered in request handlers",
			}),
			bodyLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "body_limit_rejected_total",
				Help:      "Total number of requests rejected for an oversized body",
			}),
		}
	})
	return middlewareMetrics
}
