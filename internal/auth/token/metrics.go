package token

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for token operations.
type Metrics struct {
	issued         prometheus.Counter
	refreshed      prometheus.Counter
	verifyFailures *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton token metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			issued: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "token",
				Name:      "issued_total",
				Help:      "Total number of tokens issued",
			}),
			refreshed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "token",
				Name:      "refreshed_total",
				Help:      "Total number of tokens re-issued by refresh",
			}),
			verifyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "token",
				Name:      "verify_failures_total",
				Help:      "Token verification failures by internal cause",
			}, []string{"cause"}),
		}
	})
	return metricsInstance
}
