package retry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains retry metrics.
type Metrics struct {
	attemptsTotal *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
}

var (
	retryMetrics     *Metrics
	retryMetricsOnce sync.Once
)

// GetMetrics returns the singleton retry metrics instance.
func GetMetrics() *Metrics {
	retryMetricsOnce.Do(func() {
		retryMetrics = &Metrics{
			attemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total number of retry attempts by operation",
			}, []string{"operation"}),
			outcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "retry",
				Name:      "outcomes_total",
				Help:      "Total number of retried operations by final outcome",
			}, []string{"operation", "outcome"}),
		}
	})
	return retryMetrics
}

func (m *Metrics) recordAttempt(operation string) {
	m.attemptsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordOutcome(operation, outcome string) {
	m.outcomesTotal.WithLabelValues(operation, outcome).Inc()
}
