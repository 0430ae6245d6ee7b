package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton circuit breaker metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "state",
					Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
				},
				[]string{"name"},
			),
			transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "state_changes_total",
					Help:      "Total number of circuit breaker state changes",
				},
				[]string{"name", "from", "to"},
			),
			rejected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "gateway",
					Subsystem: "circuit_breaker",
					Name:      "rejected_total",
					Help:      "Total number of calls refused by an open circuit",
				},
				[]string{"name"},
			),
		}
	})
	return metricsInstance
}
