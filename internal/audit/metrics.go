package audit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

var (
	auditMetrics     *Metrics
	auditMetricsOnce sync.Once
)

// GetMetrics returns the singleton audit metrics instance.
func GetMetrics() *Metrics {
	auditMetricsOnce.Do(func() {
		auditMetrics = &Metrics{
			eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events by type, action and outcome",
			}, []string{"type", "action", "outcome"}),
		}
	})
	return auditMetrics
}

// RecordEvent counts one audit event.
func (m *Metrics) RecordEvent(eventType EventType, action Action, outcome Outcome) {
	m.eventsTotal.WithLabelValues(string(eventType), string(action), string(outcome)).Inc()
}
