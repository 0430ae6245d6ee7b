package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication.
type Metrics struct {
	success prometheus.Counter
	failure *prometheus.CounterVec
}

// NewMetrics creates metrics registered with prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates metrics on a custom registerer. Tests
// use a private registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		success: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "success_total",
			Help:      "Total number of successful authentications",
		}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failure_total",
			Help:      "Total number of failed authentications by reason",
		}, []string{"reason"}),
	}

	for _, c := range []prometheus.Collector{m.success, m.failure} {
		if err := registerer.Register(c); err != nil {
			// Reuse the collector registered by an earlier instance.
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch c.(type) {
				case prometheus.Counter:
					m.success = are.ExistingCollector.(prometheus.Counter)
				case *prometheus.CounterVec:
					m.failure = are.ExistingCollector.(*prometheus.CounterVec)
				}
			}
		}
	}

	return m
}
