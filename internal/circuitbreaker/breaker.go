// Package circuitbreaker wraps sony/gobreaker for outbound dependencies
// such as the principal store. An open breaker fails calls immediately
// instead of waiting on a dependency that is known to be down.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// ErrOpen is returned when the breaker refuses a call.
var ErrOpen = errors.New("circuit breaker is open")

// Default settings for zero configuration values.
const (
	DefaultFailureThreshold uint32 = 5
	DefaultHalfOpenRequests uint32 = 1
)

// Breaker is a named circuit breaker.
type Breaker struct {
	cb        *gobreaker.CircuitBreaker
	logger    observability.Logger
	isSuccess func(error) bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger for state changes.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithSuccessClassifier decides which errors do not count as failures.
// Expected outcomes such as "not found" should not trip the breaker.
func WithSuccessClassifier(fn func(error) bool) Option {
	return func(b *Breaker) {
		b.isSuccess = fn
	}
}

// New creates a breaker that opens after FailureThreshold consecutive
// failures and probes again after Timeout.
func New(name string, cfg config.BreakerConfig, opts ...Option) *Breaker {
	b := &Breaker{
		logger:    observability.NopLogger(),
		isSuccess: func(err error) bool { return err == nil },
	}
	for _, opt := range opts {
		opt(b)
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = DefaultHalfOpenRequests
	}

	metrics := GetMetrics()
	metrics.state.WithLabelValues(name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return b.isSuccess(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			metrics.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
			metrics.state.WithLabelValues(name).Set(float64(to))

			_, span := otel.Tracer("avagate/circuitbreaker").Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	})
	return b
}

// Execute runs fn through the breaker. A refused call returns an error
// matching ErrOpen; otherwise fn's own error is returned unchanged.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		GetMetrics().rejected.WithLabelValues(b.cb.Name()).Inc()
		return fmt.Errorf("%w: %s: %w", ErrOpen, b.cb.Name(), err)
	}
	return err
}

// State returns the breaker state name: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}
