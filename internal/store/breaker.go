package store

import (
	"context"

	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/circuitbreaker"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// BreakerStore guards a PrincipalStore with a circuit breaker. Not-found
// and duplicate-email results count as successes.
type BreakerStore struct {
	next    auth.PrincipalStore
	breaker *circuitbreaker.Breaker
}

// NewBreakerStore wraps next.
func NewBreakerStore(next auth.PrincipalStore, cfg config.BreakerConfig, logger observability.Logger) *BreakerStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &BreakerStore{
		next: next,
		breaker: circuitbreaker.New("principal-store", cfg,
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithSuccessClassifier(isExpected),
		),
	}
}

// State returns the breaker state.
func (s *BreakerStore) State() string {
	return s.breaker.State()
}

func guard[T any](b *circuitbreaker.Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// LookupActivePrincipal implements auth.PrincipalLookup.
func (s *BreakerStore) LookupActivePrincipal(ctx context.Context, id string) (*auth.Principal, error) {
	return guard(s.breaker, func() (*auth.Principal, error) {
		return s.next.LookupActivePrincipal(ctx, id)
	})
}

// LookupByEmail implements auth.PrincipalStore.
func (s *BreakerStore) LookupByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	return guard(s.breaker, func() (*auth.Principal, error) {
		return s.next.LookupByEmail(ctx, email)
	})
}

// Get implements auth.PrincipalStore.
func (s *BreakerStore) Get(ctx context.Context, id string) (*auth.Principal, error) {
	return guard(s.breaker, func() (*auth.Principal, error) {
		return s.next.Get(ctx, id)
	})
}

// List implements auth.PrincipalStore.
func (s *BreakerStore) List(ctx context.Context) ([]*auth.Principal, error) {
	return guard(s.breaker, func() ([]*auth.Principal, error) {
		return s.next.List(ctx)
	})
}

// Create implements auth.PrincipalStore.
func (s *BreakerStore) Create(ctx context.Context, p *auth.Principal) error {
	return s.breaker.Execute(func() error { return s.next.Create(ctx, p) })
}

// Update implements auth.PrincipalStore.
func (s *BreakerStore) Update(ctx context.Context, p *auth.Principal) error {
	return s.breaker.Execute(func() error { return s.next.Update(ctx, p) })
}

// Deactivate implements auth.PrincipalStore.
func (s *BreakerStore) Deactivate(ctx context.Context, id string) error {
	return s.breaker.Execute(func() error { return s.next.Deactivate(ctx, id) })
}

// Ping implements auth.PrincipalStore.
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.breaker.Execute(func() error { return s.next.Ping(ctx) })
}

// Close implements auth.PrincipalStore.
func (s *BreakerStore) Close() error {
	return s.next.Close()
}
