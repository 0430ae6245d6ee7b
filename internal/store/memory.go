package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/avagate/internal/auth"
)

// MemoryStore keeps principals in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*auth.Principal
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*auth.Principal),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func clonePrincipal(p *auth.Principal) *auth.Principal {
	cp := *p
	return &cp
}

// LookupActivePrincipal implements auth.PrincipalLookup.
func (s *MemoryStore) LookupActivePrincipal(_ context.Context, id string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok || !p.Active {
		return nil, auth.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

// LookupByEmail implements auth.PrincipalStore.
func (s *MemoryStore) LookupByEmail(_ context.Context, email string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	return clonePrincipal(s.byID[id]), nil
}

// Get implements auth.PrincipalStore.
func (s *MemoryStore) Get(_ context.Context, id string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

// List implements auth.PrincipalStore.
func (s *MemoryStore) List(_ context.Context) ([]*auth.Principal, error) {
	s.mu.RLock()
	out := make([]*auth.Principal, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, clonePrincipal(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create implements auth.PrincipalStore.
func (s *MemoryStore) Create(_ context.Context, p *auth.Principal) error {
	email := NormalizeEmail(p.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return auth.ErrEmailTaken
	}
	cp := clonePrincipal(p)
	cp.Email = email
	s.byID[cp.ID] = cp
	s.byEmail[email] = cp.ID
	return nil
}

// Update implements auth.PrincipalStore.
func (s *MemoryStore) Update(_ context.Context, p *auth.Principal) error {
	email := NormalizeEmail(p.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[p.ID]
	if !ok {
		return auth.ErrPrincipalNotFound
	}
	if owner, taken := s.byEmail[email]; taken && owner != p.ID {
		return auth.ErrEmailTaken
	}
	delete(s.byEmail, cur.Email)

	cp := clonePrincipal(p)
	cp.Email = email
	cp.CreatedAt = cur.CreatedAt
	s.byID[p.ID] = cp
	s.byEmail[email] = p.ID
	return nil
}

// Deactivate implements auth.PrincipalStore.
func (s *MemoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return auth.ErrPrincipalNotFound
	}
	p.Active = false
	p.UpdatedAt = s.now().UTC()
	return nil
}

// Ping implements auth.PrincipalStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements auth.PrincipalStore.
func (s *MemoryStore) Close() error { return nil }
