package pipeline

import (
	"time"

	"github.com/vyrodovalexey/avagate/internal/auth"
)

// AuthMode selects how a route authenticates.
type AuthMode int

const (
	// AuthNone skips authentication.
	AuthNone AuthMode = iota
	// AuthOptional resolves a principal when credentials are present.
	AuthOptional
	// AuthRequired rejects requests without a valid principal.
	AuthRequired
)

// Policy is the per-route configuration of the pipeline.
type Policy struct {
	// Name identifies the route in logs, metrics and spans.
	Name string

	Auth AuthMode

	// Roles, when set, restricts the route to principals holding one of
	// them.
	Roles []auth.Role

	// OwnerParam names the path parameter holding the owning principal id.
	// Principals other than the owner need one of PrivilegedRoles.
	OwnerParam      string
	PrivilegedRoles []auth.Role

	// Cacheable GET routes are served from and stored into the response
	// cache. CacheTTL of zero uses the cache default.
	Cacheable bool
	CacheTTL  time.Duration

	// Invalidates lists cache key patterns cleared after a successful
	// mutation on this route.
	Invalidates []string

	// AuthEndpoint marks credential endpoints for auth-scoped tiers.
	AuthEndpoint bool

	// Exempt routes bypass every rate limit tier.
	Exempt bool
}

func (m AuthMode) authMode() auth.Mode {
	if m == AuthOptional {
		return auth.ModeOptional
	}
	return auth.ModeRequired
}
