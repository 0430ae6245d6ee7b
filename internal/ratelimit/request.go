package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avagate/internal/config"
)

// Scope selects which requests a tier inspects.
type Scope string

// Scopes.
const (
	ScopeAll      Scope = config.ScopeAll
	ScopeAuth     Scope = config.ScopeAuth
	ScopeMutating Scope = config.ScopeMutating
	ScopeRead     Scope = config.ScopeRead
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeAll, ScopeAuth, ScopeMutating, ScopeRead:
		return sc, nil
	case "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("unknown rate limit scope %q", s)
}

// Matches reports whether the tier scope applies to req.
func (s Scope) Matches(req Request) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeAuth:
		return req.AuthEndpoint
	case ScopeMutating:
		return !req.AuthEndpoint && !isSafeMethod(req.Method)
	case ScopeRead:
		return isSafeMethod(req.Method)
	}
	return false
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// KeySource selects the client identity a tier counts by.
type KeySource string

// Key sources.
const (
	KeyIP        KeySource = config.KeyIP
	KeyPrincipal KeySource = config.KeyPrincipal
)

// Request is what the limiter needs to know about an inbound request.
type Request struct {
	Method string

	// ClientIP is the source address, already resolved through trusted
	// proxies.
	ClientIP string

	// PrincipalID is the signature-verified principal id, or empty.
	PrincipalID string

	// AuthEndpoint marks login, registration, and refresh routes.
	AuthEndpoint bool

	// Exempt marks health-scoped routes, which bypass every tier.
	Exempt bool
}

// Key returns the counting key for source. A principal key falls back to
// the client IP for anonymous requests.
func (r Request) Key(source KeySource) string {
	if source == KeyPrincipal && r.PrincipalID != "" {
		return "principal:" + r.PrincipalID
	}
	return "ip:" + r.ClientIP
}
