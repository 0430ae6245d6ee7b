package pipeline

import (
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/authz"
)

// AuthStage authenticates the request and stores the principal in the
// request context.
type AuthStage struct {
	gate *auth.Gate
}

// NewAuthStage creates the authentication stage.
func NewAuthStage(gate *auth.Gate) *AuthStage {
	return &AuthStage{gate: gate}
}

// Name implements Stage.
func (s *AuthStage) Name() string { return "authenticate" }

// Process implements Stage.
func (s *AuthStage) Process(ex *Exchange) Outcome {
	if ex.Policy.Auth == AuthNone {
		return Continue()
	}
	c := ex.Context
	header := c.GetHeader("Authorization")
	var (
		res auth.Result
		err error
	)
	if v := ex.verification; v != nil && v.Header == header {
		res, err = s.gate.AuthenticateVerified(c.Request.Context(), *v, ex.Policy.Auth.authMode())
	} else {
		res, err = s.gate.Authenticate(c.Request.Context(), header, ex.Policy.Auth.authMode())
	}
	if err != nil {
		return Reject(err)
	}
	if res.Principal != nil {
		ex.Principal = res.Principal
		ex.Claims = res.Claims
		c.Request = c.Request.WithContext(auth.ContextWithPrincipal(c.Request.Context(), res.Principal, res.Claims))
	}
	return Continue()
}

// AuthzStage applies the route's role and ownership rules.
type AuthzStage struct{}

// NewAuthzStage creates the authorization stage.
func NewAuthzStage() *AuthzStage {
	return &AuthzStage{}
}

// Name implements Stage.
func (s *AuthzStage) Name() string { return "authorize" }

// Process implements Stage.
func (s *AuthzStage) Process(ex *Exchange) Outcome {
	p := ex.Policy
	if len(p.Roles) > 0 {
		if err := authz.RequireRole(ex.Principal, p.Roles...); err != nil {
			return Reject(err)
		}
	}
	if p.OwnerParam != "" {
		if err := authz.RequireOwnerOrRole(ex.Principal, ex.Context.Param(p.OwnerParam), p.PrivilegedRoles...); err != nil {
			return Reject(err)
		}
	}
	return Continue()
}
