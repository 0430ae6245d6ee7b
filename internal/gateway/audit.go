package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/audit"
	"github.com/vyrodovalexey/avagate/internal/auth"
)

// Audit failure reasons. Login failures share one reason on the wire and
// are told apart only here.
const (
	reasonUnknownEmail  = "unknown_email"
	reasonWrongPassword = "wrong_password"
	reasonInactive      = "inactive_principal"
)

// audit records an event for the current request. The actor is the
// authenticated principal when there is one.
func (g *Gateway) audit(c *gin.Context, event *audit.Event, target *auth.Principal) {
	subject := &audit.Subject{IPAddress: c.ClientIP()}
	if p, ok := auth.PrincipalFromContext(c.Request.Context()); ok {
		subject.ID = p.ID
		subject.Role = p.Role.String()
	}
	event.WithSubject(subject)

	resource := &audit.Resource{Type: "principal", Method: c.Request.Method, Path: c.Request.URL.Path}
	if target != nil {
		resource.ID = target.ID
	}
	event.WithResource(resource)

	g.deps.Audit.LogEvent(c.Request.Context(), event)
}

// auditLogin records a login attempt. email is the submitted address; a
// principal id is only known for a matching account.
func (g *Gateway) auditLogin(c *gin.Context, outcome audit.Outcome, email, reason string, p *auth.Principal) {
	event := audit.NewEvent(audit.EventTypeAuthentication, audit.ActionLogin, outcome).WithReason(reason)
	subject := &audit.Subject{Email: email, IPAddress: c.ClientIP()}
	if p != nil {
		subject.ID = p.ID
		subject.Role = p.Role.String()
	}
	event.WithSubject(subject).
		WithResource(&audit.Resource{Type: "session", Method: c.Request.Method, Path: c.Request.URL.Path})
	g.deps.Audit.LogEvent(c.Request.Context(), event)
}
