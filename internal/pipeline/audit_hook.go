package pipeline

import (
	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/audit"
)

// AuditHook records requests refused by the rate limiter or the
// authorization stage.
type AuditHook struct {
	logger audit.Logger
}

// NewAuditHook creates the audit hook. A nil logger discards events.
func NewAuditHook(logger audit.Logger) *AuditHook {
	if logger == nil {
		logger = audit.NewNoopLogger()
	}
	return &AuditHook{logger: logger}
}

// Finish implements Finisher.
func (h *AuditHook) Finish(ex *Exchange) {
	if ex.Rejection == nil {
		return
	}

	var event *audit.Event
	switch ex.Rejection.Kind {
	case apperr.KindRateLimited:
		event = audit.NewEvent(audit.EventTypeSecurity, audit.ActionRateLimitExceeded, audit.OutcomeDenied)
		if ex.Verdict != nil {
			if d := ex.Verdict.Rejected(); d != nil {
				event.WithMetadata("tier", d.Tier)
			}
		}
	case apperr.KindForbidden:
		event = audit.NewEvent(audit.EventTypeAuthorization, audit.ActionDeny, audit.OutcomeDenied)
	default:
		return
	}

	req := ex.Request()
	subject := &audit.Subject{IPAddress: ex.Context.ClientIP()}
	if p := ex.Principal; p != nil {
		subject.ID = p.ID
		subject.Role = p.Role.String()
	}
	event.WithSubject(subject).
		WithResource(&audit.Resource{Type: "route", ID: ex.Policy.Name, Method: req.Method, Path: req.URL.Path}).
		WithReason(ex.RejectedBy)

	h.logger.LogEvent(req.Context(), event)
}
