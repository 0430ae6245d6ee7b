// Package audit records security-relevant actions as JSON lines: logins,
// token refreshes, principal administration, and requests refused by the
// rate limiter or the authorization gate.
//
// Audit events are separate from the operational log. They never carry
// passwords, tokens or digests.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeAdministrative EventType = "administrative"
	EventTypeSecurity       EventType = "security"
)

// Action represents the action being audited.
type Action string

// Actions.
const (
	ActionRegister     Action = "register"
	ActionLogin        Action = "login"
	ActionTokenRefresh Action = "token_refresh"

	ActionDeny Action = "deny"

	ActionUserCreate     Action = "user_create"
	ActionUserUpdate     Action = "user_update"
	ActionUserDeactivate Action = "user_deactivate"
	ActionRoleAssign     Action = "role_assign"

	ActionRateLimitExceeded Action = "rate_limit_exceeded"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`

	Subject  *Subject  `json:"subject,omitempty"`
	Resource *Resource `json:"resource,omitempty"`

	// Reason is a short machine-readable cause for failures and denials.
	Reason string `json:"reason,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Subject is the caller performing an action. ID is empty for
// anonymous callers.
type Subject struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// Resource is the target of an action.
type Resource struct {
	Type   string `json:"type,omitempty"`
	ID     string `json:"id,omitempty"`
	Path   string `json:"path,omitempty"`
	Method string `json:"method,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}

// WithSubject sets the subject.
func (e *Event) WithSubject(s *Subject) *Event {
	e.Subject = s
	return e
}

// WithResource sets the resource.
func (e *Event) WithResource(r *Resource) *Event {
	e.Resource = r
	return e
}

// WithReason sets the failure reason.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithMetadata adds a metadata entry.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
