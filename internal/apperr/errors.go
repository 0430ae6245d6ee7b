// Package apperr defines the gateway's error taxonomy.
//
// Every rejection produced by the request pipeline is an *Error carrying a
// Kind. The Kind decides the outward HTTP status and the public message,
// which never varies with the internal cause. The cause chain is kept for
// logging and is only rendered to clients in development mode.
//
// Conventions follow the rest of the repository:
//
//   - Sentinel errors (errors.New) for stable conditions checked with errors.Is.
//   - *Error for context-rich failures; it implements Error, Unwrap and Is.
//   - fmt.Errorf with %w for ad-hoc wrapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for outward reporting.
type Kind string

// Error kinds.
const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindHashFailure      Kind = "HASH_FAILURE"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindInternal         Kind = "INTERNAL"
)

// kindInfo holds the stable outward mapping of a Kind.
type kindInfo struct {
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindUnauthenticated:  {http.StatusUnauthorized, "authentication required"},
	KindForbidden:        {http.StatusForbidden, "insufficient permissions"},
	KindRateLimited:      {http.StatusTooManyRequests, "too many requests"},
	KindValidationFailed: {http.StatusBadRequest, "validation failed"},
	KindHashFailure:      {http.StatusInternalServerError, "internal server error"},
	KindNotFound:         {http.StatusNotFound, "resource not found"},
	KindConflict:         {http.StatusConflict, "resource already exists"},
	KindInternal:         {http.StatusInternalServerError, "internal server error"},
}

// HTTPStatus returns the stable HTTP status for a kind.
func HTTPStatus(kind Kind) int {
	if info, ok := kinds[kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the stable client-facing message for a kind.
func PublicMessage(kind Kind) string {
	if info, ok := kinds[kind]; ok {
		return info.message
	}
	return kinds[KindInternal].message
}

// Error is a classified gateway error.
type Error struct {
	// Kind is the taxonomy entry.
	Kind Kind

	// Message overrides the public message when non-empty. Only kinds whose
	// wording is owned by a collaborator (validation, not found, conflict)
	// set it; authentication failures never do.
	Message string

	// Cause is the internal cause, never shown outside development mode.
	Cause error

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration

	// Fields carries per-field validation messages.
	Fields map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Public()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Public returns the message safe to send to clients.
func (e *Error) Public() string {
	if e.Message != "" {
		return e.Message
	}
	return PublicMessage(e.Kind)
}

// Status returns the HTTP status for the error.
func (e *Error) Status() int {
	return HTTPStatus(e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, or matches the cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Cause, target)
}

// New creates an error of the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Unauthenticated creates a KindUnauthenticated error.
func Unauthenticated(cause error) *Error {
	return New(KindUnauthenticated, cause)
}

// Forbidden creates a KindForbidden error.
func Forbidden(cause error) *Error {
	return New(KindForbidden, cause)
}

// RateLimited creates a KindRateLimited error with a retry hint.
func RateLimited(retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: KindRateLimited, Cause: cause, RetryAfter: retryAfter}
}

// Validation creates a KindValidationFailed error.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Message: message, Fields: fields}
}

// NotFound creates a KindNotFound error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict creates a KindConflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Internal creates a KindInternal error.
func Internal(cause error) *Error {
	return New(KindInternal, cause)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As converts any error into an *Error, classifying unknown errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsFatal reports whether the error signals an environment problem that must
// not be retried.
func IsFatal(err error) bool {
	return KindOf(err) == KindHashFailure
}
