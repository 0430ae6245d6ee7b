package token

import "errors"

// ErrTokenInvalid is the single outward verification failure. Every cause
// below is reported alongside it so callers can test with
// errors.Is(err, ErrTokenInvalid) without learning which check failed.
var ErrTokenInvalid = errors.New("token is invalid")

// Verification causes, for logs only.
var (
	ErrMalformed = errors.New("token is malformed")
	ErrSignature = errors.New("token signature is invalid")
	ErrExpired   = errors.New("token has expired")
	ErrClaims    = errors.New("token claims are invalid")
)

// ErrEmptySecret is returned by NewService when no signing secret is set.
var ErrEmptySecret = errors.New("token signing secret is empty")

// invalidError matches both ErrTokenInvalid and its cause.
type invalidError struct {
	cause  error
	detail error
}

func (e *invalidError) Error() string {
	msg := ErrTokenInvalid.Error() + ": " + e.cause.Error()
	if e.detail != nil {
		msg += ": " + e.detail.Error()
	}
	return msg
}

func (e *invalidError) Unwrap() []error {
	return []error{ErrTokenInvalid, e.cause}
}

func invalid(cause, detail error) error {
	return &invalidError{cause: cause, detail: detail}
}

// Cause returns the specific verification cause of err, or nil.
func Cause(err error) error {
	var e *invalidError
	if errors.As(err, &e) {
		return e.cause
	}
	return nil
}
