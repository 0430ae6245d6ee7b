package auth

import (
	"errors"

	"github.com/vyrodovalexey/avagate/internal/apperr"
)

// ErrUnauthenticated matches every authentication failure returned by the
// Gate, whatever the cause.
var ErrUnauthenticated error = apperr.New(apperr.KindUnauthenticated, nil)

// Authentication failure causes, for logs only.
var (
	ErrMissingCredentials = errors.New("no credentials provided")
	ErrInvalidScheme      = errors.New("authorization header is not a bearer token")
	ErrPrincipalInactive  = errors.New("principal is inactive")
	ErrPrincipalMismatch  = errors.New("token claims do not match principal")
)
