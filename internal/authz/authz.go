// Package authz evaluates the gateway's two authorization predicates:
// role membership and ownership-or-role.
//
// Both are pure functions of an already resolved principal. A nil
// principal is reported as unauthenticated, never forbidden, so callers
// can tell "who are you" apart from "you can't do that".
package authz

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth"
)

// ErrForbidden matches every authorization denial.
var ErrForbidden error = apperr.New(apperr.KindForbidden, nil)

// Denial causes.
var (
	ErrRoleNotAllowed = errors.New("role not allowed")
	ErrNotOwner       = errors.New("not the resource owner")
)

// RequireRole passes iff p's role is in allowed.
func RequireRole(p *auth.Principal, allowed ...auth.Role) error {
	if p == nil {
		return apperr.Unauthenticated(auth.ErrMissingCredentials)
	}
	if slices.Contains(allowed, p.Role) {
		return nil
	}
	return apperr.Forbidden(fmt.Errorf("%w: %s", ErrRoleNotAllowed, p.Role))
}

// RequireOwnerOrRole passes iff p owns the resource or its role is in
// privileged.
func RequireOwnerOrRole(p *auth.Principal, ownerID string, privileged ...auth.Role) error {
	if p == nil {
		return apperr.Unauthenticated(auth.ErrMissingCredentials)
	}
	if ownerID != "" && p.ID == ownerID {
		return nil
	}
	if slices.Contains(privileged, p.Role) {
		return nil
	}
	return apperr.Forbidden(ErrNotOwner)
}
