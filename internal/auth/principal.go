package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is a principal's role. The set is closed.
type Role string

// Roles.
const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleAdmin, RoleModerator}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal is an identity known to the store.
type Principal struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store errors.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrEmailTaken        = errors.New("email already registered")
)

// PrincipalLookup resolves principals during authentication.
type PrincipalLookup interface {
	// LookupActivePrincipal returns the principal with id, or
	// ErrPrincipalNotFound when it does not exist or is inactive.
	LookupActivePrincipal(ctx context.Context, id string) (*Principal, error)
}

// PrincipalStore is the persistence collaborator for principals. The gate
// only reads through it; registration and user handlers write.
type PrincipalStore interface {
	PrincipalLookup

	// LookupByEmail returns the principal with email, active or not.
	LookupByEmail(ctx context.Context, email string) (*Principal, error)

	// Get returns the principal with id, active or not.
	Get(ctx context.Context, id string) (*Principal, error)

	// List returns all principals ordered by creation time.
	List(ctx context.Context) ([]*Principal, error)

	// Create stores a new principal. It returns ErrEmailTaken when the
	// email is already registered.
	Create(ctx context.Context, p *Principal) error

	// Update replaces the mutable fields of an existing principal.
	Update(ctx context.Context, p *Principal) error

	// Deactivate marks the principal inactive.
	Deactivate(ctx context.Context, id string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
