package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth"
)

func TestRequireRole(t *testing.T) {
	admin := &auth.Principal{ID: "1", Role: auth.RoleAdmin}
	user := &auth.Principal{ID: "2", Role: auth.RoleUser}

	tests := []struct {
		name     string
		p        *auth.Principal
		allowed  []auth.Role
		wantKind apperr.Kind
	}{
		{name: "allowed", p: admin, allowed: []auth.Role{auth.RoleAdmin, auth.RoleModerator}},
		{name: "not allowed", p: user, allowed: []auth.Role{auth.RoleAdmin}, wantKind: apperr.KindForbidden},
		{name: "empty set", p: admin, wantKind: apperr.KindForbidden},
		{name: "no principal", p: nil, allowed: []auth.Role{auth.RoleUser}, wantKind: apperr.KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.p, tt.allowed...)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestRequireOwnerOrRole(t *testing.T) {
	privileged := []auth.Role{auth.RoleAdmin}

	tests := []struct {
		name     string
		p        *auth.Principal
		owner    string
		wantKind apperr.Kind
	}{
		{name: "owner with user role", p: &auth.Principal{ID: "5", Role: auth.RoleUser}, owner: "5"},
		{name: "other owner", p: &auth.Principal{ID: "5", Role: auth.RoleUser}, owner: "7", wantKind: apperr.KindForbidden},
		{name: "privileged non-owner", p: &auth.Principal{ID: "5", Role: auth.RoleAdmin}, owner: "7"},
		{name: "moderator not privileged here", p: &auth.Principal{ID: "5", Role: auth.RoleModerator}, owner: "7", wantKind: apperr.KindForbidden},
		{name: "empty owner", p: &auth.Principal{ID: "", Role: auth.RoleUser}, owner: "", wantKind: apperr.KindForbidden},
		{name: "no principal", p: nil, owner: "5", wantKind: apperr.KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireOwnerOrRole(tt.p, tt.owner, privileged...)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantKind == apperr.KindForbidden {
				assert.ErrorIs(t, err, ErrForbidden)
				assert.NotErrorIs(t, err, auth.ErrUnauthenticated)
			} else {
				assert.ErrorIs(t, err, auth.ErrUnauthenticated)
			}
		})
	}
}
