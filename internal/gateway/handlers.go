package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/audit"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/httperr"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/store"
)

var (
	errRouteNotFound = apperr.NotFound("route not found")
	errUnknownEmail  = errors.New("unknown email")
	errWrongPassword = errors.New("wrong password")
	errInactive      = errors.New("principal is inactive")
	errNoPrincipal   = errors.New("no principal in request context")
)

// dummyPassword is hashed once and verified against when a login names an
// unknown email, so both failures cost one bcrypt comparison.
const dummyPassword = "avagate-login-timing-equalizer"

type registerRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=100"`
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

type createUserRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=100"`
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	Role        string `json:"role" binding:"omitempty,oneof=USER ADMIN MODERATOR"`
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,min=1,max=100"`
	Email       *string `json:"email" binding:"omitempty,email,max=254"`
	Password    *string `json:"password" binding:"omitempty,min=8,max=72"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=USER ADMIN MODERATOR"`
}

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Principal *auth.Principal `json:"principal,omitempty"`
}

// profile is the view of a principal any authenticated caller may see.
type profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        auth.Role `json:"role"`
	Active      bool      `json:"active"`
}

type listResponse struct {
	Users []profile `json:"users"`
	Count int       `json:"count"`
}

// fail writes err and, for process-fatal errors, notifies the fatal
// handler.
func (g *Gateway) fail(c *gin.Context, err error) {
	e := apperr.As(err)
	if e.Status() >= http.StatusInternalServerError {
		g.logger.WithContext(c.Request.Context()).Error("request failed",
			observability.String("path", c.Request.URL.Path),
			observability.String("kind", string(e.Kind)),
			observability.Error(err),
		)
	}
	httperr.Write(c, e, g.cfg.DevMode)
	if apperr.IsFatal(e) {
		g.onFatal(e)
	}
}

// storeError maps store sentinels onto the error taxonomy.
func storeError(err error) error {
	switch {
	case errors.Is(err, auth.ErrPrincipalNotFound):
		return apperr.NotFound("principal not found")
	case errors.Is(err, auth.ErrEmailTaken):
		return apperr.Conflict("email already registered")
	case apperr.As(err).Kind != apperr.KindInternal:
		return err
	}
	return apperr.Internal(err)
}

func (g *Gateway) principal(c *gin.Context) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		return nil, apperr.Unauthenticated(errNoPrincipal)
	}
	return p, nil
}

func (g *Gateway) issue(c *gin.Context, p *auth.Principal) (token.Token, error) {
	return g.deps.Tokens.Issue(c.Request.Context(), token.Subject{
		PrincipalID: p.ID,
		Email:       p.Email,
		Role:        p.Role.String(),
	})
}

// newPrincipal hashes the password and builds an active principal.
func (g *Gateway) newPrincipal(displayName, email, password string, role auth.Role) (*auth.Principal, error) {
	digest, err := g.deps.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()
	return &auth.Principal{
		ID:           uuid.NewString(),
		DisplayName:  displayName,
		Email:        store.NormalizeEmail(email),
		Role:         role,
		Active:       true,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (g *Gateway) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	p, err := g.newPrincipal(req.DisplayName, req.Email, req.Password, auth.RoleUser)
	if err != nil {
		g.fail(c, err)
		return
	}
	if err := g.deps.Store.Create(c.Request.Context(), p); err != nil {
		g.fail(c, storeError(err))
		return
	}

	tok, err := g.issue(c, p)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.logger.WithContext(c.Request.Context()).Info("principal registered",
		observability.String("principal_id", p.ID),
	)
	g.audit(c, audit.NewEvent(audit.EventTypeAuthentication, audit.ActionRegister, audit.OutcomeSuccess), p)
	c.JSON(http.StatusCreated, authResponse{Token: tok.Value, ExpiresAt: tok.ExpiresAt, Principal: p})
}

func (g *Gateway) dummyDigest() string {
	g.dummyOnce.Do(func() {
		digest, err := g.deps.Hasher.Hash(dummyPassword)
		if err != nil {
			g.logger.Warn("failed to prepare login timing digest", observability.Error(err))
			return
		}
		g.dummyHash = digest
	})
	return g.dummyHash
}

// login answers every credential failure with the same 401 so callers
// cannot probe which emails exist.
func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	p, err := g.deps.Store.LookupByEmail(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, auth.ErrPrincipalNotFound):
		g.deps.Hasher.Verify(req.Password, g.dummyDigest())
		g.auditLogin(c, audit.OutcomeFailure, req.Email, reasonUnknownEmail, nil)
		g.fail(c, apperr.Unauthenticated(errUnknownEmail))
		return
	case err != nil:
		g.fail(c, apperr.Internal(err))
		return
	}

	if !g.deps.Hasher.Verify(req.Password, p.PasswordHash) {
		g.auditLogin(c, audit.OutcomeFailure, req.Email, reasonWrongPassword, p)
		g.fail(c, apperr.Unauthenticated(errWrongPassword))
		return
	}
	if !p.Active {
		g.auditLogin(c, audit.OutcomeFailure, req.Email, reasonInactive, p)
		g.fail(c, apperr.Unauthenticated(errInactive))
		return
	}

	tok, err := g.issue(c, p)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.auditLogin(c, audit.OutcomeSuccess, req.Email, "", p)
	c.JSON(http.StatusOK, authResponse{Token: tok.Value, ExpiresAt: tok.ExpiresAt, Principal: p})
}

// refresh issues a fresh token for the caller. Email and role come from
// the stored principal, not the presented token.
func (g *Gateway) refresh(c *gin.Context) {
	p, err := g.principal(c)
	if err != nil {
		g.fail(c, err)
		return
	}
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		g.fail(c, apperr.Unauthenticated(errNoPrincipal))
		return
	}

	current := *claims
	current.Email = p.Email
	current.Role = p.Role.String()
	tok, err := g.deps.Tokens.Refresh(c.Request.Context(), &current)
	if err != nil {
		g.fail(c, err)
		return
	}
	g.audit(c, audit.NewEvent(audit.EventTypeAuthentication, audit.ActionTokenRefresh, audit.OutcomeSuccess), p)
	c.JSON(http.StatusOK, authResponse{Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (g *Gateway) me(c *gin.Context) {
	p, err := g.principal(c)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) listUsers(c *gin.Context) {
	all, err := g.deps.Store.List(c.Request.Context())
	if err != nil {
		g.fail(c, storeError(err))
		return
	}
	out := make([]profile, 0, len(all))
	for _, p := range all {
		out = append(out, profile{ID: p.ID, DisplayName: p.DisplayName, Role: p.Role, Active: p.Active})
	}
	c.JSON(http.StatusOK, listResponse{Users: out, Count: len(out)})
}

func (g *Gateway) getUser(c *gin.Context) {
	p, err := g.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, storeError(err))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) createUser(c *gin.Context) {
	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}
	role := auth.RoleUser
	if req.Role != "" {
		role = auth.Role(req.Role)
	}

	p, err := g.newPrincipal(req.DisplayName, req.Email, req.Password, role)
	if err != nil {
		g.fail(c, err)
		return
	}
	if err := g.deps.Store.Create(c.Request.Context(), p); err != nil {
		g.fail(c, storeError(err))
		return
	}
	g.audit(c, audit.NewEvent(audit.EventTypeAdministrative, audit.ActionUserCreate, audit.OutcomeSuccess).
		WithMetadata("role", p.Role.String()), p)
	c.JSON(http.StatusCreated, p)
}

func (g *Gateway) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	p, err := g.deps.Store.Get(ctx, c.Param("id"))
	if err != nil {
		g.fail(c, storeError(err))
		return
	}
	if req.DisplayName != nil {
		p.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		p.Email = store.NormalizeEmail(*req.Email)
	}
	if req.Password != nil {
		digest, err := g.deps.Hasher.Hash(*req.Password)
		if err != nil {
			g.fail(c, err)
			return
		}
		p.PasswordHash = digest
	}
	p.UpdatedAt = g.now().UTC()

	if err := g.deps.Store.Update(ctx, p); err != nil {
		g.fail(c, storeError(err))
		return
	}
	event := audit.NewEvent(audit.EventTypeAdministrative, audit.ActionUserUpdate, audit.OutcomeSuccess)
	if req.Password != nil {
		event.WithMetadata("password_changed", "true")
	}
	g.audit(c, event, p)
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) changeRole(c *gin.Context) {
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		g.fail(c, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		g.fail(c, apperr.Validation("request validation failed", map[string]string{"role": err.Error()}))
		return
	}

	ctx := c.Request.Context()
	p, err := g.deps.Store.Get(ctx, c.Param("id"))
	if err != nil {
		g.fail(c, storeError(err))
		return
	}
	p.Role = role
	p.UpdatedAt = g.now().UTC()
	if err := g.deps.Store.Update(ctx, p); err != nil {
		g.fail(c, storeError(err))
		return
	}

	g.logger.WithContext(ctx).Info("principal role changed",
		observability.String("principal_id", p.ID),
		observability.String("role", role.String()),
	)
	g.audit(c, audit.NewEvent(audit.EventTypeAdministrative, audit.ActionRoleAssign, audit.OutcomeSuccess).
		WithMetadata("role", role.String()), p)
	c.JSON(http.StatusOK, p)
}

func (g *Gateway) deactivateUser(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := g.deps.Store.Deactivate(ctx, id); err != nil {
		g.fail(c, storeError(err))
		return
	}
	g.logger.WithContext(ctx).Info("principal deactivated", observability.String("principal_id", id))
	g.audit(c, audit.NewEvent(audit.EventTypeAdministrative, audit.ActionUserDeactivate, audit.OutcomeSuccess),
		&auth.Principal{ID: id})
	c.Status(http.StatusNoContent)
}
