package auth

import (
	"context"

	"github.com/vyrodovalexey/avagate/internal/auth/token"
)

type contextKey int

const (
	principalKey contextKey = iota
	claimsKey
)

// ContextWithPrincipal returns a context carrying the authenticated
// principal and the claims it was resolved from.
func ContextWithPrincipal(ctx context.Context, p *Principal, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	if claims != nil {
		ctx = context.WithValue(ctx, claimsKey, claims)
	}
	return ctx
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*token.Claims)
	return c, ok && c != nil
}
