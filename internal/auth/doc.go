// Package auth resolves a request's bearer token into a live, active
// principal.
//
// The Gate verifies the token with the token service and then looks the
// principal up in the store on every request. Signature validity alone
// never authenticates: a deactivated or deleted principal is rejected even
// while its token is unexpired. All failures surface as ErrUnauthenticated
// with the same public message; the specific cause is only logged.
//
//	gate := auth.NewGate(tokens, store, auth.WithGateLogger(logger))
//	principal, err := gate.Authenticate(ctx, r.Header.Get("Authorization"), auth.ModeRequired)
package auth
