package auth

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Mode selects how a route treats a missing Authorization header.
type Mode int

const (
	// ModeRequired rejects requests without credentials.
	ModeRequired Mode = iota
	// ModeOptional passes requests without credentials through with no
	// principal attached. Credentials that are present must still be valid.
	ModeOptional
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeOptional {
		return "optional"
	}
	return "required"
}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// Gate authenticates requests.
type Gate struct {
	verifier TokenVerifier
	lookup   PrincipalLookup
	logger   observability.Logger
	metrics  *Metrics
}

// GateOption is a functional option for the Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// NewGate creates an authentication gate.
func NewGate(verifier TokenVerifier, lookup PrincipalLookup, opts ...GateOption) *Gate {
	g := &Gate{
		verifier: verifier,
		lookup:   lookup,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics("gateway")
	}
	return g
}

// Result is a successful authentication. Principal is nil when an
// optional route was called without credentials.
type Result struct {
	Principal *Principal
	Claims    *token.Claims
}

// Verification is the outcome of checking one Authorization header value
// against a TokenVerifier. It lets a caller that already verified the
// header hand the result to AuthenticateVerified.
type Verification struct {
	Header string
	Claims *token.Claims
	// Err is the extraction error when Extracted is false, otherwise the
	// verification error.
	Err       error
	Extracted bool
}

// VerifyHeader extracts the bearer token from header and verifies it once.
func VerifyHeader(ctx context.Context, verifier TokenVerifier, header string) Verification {
	v := Verification{Header: header}
	raw, err := ExtractBearer(header)
	if err != nil {
		v.Err = err
		return v
	}
	v.Extracted = true
	v.Claims, v.Err = verifier.Verify(ctx, raw)
	return v
}

// Authenticate resolves the Authorization header value into an active
// principal. Every failure is an *apperr.Error of kind Unauthenticated
// that matches ErrUnauthenticated; its cause is only for logs.
func (g *Gate) Authenticate(ctx context.Context, header string, mode Mode) (Result, error) {
	return g.AuthenticateVerified(ctx, VerifyHeader(ctx, g.verifier, header), mode)
}

// AuthenticateVerified is Authenticate for a header that was already
// verified with the gate's verifier.
func (g *Gate) AuthenticateVerified(ctx context.Context, v Verification, mode Mode) (Result, error) {
	if !v.Extracted {
		if errors.Is(v.Err, ErrMissingCredentials) && mode == ModeOptional {
			return Result{}, nil
		}
		return Result{}, g.fail(ctx, "credentials", v.Err)
	}
	if v.Err != nil {
		return Result{}, g.fail(ctx, "token", v.Err)
	}
	if v.Claims == nil {
		return Result{}, g.fail(ctx, "token", token.ErrMalformed)
	}
	claims := v.Claims

	p, err := g.lookup.LookupActivePrincipal(ctx, claims.PrincipalID)
	if err != nil {
		reason := "lookup"
		if errors.Is(err, ErrPrincipalNotFound) {
			reason = "not_found"
		}
		return Result{}, g.fail(ctx, reason, err)
	}
	if p == nil || !p.Active {
		return Result{}, g.fail(ctx, "inactive", ErrPrincipalInactive)
	}
	if p.ID != claims.PrincipalID {
		return Result{}, g.fail(ctx, "mismatch", ErrPrincipalMismatch)
	}

	g.metrics.success.Inc()
	return Result{Principal: p, Claims: claims}, nil
}

func (g *Gate) fail(ctx context.Context, reason string, cause error) error {
	g.metrics.failure.WithLabelValues(reason).Inc()
	g.logger.WithContext(ctx).Debug("authentication failed",
		observability.String("reason", reason),
		observability.Error(cause),
	)
	return apperr.Unauthenticated(cause)
}
