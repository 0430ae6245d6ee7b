// Package token issues and verifies the gateway's self-issued bearer tokens.
//
// Tokens are HS256 JWTs carrying the principal id (sub), email, role,
// issued-at, expiry, and a unique jti. They are stateless: nothing is
// persisted, and a token stays valid until it expires. Refresh issues a
// new token without revoking the old one; revocation happens only by
// deactivating the principal, which the authentication gate re-checks
// on every request.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Private claim names.
const (
	claimEmail = "email"
	claimRole  = "role"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Subject identifies who a token is issued to.
type Subject struct {
	PrincipalID string
	Email       string
	Role        string
}

// Claims are the verified contents of a token.
type Claims struct {
	ID          string
	PrincipalID string
	Email       string
	Role        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Subject returns the subject the claims were issued to.
func (c *Claims) Subject() Subject {
	return Subject{PrincipalID: c.PrincipalID, Email: c.Email, Role: c.Role}
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and verifies tokens.
type Service struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	clock   func() time.Time
	logger  observability.Logger
	metrics *Metrics
}

// Option is a functional option for the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a token service from the auth configuration. The
// secret is copied; later changes to cfg have no effect.
func NewService(cfg *config.AuthConfig, opts ...Option) (*Service, error) {
	if cfg == nil || cfg.SigningSecret == "" {
		return nil, ErrEmptySecret
	}

	s := &Service{
		key:     []byte(cfg.SigningSecret),
		issuer:  cfg.Issuer,
		ttl:     cfg.TokenTTL.Duration(),
		clock:   time.Now,
		logger:  observability.NopLogger(),
		metrics: GetMetrics(),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new token for sub.
func (s *Service) Issue(_ context.Context, sub Subject) (Token, error) {
	// JWT timestamps have second precision.
	now := s.clock().Truncate(time.Second)
	exp := now.Add(s.ttl)

	b := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(sub.PrincipalID).
		IssuedAt(now).
		Expiration(exp).
		Claim(claimEmail, sub.Email).
		Claim(claimRole, sub.Role)
	if s.issuer != "" {
		b = b.Issuer(s.issuer)
	}

	tok, err := b.Build()
	if err != nil {
		return Token{}, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.metrics.issued.Inc()
	return Token{Value: string(signed), ExpiresAt: exp}, nil
}

// Refresh issues a new token for an already verified principal. The token
// the claims came from is not revoked and remains valid until its own
// expiry.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (Token, error) {
	if claims == nil {
		return Token{}, invalid(ErrClaims, nil)
	}
	tok, err := s.Issue(ctx, claims.Subject())
	if err != nil {
		return Token{}, err
	}
	s.metrics.refreshed.Inc()
	return tok, nil
}

// Verify checks the structure, signature, expiry, and issuer of raw. Every
// failure matches ErrTokenInvalid; Cause reports which check failed.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.verify(raw)
	if err != nil {
		s.metrics.verifyFailures.WithLabelValues(causeLabel(Cause(err))).Inc()
		s.logger.WithContext(ctx).Debug("token verification failed",
			observability.Error(err),
		)
		return nil, err
	}
	return claims, nil
}

func (s *Service) verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, invalid(ErrMalformed, nil)
	}

	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return nil, invalid(ErrMalformed, err)
	}

	if _, err := jws.Verify([]byte(raw), jws.WithKey(jwa.HS256, s.key)); err != nil {
		return nil, invalid(ErrSignature, err)
	}

	exp := tok.Expiration()
	if exp.IsZero() || !s.clock().Before(exp) {
		return nil, invalid(ErrExpired, nil)
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(s.clock)),
	}
	if s.issuer != "" {
		validateOpts = append(validateOpts, jwt.WithIssuer(s.issuer))
	}
	if err := jwt.Validate(tok, validateOpts...); err != nil {
		return nil, invalid(ErrClaims, err)
	}

	claims := &Claims{
		ID:          tok.JwtID(),
		PrincipalID: tok.Subject(),
		Email:       stringClaim(tok, claimEmail),
		Role:        stringClaim(tok, claimRole),
		IssuedAt:    tok.IssuedAt(),
		ExpiresAt:   exp,
	}
	if claims.PrincipalID == "" || claims.Role == "" {
		return nil, invalid(ErrClaims, nil)
	}
	return claims, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func causeLabel(cause error) string {
	switch {
	case errors.Is(cause, ErrMalformed):
		return "malformed"
	case errors.Is(cause, ErrSignature):
		return "signature"
	case errors.Is(cause, ErrExpired):
		return "expired"
	default:
		return "claims"
	}
}
