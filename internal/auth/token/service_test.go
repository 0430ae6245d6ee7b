package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/config"
)

const testSecret = "test-signing-secret-0123456789abcdef"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, clock *fakeClock) *Service {
	t.Helper()
	svc, err := NewService(&config.AuthConfig{
		SigningSecret: testSecret,
		Issuer:        "avagate-test",
		TokenTTL:      config.Duration(time.Hour),
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}

var alice = Subject{PrincipalID: "p-5", Email: "alice@example.com", Role: "USER"}

func TestNewService(t *testing.T) {
	_, err := NewService(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewService(&config.AuthConfig{})
	assert.ErrorIs(t, err, ErrEmptySecret)

	svc, err := NewService(&config.AuthConfig{SigningSecret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestService_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newTestService(t, clock)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(time.Hour), tok.ExpiresAt)
	assert.Equal(t, 2, strings.Count(tok.Value, "."))

	claims, err := svc.Verify(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, alice, claims.Subject())
	assert.Equal(t, clock.now, claims.IssuedAt.UTC())
	assert.Equal(t, tok.ExpiresAt, claims.ExpiresAt.UTC())
	assert.NotEmpty(t, claims.ID)
}

func TestService_VerifyFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newTestService(t, clock)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, alice)
	require.NoError(t, err)

	other, err := NewService(&config.AuthConfig{
		SigningSecret: "another-signing-secret-0123456789ab",
		Issuer:        "avagate-test",
		TokenTTL:      config.Duration(time.Hour),
	}, WithClock(clock.Now))
	require.NoError(t, err)
	forged, err := other.Issue(ctx, Subject{PrincipalID: "p-5", Email: "alice@example.com", Role: "ADMIN"})
	require.NoError(t, err)

	foreignIssuer, err := NewService(&config.AuthConfig{
		SigningSecret: testSecret,
		Issuer:        "someone-else",
		TokenTTL:      config.Duration(time.Hour),
	}, WithClock(clock.Now))
	require.NoError(t, err)
	wrongIssuer, err := foreignIssuer.Issue(ctx, alice)
	require.NoError(t, err)

	parts := strings.Split(tok.Value, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		raw   string
		cause error
	}{
		{name: "empty", raw: "", cause: ErrMalformed},
		{name: "garbage", raw: "not-a-token", cause: ErrMalformed},
		{name: "bad signature", raw: forged.Value, cause: ErrSignature},
		{name: "tampered payload", raw: tampered},
		{name: "wrong issuer", raw: wrongIssuer.Value, cause: ErrClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Verify(ctx, tt.raw)
			assert.Nil(t, claims)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
				assert.Equal(t, tt.cause, Cause(err))
			}
		})
	}
}

func TestService_ExpiredTokenFailsRegardlessOfSignature(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newTestService(t, clock)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, alice)
	require.NoError(t, err)

	clock.Advance(time.Hour - time.Second)
	_, err = svc.Verify(ctx, tok.Value)
	require.NoError(t, err, "valid just before expiry")

	clock.Advance(time.Second)
	_, err = svc.Verify(ctx, tok.Value)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestService_RefreshDoesNotRevoke(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := newTestService(t, clock)
	ctx := context.Background()

	original, err := svc.Issue(ctx, alice)
	require.NoError(t, err)
	claims, err := svc.Verify(ctx, original.Value)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	refreshed, err := svc.Refresh(ctx, claims)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(original.ExpiresAt))
	assert.NotEqual(t, original.Value, refreshed.Value)

	_, err = svc.Verify(ctx, original.Value)
	assert.NoError(t, err, "old token stays valid until its own expiry")

	clock.Advance(45 * time.Minute)
	_, err = svc.Verify(ctx, original.Value)
	assert.ErrorIs(t, err, ErrExpired)
	_, err = svc.Verify(ctx, refreshed.Value)
	assert.NoError(t, err)

	_, err = svc.Refresh(ctx, nil)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCauseLabel(t *testing.T) {
	assert.Equal(t, "malformed", causeLabel(ErrMalformed))
	assert.Equal(t, "signature", causeLabel(ErrSignature))
	assert.Equal(t, "expired", causeLabel(ErrExpired))
	assert.Equal(t, "claims", causeLabel(nil))
}
