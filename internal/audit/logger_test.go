package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

func TestNewLogger_DisabledIsNoop(t *testing.T) {
	l, err := NewLogger(&config.AuditConfig{Enabled: false})
	require.NoError(t, err)
	_, ok := l.(noopLogger)
	assert.True(t, ok)
	l.LogEvent(context.Background(), NewEvent(EventTypeSecurity, ActionDeny, OutcomeDenied))
	assert.NoError(t, l.Close())

	l, err = NewLogger(nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&config.AuditConfig{Enabled: true, Format: config.AuditFormatJSON}, WithWriter(&buf))
	require.NoError(t, err)

	ctx := observability.ContextWithRequestID(context.Background(), "req-1")
	l.LogEvent(ctx, NewEvent(EventTypeAuthentication, ActionLogin, OutcomeFailure).
		WithSubject(&Subject{Email: "a@example.com", IPAddress: "192.0.2.1"}).
		WithReason("invalid_credentials"))
	l.LogEvent(ctx, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, EventTypeAuthentication, got.Type)
	assert.Equal(t, ActionLogin, got.Action)
	assert.Equal(t, OutcomeFailure, got.Outcome)
	assert.Equal(t, "invalid_credentials", got.Reason)
	assert.Equal(t, "req-1", got.RequestID)
	require.NotNil(t, got.Subject)
	assert.Equal(t, "192.0.2.1", got.Subject.IPAddress)
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&config.AuditConfig{Enabled: true, Format: config.AuditFormatText}, WithWriter(&buf))
	require.NoError(t, err)

	l.LogEvent(context.Background(), NewEvent(EventTypeAdministrative, ActionRoleAssign, OutcomeSuccess).
		WithSubject(&Subject{ID: "admin-1"}).
		WithResource(&Resource{Type: "principal", ID: "u-2", Method: "PATCH", Path: "/api/v1/users/u-2/role"}).
		WithMetadata("role", "MODERATOR"))

	line := buf.String()
	assert.Contains(t, line, "administrative role_assign success")
	assert.Contains(t, line, "subject=admin-1")
	assert.Contains(t, line, "resource=PATCH /api/v1/users/u-2/role")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(&config.AuditConfig{Enabled: true, Output: path})
	require.NoError(t, err)

	l.LogEvent(context.Background(), NewEvent(EventTypeSecurity, ActionRateLimitExceeded, OutcomeDenied))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"rate_limit_exceeded"`)
}

func TestLogger_BadFile(t *testing.T) {
	_, err := NewLogger(&config.AuditConfig{Enabled: true, Output: filepath.Join(t.TempDir(), "missing", "audit.log")})
	require.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLogger_WriteErrorDoesNotPanic(t *testing.T) {
	l, err := NewLogger(&config.AuditConfig{Enabled: true}, WithWriter(failingWriter{}))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		l.LogEvent(context.Background(), NewEvent(EventTypeAuthorization, ActionDeny, OutcomeDenied))
	})
}
