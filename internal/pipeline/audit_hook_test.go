package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/audit"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/config"
)

func auditEvents(t *testing.T, buf *bytes.Buffer) []audit.Event {
	t.Helper()
	var events []audit.Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e audit.Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
	}
	return events
}

func TestAuditHook_RecordsRefusals(t *testing.T) {
	f := newFixture(t, config.TierConfig{
		Name: "general", Window: config.Duration(time.Minute), MaxRequests: 2,
		Scope: config.ScopeAll, Key: config.KeyIP,
	})

	var buf bytes.Buffer
	logger, err := audit.NewLogger(&config.AuditConfig{Enabled: true}, audit.WithWriter(&buf))
	require.NoError(t, err)

	driver := NewDriver([]Stage{
		NewRateLimitStage(f.limiter),
		NewAuthStage(auth.NewGate(f.tokens, f.users)),
		NewAuthzStage(),
	}, WithHooks(NewAuditHook(logger)))

	engine := gin.New()
	engine.GET("/admin", driver.Handle(Policy{
		Name: "admin.only", Auth: AuthRequired, Roles: []auth.Role{auth.RoleAdmin},
	}, func(c *gin.Context) { c.Status(http.StatusOK) }))
	f.engine = engine

	user := map[string]string{"Authorization": f.bearer(t, "u-1")}
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin", user).Code)
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/admin", user).Code)

	events := auditEvents(t, &buf)
	require.Len(t, events, 2)

	assert.Equal(t, audit.ActionDeny, events[0].Action)
	assert.Equal(t, audit.OutcomeDenied, events[0].Outcome)
	assert.Equal(t, "authorize", events[0].Reason)
	require.NotNil(t, events[0].Subject)
	assert.Equal(t, "u-1", events[0].Subject.ID)
	assert.Equal(t, "192.0.2.10", events[0].Subject.IPAddress)
	require.NotNil(t, events[0].Resource)
	assert.Equal(t, "admin.only", events[0].Resource.ID)

	assert.Equal(t, audit.ActionRateLimitExceeded, events[1].Action)
	assert.Equal(t, "ratelimit", events[1].Reason)
	assert.Equal(t, "general", events[1].Metadata["tier"])
}

func TestAuditHook_NilLogger(t *testing.T) {
	h := NewAuditHook(nil)
	assert.NotPanics(t, func() { h.Finish(&Exchange{}) })
}
