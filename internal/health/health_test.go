package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	engine := gin.New()
	engine.GET("/", h)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestChecker_Health(t *testing.T) {
	c := NewChecker("1.2.3")

	w, body := serve(t, c.HealthHandler())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		draining   bool
		wantStatus int
		wantBody   Status
	}{
		{name: "ready", wantStatus: http.StatusOK, wantBody: StatusHealthy},
		{name: "store down", storeErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantBody: StatusUnhealthy},
		{name: "draining", draining: true, wantStatus: http.StatusServiceUnavailable, wantBody: StatusDraining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("dev")
			c.RegisterCheck("store", func(context.Context) error { return tt.storeErr })
			c.SetDraining(tt.draining)

			w, body := serve(t, c.ReadinessHandler())
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantBody), body["status"])

			checks, ok := body["checks"].(map[string]any)
			require.True(t, ok)
			store, ok := checks["store"].(map[string]any)
			require.True(t, ok)
			if tt.storeErr != nil {
				assert.Equal(t, "connection refused", store["message"])
			}
		})
	}
}

func TestChecker_ReadinessTimeout(t *testing.T) {
	c := NewChecker("dev", WithTimeout(10*time.Millisecond))
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["slow"].Message)
}
