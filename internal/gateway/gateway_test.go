package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avagate/internal/apperr"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/credential"
	"github.com/vyrodovalexey/avagate/internal/health"
	"github.com/vyrodovalexey/avagate/internal/httperr"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
	"github.com/vyrodovalexey/avagate/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	gw     *Gateway
	store  *store.MemoryStore
	cache  *cache.MemoryCache
	hasher credential.Hasher
	health *health.Checker

	mu    sync.Mutex
	now   time.Time
	fatal []error
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Auth.SigningSecret = "gateway-test-secret-0123456789abcdef"
	cfg.Auth.TokenTTL = config.Duration(time.Hour)
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.SlowDown = nil
	cfg.Metrics.Enabled = false
	cfg.Store.Driver = config.DriverMemory
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*config.Config, *Dependencies)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		now:    time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		store:  store.NewMemoryStore(),
		hasher: credential.NewBcryptHasher(bcrypt.MinCost),
		health: health.NewChecker("test"),
	}
	cfg := testConfig()

	tokens, err := token.NewService(&cfg.Auth, token.WithClock(h.clock))
	require.NoError(t, err)
	limiter, err := ratelimit.New(&cfg.RateLimit, ratelimit.WithClock(h.clock))
	require.NoError(t, err)
	h.cache = cache.NewMemoryCache(&cfg.Cache, cache.WithClock(h.clock), cache.WithSweepInterval(0))
	t.Cleanup(func() { _ = h.cache.Close() })

	deps := Dependencies{
		Store:   h.store,
		Tokens:  tokens,
		Hasher:  h.hasher,
		Limiter: limiter,
		Cache:   h.cache,
		Health:  h.health,
	}
	for _, m := range mutate {
		m(cfg, &deps)
	}

	h.gw, err = New(cfg, deps,
		WithClock(h.clock),
		WithFatalHandler(func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.fatal = append(h.fatal, err)
		}),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) seed(email, password string, role auth.Role) *auth.Principal {
	h.t.Helper()
	digest, err := h.hasher.Hash(password)
	require.NoError(h.t, err)
	p := &auth.Principal{
		ID:           "seed-" + email,
		DisplayName:  email,
		Email:        email,
		Role:         role,
		Active:       true,
		PasswordHash: digest,
		CreatedAt:    h.clock(),
		UpdatedAt:    h.clock(),
	}
	require.NoError(h.t, h.store.Create(context.Background(), p))
	return p
}

func (h *harness) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.gw.Engine().ServeHTTP(w, req)
	return w
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{"email": email, "password": password})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var resp authResponse
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(h.t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httperr.Body {
	t.Helper()
	var body httperr.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var list listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list), w.Body.String())
	return list
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Dependencies{})
	require.Error(t, err)

	_, err = New(testConfig(), Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "stopped"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

// Register, log in, read the list twice (miss then hit), let an admin
// create a user, and read again: the create must invalidate the list.
func TestEndToEnd_CachedListInvalidatedByCreate(t *testing.T) {
	h := newHarness(t)
	h.seed("admin@example.com", "admin-password", auth.RoleAdmin)

	w := h.do(http.MethodPost, AuthPrefix+"/register", "", gin.H{
		"display_name": "Alice",
		"email":        "Alice@Example.com",
		"password":     "alice-password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var registered authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.Token)
	require.NotNil(t, registered.Principal)
	assert.Equal(t, "alice@example.com", registered.Principal.Email)
	assert.Equal(t, auth.RoleUser, registered.Principal.Role)
	assert.NotContains(t, w.Body.String(), "password")

	alice := h.login("alice@example.com", "alice-password")

	first := h.do(http.MethodGet, UsersPath, alice, nil)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, pipeline.CacheMiss, first.Header().Get(pipeline.HeaderCache))
	assert.Equal(t, 2, decodeList(t, first).Count)

	second := h.do(http.MethodGet, UsersPath, alice, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, pipeline.CacheHit, second.Header().Get(pipeline.HeaderCache))
	assert.Equal(t, first.Body.String(), second.Body.String())

	admin := h.login("admin@example.com", "admin-password")
	w = h.do(http.MethodPost, UsersPath, admin, gin.H{
		"display_name": "Bob",
		"email":        "bob@example.com",
		"password":     "bob-password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bob auth.Principal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bob))
	assert.Equal(t, auth.RoleUser, bob.Role)

	third := h.do(http.MethodGet, UsersPath, alice, nil)
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, pipeline.CacheMiss, third.Header().Get(pipeline.HeaderCache))
	list := decodeList(t, third)
	assert.Equal(t, 3, list.Count)
	ids := make([]string, 0, len(list.Users))
	for _, u := range list.Users {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, bob.ID)
	assert.NotContains(t, third.Body.String(), "bob@example.com", "list exposes public profiles only")
}

// Six wrong-password logins from one address: five 401s, then a 429
// whose retry hint is within the window.
func TestEndToEnd_LoginBruteForceIsRateLimited(t *testing.T) {
	h := newHarness(t)
	h.seed("victim@example.com", "correct-password", auth.RoleUser)

	for i := 0; i < 5; i++ {
		w := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
			"email": "victim@example.com", "password": fmt.Sprintf("guess-%d", i),
		})
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		assert.Equal(t, apperr.KindUnauthenticated, decodeError(t, w).Code)
	}

	w := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "victim@example.com", "password": "guess-6",
	})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperr.KindRateLimited, body.Code)
	assert.Greater(t, body.RetryAfter, int64(0))
	assert.LessOrEqual(t, body.RetryAfter, int64(900))

	retry, err := strconv.ParseInt(w.Header().Get(ratelimit.HeaderRetryAfter), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, body.RetryAfter, retry)

	// Even the right password is refused until the window resets.
	w = h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "victim@example.com", "password": "correct-password",
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	h.advance(15 * time.Minute)
	h.login("victim@example.com", "correct-password")
}

func TestLogin_SuccessDoesNotCountTowardAuthLimit(t *testing.T) {
	h := newHarness(t)
	h.seed("user@example.com", "user-password", auth.RoleUser)

	for i := 0; i < 8; i++ {
		h.login("user@example.com", "user-password")
	}
}

func TestLogin_OversizedBodiesCountTowardAuthLimit(t *testing.T) {
	h := newHarness(t)

	oversized := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, AuthPrefix+"/login", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = 2 << 20
		w := httptest.NewRecorder()
		h.gw.Engine().ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 5; i++ {
		w := oversized()
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, "attempt %d", i+1)
		assert.NotEmpty(t, w.Header().Get(ratelimit.HeaderRemaining))
	}
	assert.Equal(t, http.StatusTooManyRequests, oversized().Code)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	p := h.seed("known@example.com", "known-password", auth.RoleUser)

	unknown := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "nobody@example.com", "password": "whatever-password",
	})
	wrong := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "known@example.com", "password": "wrong-password",
	})
	require.NoError(t, h.store.Deactivate(context.Background(), p.ID))
	inactive := h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "known@example.com", "password": "known-password",
	})

	for _, w := range []*httptest.ResponseRecorder{unknown, wrong, inactive} {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Equal(t, unknown.Body.String(), inactive.Body.String())
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		body   any
		fields []string
	}{
		{
			name:   "missing fields",
			body:   gin.H{},
			fields: []string{"display_name", "email", "password"},
		},
		{
			name:   "bad email and short password",
			body:   gin.H{"display_name": "x", "email": "not-an-email", "password": "short"},
			fields: []string{"email", "password"},
		},
		{
			name: "malformed json",
			body: `{"email":`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, AuthPrefix+"/register", "", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decodeError(t, w)
			assert.Equal(t, apperr.KindValidationFailed, body.Code)
			for _, f := range tt.fields {
				assert.Contains(t, body.Fields, f)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.seed("taken@example.com", "taken-password", auth.RoleUser)

	w := h.do(http.MethodPost, AuthPrefix+"/register", "", gin.H{
		"display_name": "Dup", "email": "TAKEN@example.com", "password": "another-password",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperr.KindConflict, decodeError(t, w).Code)
}

type failingHasher struct{ credential.Hasher }

func (failingHasher) Hash(string) (string, error) {
	return "", apperr.New(apperr.KindHashFailure, errors.New("entropy source unavailable"))
}

func TestRegister_HashFailureIsFatal(t *testing.T) {
	h := newHarness(t, func(_ *config.Config, d *Dependencies) {
		d.Hasher = failingHasher{d.Hasher}
	})

	w := h.do(http.MethodPost, AuthPrefix+"/register", "", gin.H{
		"display_name": "X", "email": "x@example.com", "password": "x-password",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperr.KindHashFailure, decodeError(t, w).Code)
	assert.NotContains(t, w.Body.String(), "entropy", "cause hidden outside dev mode")

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.fatal, 1)
	assert.True(t, apperr.IsFatal(h.fatal[0]))
}

func TestMe_AndRefresh(t *testing.T) {
	h := newHarness(t)
	p := h.seed("me@example.com", "me-password", auth.RoleUser)
	tok := h.login("me@example.com", "me-password")

	w := h.do(http.MethodGet, AuthPrefix+"/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me auth.Principal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, p.ID, me.ID)

	w = h.do(http.MethodGet, AuthPrefix+"/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	h.advance(time.Minute)
	w = h.do(http.MethodPost, AuthPrefix+"/refresh", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.NotEqual(t, tok, refreshed.Token)
	assert.True(t, h.clock().Add(time.Hour).Equal(refreshed.ExpiresAt), refreshed.ExpiresAt.String())

	w = h.do(http.MethodGet, AuthPrefix+"/me", refreshed.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUsers_Authorization(t *testing.T) {
	h := newHarness(t)
	h.seed("admin@example.com", "admin-password", auth.RoleAdmin)
	h.seed("mod@example.com", "mod-password", auth.RoleModerator)
	alice := h.seed("alice@example.com", "alice-password", auth.RoleUser)
	bob := h.seed("bob@example.com", "bob-password", auth.RoleUser)

	tokens := map[string]string{
		"admin": h.login("admin@example.com", "admin-password"),
		"mod":   h.login("mod@example.com", "mod-password"),
		"alice": h.login("alice@example.com", "alice-password"),
	}
	tests := []struct {
		name   string
		as     string
		method string
		path   string
		body   any
		want   int
	}{
		{"owner reads self", "alice", http.MethodGet, UsersPath + "/" + alice.ID, nil, http.StatusOK},
		{"user reads other", "alice", http.MethodGet, UsersPath + "/" + bob.ID, nil, http.StatusForbidden},
		{"moderator reads other", "mod", http.MethodGet, UsersPath + "/" + bob.ID, nil, http.StatusOK},
		{"admin reads missing", "admin", http.MethodGet, UsersPath + "/nope", nil, http.StatusNotFound},
		{"user creates", "alice", http.MethodPost, UsersPath, gin.H{"display_name": "c", "email": "c@example.com", "password": "c-password"}, http.StatusForbidden},
		{"moderator creates", "mod", http.MethodPost, UsersPath, gin.H{"display_name": "c", "email": "c@example.com", "password": "c-password"}, http.StatusForbidden},
		{"owner updates self", "alice", http.MethodPut, UsersPath + "/" + alice.ID, gin.H{"display_name": "Alice B"}, http.StatusOK},
		{"user updates other", "alice", http.MethodPut, UsersPath + "/" + bob.ID, gin.H{"display_name": "hacked"}, http.StatusForbidden},
		{"moderator updates other", "mod", http.MethodPut, UsersPath + "/" + bob.ID, gin.H{"display_name": "hacked"}, http.StatusForbidden},
		{"user changes own role", "alice", http.MethodPatch, UsersPath + "/" + alice.ID + "/role", gin.H{"role": "ADMIN"}, http.StatusForbidden},
		{"admin changes role", "admin", http.MethodPatch, UsersPath + "/" + bob.ID + "/role", gin.H{"role": "MODERATOR"}, http.StatusOK},
		{"admin sets unknown role", "admin", http.MethodPatch, UsersPath + "/" + bob.ID + "/role", gin.H{"role": "ROOT"}, http.StatusBadRequest},
		{"user deactivates other", "alice", http.MethodDelete, UsersPath + "/" + bob.ID, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path, tokens[tt.as], tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	got, err := h.store.Get(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, got.Role)
	assert.Equal(t, "bob@example.com", got.DisplayName)
}

func TestUsers_UpdateEmailConflict(t *testing.T) {
	h := newHarness(t)
	alice := h.seed("alice@example.com", "alice-password", auth.RoleUser)
	h.seed("bob@example.com", "bob-password", auth.RoleUser)
	tok := h.login("alice@example.com", "alice-password")

	w := h.do(http.MethodPut, UsersPath+"/"+alice.ID, tok, gin.H{"email": "bob@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUsers_UpdatePasswordTakesEffect(t *testing.T) {
	h := newHarness(t)
	alice := h.seed("alice@example.com", "alice-password", auth.RoleUser)
	tok := h.login("alice@example.com", "alice-password")

	w := h.do(http.MethodPut, UsersPath+"/"+alice.ID, tok, gin.H{"password": "new-alice-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	h.login("alice@example.com", "new-alice-password")
	w = h.do(http.MethodPost, AuthPrefix+"/login", "", gin.H{
		"email": "alice@example.com", "password": "alice-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsers_DeactivationRevokesAccess(t *testing.T) {
	h := newHarness(t)
	h.seed("admin@example.com", "admin-password", auth.RoleAdmin)
	alice := h.seed("alice@example.com", "alice-password", auth.RoleUser)
	adminTok := h.login("admin@example.com", "admin-password")
	aliceTok := h.login("alice@example.com", "alice-password")

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, AuthPrefix+"/me", aliceTok, nil).Code)

	w := h.do(http.MethodDelete, UsersPath+"/"+alice.ID, adminTok, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.do(http.MethodGet, AuthPrefix+"/me", aliceTok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsers_FailedMutationKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.seed("admin@example.com", "admin-password", auth.RoleAdmin)
	h.seed("alice@example.com", "alice-password", auth.RoleUser)
	adminTok := h.login("admin@example.com", "admin-password")

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, UsersPath, adminTok, nil).Code)
	require.Equal(t, 1, h.cache.Len())

	w := h.do(http.MethodPost, UsersPath, adminTok, gin.H{
		"display_name": "Dup", "email": "alice@example.com", "password": "dup-password",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, h.cache.Len())

	w = h.do(http.MethodGet, UsersPath, adminTok, nil)
	assert.Equal(t, pipeline.CacheHit, w.Header().Get(pipeline.HeaderCache))
}

func TestUsers_ETagNotModified(t *testing.T) {
	h := newHarness(t)
	h.seed("alice@example.com", "alice-password", auth.RoleUser)
	tok := h.login("alice@example.com", "alice-password")

	w := h.do(http.MethodGet, AuthPrefix+"/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	req := httptest.NewRequest(http.MethodGet, AuthPrefix+"/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("If-None-Match", tag)
	rec := httptest.NewRecorder()
	h.gw.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHealthAndUnknownRoute(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, HealthPath, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(ratelimit.HeaderLimit), "health is exempt from rate limiting")

	w = h.do(http.MethodGet, ReadyPath, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h.health.SetDraining(true)
	w = h.do(http.MethodGet, ReadyPath, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = h.do(http.MethodGet, "/does/not/exist", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperr.KindNotFound, decodeError(t, w).Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config, d *Dependencies) {
		cfg.Metrics.Enabled = true
		d.Metrics = observability.NewMetrics("gateway_test")
	})
	h.do(http.MethodGet, HealthPath, "", nil)

	w := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gateway_test_requests_total")
}

func TestGateway_StartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.gw.Start(ctx))
	assert.True(t, h.gw.IsRunning())
	require.Error(t, h.gw.Start(ctx), "second start is refused")

	addr := h.gw.Addr()
	require.NotNil(t, addr)
	resp, err := http.Get("http://" + addr.String() + HealthPath)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, h.gw.Uptime(), time.Duration(0))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.gw.Stop(stopCtx))
	assert.Equal(t, StateStopped, h.gw.State())
	require.Error(t, h.gw.Stop(stopCtx))

	w := h.do(http.MethodGet, ReadyPath, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "draining after stop")
}
