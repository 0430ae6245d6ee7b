// Package gateway assembles the HTTP surface: the gin engine, its outer
// middleware, the request pipeline and the auth and user handlers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/audit"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/credential"
	"github.com/vyrodovalexey/avagate/internal/health"
	"github.com/vyrodovalexey/avagate/internal/middleware"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// DefaultShutdownTimeout bounds Stop when the configuration sets none.
const DefaultShutdownTimeout = 30 * time.Second

// Dependencies are the collaborators the gateway serves requests with.
// Cache, Metrics, Tracer and Audit are optional.
type Dependencies struct {
	Store   auth.PrincipalStore
	Tokens  *token.Service
	Hasher  credential.Hasher
	Limiter *ratelimit.Limiter
	Cache   cache.Cache
	Health  *health.Checker
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Audit   audit.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("principal store is required")
	case d.Tokens == nil:
		return errors.New("token service is required")
	case d.Hasher == nil:
		return errors.New("password hasher is required")
	case d.Limiter == nil:
		return errors.New("rate limiter is required")
	case d.Health == nil:
		return errors.New("health checker is required")
	}
	return nil
}

// Gateway is the HTTP front door.
type Gateway struct {
	cfg     *config.Config
	deps    Dependencies
	logger  observability.Logger
	engine  *gin.Engine
	driver  *pipeline.Driver
	server  *http.Server
	addr    net.Addr
	onFatal func(error)
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string

	state     atomic.Int32
	startTime time.Time
	errCh     chan error
	mu        sync.RWMutex
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithFatalHandler sets the function called when a request hits a
// process-fatal error such as a password hashing failure. The default
// only logs.
func WithFatalHandler(fn func(error)) Option {
	return func(g *Gateway) {
		g.onFatal = fn
	}
}

// WithClock sets the time source used for principal timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// New creates a gateway and registers its routes. It does not listen
// until Start is called.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNoopLogger()
	}

	g := &Gateway{
		cfg:    cfg,
		deps:   deps,
		logger: observability.NopLogger(),
		now:    time.Now,
		errCh:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.onFatal == nil {
		g.onFatal = func(err error) {
			g.logger.Error("fatal error reported by handler", observability.Error(err))
		}
	}
	g.state.Store(int32(StateStopped))

	registerValidatorTags()

	engine, err := g.buildEngine()
	if err != nil {
		return nil, err
	}
	g.engine = engine
	return g, nil
}

func (g *Gateway) buildEngine() (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(g.cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	engine.Use(
		middleware.Recovery(g.logger, g.cfg.DevMode),
		middleware.RequestID(),
		middleware.SecurityHeaders(middleware.DefaultHSTSMaxAge),
	)
	if g.deps.Tracer != nil {
		engine.Use(g.deps.Tracer.GinMiddleware())
	}
	if g.deps.Metrics != nil {
		engine.Use(g.deps.Metrics.GinMiddleware())
	}
	engine.Use(middleware.Logging(g.logger))

	g.driver = g.newDriver()
	for _, r := range g.routes() {
		handler := middleware.LimitBody(middleware.DefaultMaxBodySize, g.logger, r.handler)
		engine.Handle(r.method, r.path, g.driver.Handle(r.policy, handler))
	}
	engine.NoRoute(func(c *gin.Context) {
		g.fail(c, errRouteNotFound)
	})
	return engine, nil
}

func (g *Gateway) newDriver() *pipeline.Driver {
	gate := auth.NewGate(g.deps.Tokens, g.deps.Store, auth.WithGateLogger(g.logger))

	cacheOpts := []pipeline.CacheOption{
		pipeline.WithCacheLogger(g.logger),
		pipeline.WithETag(g.cfg.Cache.ETag),
	}

	return pipeline.NewDriver([]pipeline.Stage{
		pipeline.NewRateLimitStage(g.deps.Limiter,
			pipeline.WithPrincipalResolver(pipeline.TokenResolver{Verifier: g.deps.Tokens}),
			pipeline.WithRateLimitLogger(g.logger),
		),
		pipeline.NewAuthStage(gate),
		pipeline.NewAuthzStage(),
		pipeline.NewCacheStage(g.deps.Cache, cacheOpts...),
	},
		pipeline.WithLogger(g.logger),
		pipeline.WithMetrics(g.deps.Metrics),
		pipeline.WithDevMode(g.cfg.DevMode),
		pipeline.WithHooks(
			pipeline.NewInvalidationHook(g.deps.Cache, g.logger),
			pipeline.NewAuditHook(g.deps.Audit),
		),
	)
}

// Engine returns the gin engine.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// Start begins serving on the configured address. It returns once the
// listener is bound; serving errors are reported on Errors.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	addr := g.cfg.Server.ListenAddress()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           g.engine,
		ReadTimeout:       g.cfg.Server.ReadTimeout.Duration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      g.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:       g.cfg.Server.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20,
	}

	g.mu.Lock()
	g.server = srv
	g.addr = ln.Addr()
	g.startTime = time.Now()
	g.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", observability.Error(err))
			select {
			case g.errCh <- err:
			default:
			}
		}
	}()

	g.state.Store(int32(StateRunning))
	g.logger.Info("gateway started",
		observability.String("address", ln.Addr().String()),
		observability.Bool("dev_mode", g.cfg.DevMode),
	)
	return nil
}

// Stop drains the gateway: readiness fails, in-flight requests finish,
// then the listener closes.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}
	g.logger.Info("stopping gateway")
	g.deps.Health.SetDraining(true)

	if _, ok := ctx.Deadline(); !ok {
		timeout := g.cfg.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g.mu.RLock()
	srv := g.server
	g.mu.RUnlock()

	err := srv.Shutdown(ctx)
	g.state.Store(int32(StateStopped))
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// Errors reports a serving failure after Start returned.
func (g *Gateway) Errors() <-chan error {
	return g.errCh
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.addr
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the time since Start.
func (g *Gateway) Uptime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}
