package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avagate/internal/audit"
	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/auth/token"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/credential"
	"github.com/vyrodovalexey/avagate/internal/gateway"
	"github.com/vyrodovalexey/avagate/internal/health"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/ratelimit"
	"github.com/vyrodovalexey/avagate/internal/store"
)

// application holds all application components.
type application struct {
	config  *config.Config
	logger  observability.Logger
	gateway *gateway.Gateway
	store   auth.PrincipalStore
	limiter *ratelimit.Limiter
	cache   *cache.MemoryCache
	tracer  *observability.Tracer
	health  *health.Checker
	audit   audit.Logger

	// fatal receives errors after which the process must not keep
	// serving, such as a password hashing failure.
	fatal chan error
}

// newApplication builds every component from cfg. On error, components
// created so far are released.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (_ *application, err error) {
	app := &application{
		config: cfg,
		logger: logger,
		health: health.NewChecker(version),
		fatal:  make(chan error, 1),
	}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	app.tracer, err = observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app.store, err = store.Open(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open principal store: %w", err)
	}
	app.health.RegisterCheck("store", app.store.Ping)

	tokens, err := token.NewService(&cfg.Auth, token.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	hasher := credential.NewBcryptHasher(cfg.Auth.BcryptCost)

	if err := bootstrapAdmin(ctx, app.store, hasher, cfg.Auth.BootstrapAdmin, time.Now, logger); err != nil {
		return nil, err
	}

	app.limiter, err = ratelimit.New(&cfg.RateLimit, ratelimit.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	app.audit, err = audit.NewLogger(&cfg.Audit, audit.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	deps := gateway.Dependencies{
		Store:   app.store,
		Tokens:  tokens,
		Hasher:  hasher,
		Limiter: app.limiter,
		Health:  app.health,
		Tracer:  app.tracer,
		Audit:   app.audit,
	}
	if cfg.Cache.Enabled {
		app.cache = cache.NewMemoryCache(&cfg.Cache, cache.WithLogger(logger))
		deps.Cache = app.cache
	}
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics("avagate")
		metrics.SetBuildInfo(version, gitCommit, buildTime)
		deps.Metrics = metrics
	}

	app.gateway, err = gateway.New(cfg, deps,
		gateway.WithLogger(logger),
		gateway.WithFatalHandler(app.reportFatal),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	return app, nil
}

func (a *application) reportFatal(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// bootstrapAdmin creates the configured administrator when no principal
// holds its email yet. An existing principal is left untouched.
func bootstrapAdmin(
	ctx context.Context,
	s auth.PrincipalStore,
	hasher credential.Hasher,
	admin *config.BootstrapAdminConfig,
	now func() time.Time,
	logger observability.Logger,
) error {
	if admin == nil {
		return nil
	}

	_, err := s.LookupByEmail(ctx, admin.Email)
	switch {
	case err == nil:
		logger.Debug("bootstrap admin already exists", observability.String("email", admin.Email))
		return nil
	case !errors.Is(err, auth.ErrPrincipalNotFound):
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	digest, err := hasher.Hash(admin.Password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}
	name := admin.DisplayName
	if name == "" {
		name = "Administrator"
	}
	ts := now().UTC()
	p := &auth.Principal{
		ID:           uuid.NewString(),
		DisplayName:  name,
		Email:        store.NormalizeEmail(admin.Email),
		Role:         auth.RoleAdmin,
		Active:       true,
		PasswordHash: digest,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.Create(ctx, p); err != nil && !errors.Is(err, auth.ErrEmailTaken) {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	logger.Info("bootstrap admin created",
		observability.String("principal_id", p.ID),
		observability.String("email", p.Email),
	)
	return nil
}

// close releases components in reverse order of creation. It is safe on
// a partially built application.
func (a *application) close(ctx context.Context) {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Error("failed to close audit log", observability.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close principal store", observability.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}
