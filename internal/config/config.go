package config

import (
	"net"
	"strconv"
	"time"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Rate limit tier scopes.
const (
	ScopeAll      = "all"
	ScopeAuth     = "auth"
	ScopeMutating = "mutating"
	ScopeRead     = "read"
)

// Rate limit client key sources.
const (
	KeyIP        = "ip"
	KeyPrincipal = "principal"
)

// Rate limit algorithms.
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DevelopmentSigningSecret is the secret shipped in the default
// configuration. It is listed as insecure and refused in production.
const DevelopmentSigningSecret = "development-only-signing-secret-do-not-deploy"

// DefaultBootstrapPassword is the bootstrap admin password shipped in the
// default configuration. It is refused in production.
const DefaultBootstrapPassword = "change-me-now"

// Config is the complete gateway configuration.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	DevMode     bool            `yaml:"devMode" json:"devMode"`
	Server      ServerConfig    `yaml:"server" json:"server"`
	Auth        AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit   RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Cache       CacheConfig     `yaml:"cache" json:"cache"`
	Store       StoreConfig     `yaml:"store" json:"store"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig   `yaml:"tracing" json:"tracing"`
	Audit       AuditConfig     `yaml:"audit" json:"audit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// TrustedProxies lists proxy addresses or CIDRs whose forwarding
	// headers are honored when deriving the client IP.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// ListenAddress returns host:port for the listener.
func (s ServerConfig) ListenAddress() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// AuthConfig configures token issuance and password hashing.
type AuthConfig struct {
	SigningSecret string   `yaml:"signingSecret" json:"-"`
	Issuer        string   `yaml:"issuer" json:"issuer"`
	TokenTTL      Duration `yaml:"tokenTTL" json:"tokenTTL"`
	BcryptCost    int      `yaml:"bcryptCost" json:"bcryptCost"`

	// BootstrapAdmin, when set, creates an ADMIN principal at startup if
	// its email is not registered yet.
	BootstrapAdmin *BootstrapAdminConfig `yaml:"bootstrapAdmin,omitempty" json:"bootstrapAdmin,omitempty"`
}

// BootstrapAdminConfig describes the initial administrator.
type BootstrapAdminConfig struct {
	Email       string `yaml:"email" json:"email"`
	Password    string `yaml:"password" json:"-"`
	DisplayName string `yaml:"displayName" json:"displayName"`
}

// RateLimitConfig configures the rate limiter tiers.
type RateLimitConfig struct {
	Enabled       bool            `yaml:"enabled" json:"enabled"`
	Tiers         []TierConfig    `yaml:"tiers" json:"tiers"`
	SlowDown      *SlowDownConfig `yaml:"slowDown,omitempty" json:"slowDown,omitempty"`
	SweepInterval Duration        `yaml:"sweepInterval" json:"sweepInterval"`
}

// TierConfig is one independently configured rate limiting rule.
type TierConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Window         Duration `yaml:"window" json:"window"`
	MaxRequests    int      `yaml:"maxRequests" json:"maxRequests"`
	Scope          string   `yaml:"scope" json:"scope"`
	Key            string   `yaml:"key" json:"key"`
	SkipSuccessful bool     `yaml:"skipSuccessful" json:"skipSuccessful"`
	Algorithm      string   `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`

	// Burst is the bucket size for the token bucket algorithm. Defaults to
	// MaxRequests.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// SlowDownConfig configures the progressive delay tier.
type SlowDownConfig struct {
	Window     Duration `yaml:"window" json:"window"`
	DelayAfter int      `yaml:"delayAfter" json:"delayAfter"`
	DelayStep  Duration `yaml:"delayStep" json:"delayStep"`
	MaxDelay   Duration `yaml:"maxDelay" json:"maxDelay"`
	Scope      string   `yaml:"scope" json:"scope"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	DefaultTTL    Duration `yaml:"defaultTTL" json:"defaultTTL"`
	MaxEntries    int      `yaml:"maxEntries" json:"maxEntries"`
	SweepInterval Duration `yaml:"sweepInterval" json:"sweepInterval"`
	ETag          bool     `yaml:"etag" json:"etag"`
}

// StoreConfig configures principal persistence.
type StoreConfig struct {
	Driver  string        `yaml:"driver" json:"driver"`
	DSN     string        `yaml:"dsn" json:"dsn"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
	Retry   RetryConfig   `yaml:"retry" json:"retry"`
}

// RetryConfig configures retries while opening the store. A negative
// MaxRetries disables them.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries" json:"maxRetries"`
	InitialBackoff Duration `yaml:"initialBackoff" json:"initialBackoff"`
	MaxBackoff     Duration `yaml:"maxBackoff" json:"maxBackoff"`
}

// BreakerConfig configures the circuit breaker around the store.
type BreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32   `yaml:"failureThreshold" json:"failureThreshold"`
	HalfOpenRequests uint32   `yaml:"halfOpenRequests" json:"halfOpenRequests"`
	Interval         Duration `yaml:"interval" json:"interval"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Audit output formats.
const (
	AuditFormatJSON = "json"
	AuditFormatText = "text"
)

// AuditConfig configures the audit trail of security-relevant actions.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is stdout, stderr, or a file path opened for append.
	Output string `yaml:"output" json:"output"`
	Format string `yaml:"format" json:"format"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Auth: AuthConfig{
			SigningSecret: DevelopmentSigningSecret,
			Issuer:        "avagate",
			TokenTTL:      Duration(7 * 24 * time.Hour),
			BcryptCost:    12,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Tiers:         DefaultTiers(),
			SlowDown:      DefaultSlowDown(),
			SweepInterval: Duration(time.Minute),
		},
		Cache: CacheConfig{
			Enabled:       true,
			DefaultTTL:    Duration(5 * time.Minute),
			MaxEntries:    1000,
			SweepInterval: Duration(time.Minute),
			ETag:          true,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "file:avagate.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				HalfOpenRequests: 1,
				Interval:         Duration(time.Minute),
				Timeout:          Duration(30 * time.Second),
			},
			Retry: RetryConfig{
				MaxRetries:     5,
				InitialBackoff: Duration(200 * time.Millisecond),
				MaxBackoff:     Duration(5 * time.Second),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName:  "avagate",
			SamplingRate: 1.0,
		},
		Audit: AuditConfig{
			Output: "stdout",
			Format: AuditFormatJSON,
		},
	}
}

// DefaultTiers returns the standard tier set: a general limit over all
// traffic, a strict failure-only limit on authentication endpoints, and a
// per-principal limit on mutations.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{
			Name:        "general",
			Window:      Duration(15 * time.Minute),
			MaxRequests: 100,
			Scope:       ScopeAll,
			Key:         KeyIP,
			Algorithm:   AlgorithmFixedWindow,
		},
		{
			Name:           "auth",
			Window:         Duration(15 * time.Minute),
			MaxRequests:    5,
			Scope:          ScopeAuth,
			Key:            KeyIP,
			SkipSuccessful: true,
			Algorithm:      AlgorithmFixedWindow,
		},
		{
			Name:        "mutating",
			Window:      Duration(15 * time.Minute),
			MaxRequests: 30,
			Scope:       ScopeMutating,
			Key:         KeyPrincipal,
			Algorithm:   AlgorithmFixedWindow,
		},
	}
}

// DefaultSlowDown returns the default progressive delay tier.
func DefaultSlowDown() *SlowDownConfig {
	return &SlowDownConfig{
		Window:     Duration(15 * time.Minute),
		DelayAfter: 50,
		DelayStep:  Duration(500 * time.Millisecond),
		MaxDelay:   Duration(20 * time.Second),
		Scope:      ScopeAll,
	}
}
