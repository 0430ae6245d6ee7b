package config

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinSecretLength is the minimum signing secret length in bytes accepted in
// production.
const MinSecretLength = 32

// MinProductionBcryptCost is the lowest bcrypt cost accepted in production.
const MinProductionBcryptCost = 10

// MinBootstrapPasswordLength is the shortest accepted bootstrap admin password.
const MinBootstrapPasswordLength = 8

// insecureSecrets are well-known placeholder values that must never sign
// tokens in production.
var insecureSecrets = map[string]struct{}{
	"secret":                   {},
	"changeme":                 {},
	"change-me":                {},
	"password":                 {},
	"your-secret-key":          {},
	"your_jwt_secret":          {},
	"jwt-secret":               {},
	"supersecret":              {},
	DevelopmentSigningSecret:   {},
	"default-secret-change-it": {},
}

// insecurePasswords are placeholder bootstrap admin passwords.
var insecurePasswords = map[string]struct{}{
	DefaultBootstrapPassword: {},
	"changeme":               {},
	"change-me":              {},
	"password":               {},
	"password1":              {},
	"admin":                  {},
	"admin123":               {},
	"administrator":          {},
	"12345678":               {},
	"letmein1":               {},
}

// IsInsecurePassword reports whether s is a known placeholder admin
// password.
func IsInsecurePassword(s string) bool {
	_, ok := insecurePasswords[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsInsecureSecret reports whether s is a known placeholder secret.
func IsInsecureSecret(s string) bool {
	_, ok := insecureSecrets[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

// validator accumulates errors and warnings across one validation pass.
type validator struct {
	errors   ValidationErrors
	warnings []string
}

func (v *validator) addError(path, format string, args ...interface{}) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) addWarning(format string, args ...interface{}) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// Validate checks the configuration. It returns ValidationErrors when the
// gateway must not start.
func (c *Config) Validate() error {
	v := c.validate()
	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Warnings returns non-fatal findings, such as an insecure signing secret
// outside production.
func (c *Config) Warnings() []string {
	return c.validate().warnings
}

func (c *Config) validate() *validator {
	v := &validator{}

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		v.addError("environment", "must be one of %s, %s, %s; got %q",
			EnvDevelopment, EnvProduction, EnvTest, c.Environment)
	}

	if c.IsProduction() && c.DevMode {
		v.addError("devMode", "must be false in production")
	}

	c.validateServer(v)
	c.validateAuth(v)
	c.validateRateLimit(v)
	c.validateCache(v)
	c.validateStore(v)

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "must be between 0 and 1")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		v.addError("metrics.path", "must start with /")
	}
	if c.Audit.Enabled {
		if c.Audit.Output == "" {
			v.addError("audit.output", "is required when audit is enabled")
		}
		switch c.Audit.Format {
		case AuditFormatJSON, AuditFormatText, "":
		default:
			v.addError("audit.format", "must be %q or %q", AuditFormatJSON, AuditFormatText)
		}
	}

	return v
}

func (c *Config) validateServer(v *validator) {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		v.addError("server.port", "must be between 1 and 65535")
	}
}

func (c *Config) validateAuth(v *validator) {
	secret := c.Auth.SigningSecret
	var problem string
	switch {
	case secret == "":
		// Nothing can be signed with an empty secret in any environment.
		v.addError("auth.signingSecret", "signing secret is empty")
	case IsInsecureSecret(secret):
		problem = "signing secret is a known insecure default"
	case len(secret) < MinSecretLength:
		problem = fmt.Sprintf("signing secret is shorter than %d bytes", MinSecretLength)
	}
	if problem != "" {
		if c.IsProduction() {
			v.addError("auth.signingSecret", "%s", problem)
		} else {
			v.addWarning("auth.signingSecret: %s; refused in production", problem)
		}
	}

	if c.Auth.TokenTTL.Duration() <= 0 {
		v.addError("auth.tokenTTL", "must be positive")
	}

	cost := c.Auth.BcryptCost
	switch {
	case cost < bcrypt.MinCost || cost > bcrypt.MaxCost:
		v.addError("auth.bcryptCost", "must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	case c.IsProduction() && cost < MinProductionBcryptCost:
		v.addError("auth.bcryptCost", "must be at least %d in production", MinProductionBcryptCost)
	}

	if admin := c.Auth.BootstrapAdmin; admin != nil {
		if !strings.Contains(admin.Email, "@") {
			v.addError("auth.bootstrapAdmin.email", "must be an email address")
		}
		switch {
		case len(admin.Password) < MinBootstrapPasswordLength:
			v.addError("auth.bootstrapAdmin.password", "must be at least %d characters", MinBootstrapPasswordLength)
		case IsInsecurePassword(admin.Password) && c.IsProduction():
			v.addError("auth.bootstrapAdmin.password", "is a known placeholder; set AVAGATE_ADMIN_PASSWORD")
		case IsInsecurePassword(admin.Password):
			v.addWarning("auth.bootstrapAdmin.password: is a known placeholder; refused in production")
		}
	}
}

func (c *Config) validateRateLimit(v *validator) {
	if !c.RateLimit.Enabled {
		return
	}

	seen := make(map[string]bool, len(c.RateLimit.Tiers))
	for i := range c.RateLimit.Tiers {
		t := &c.RateLimit.Tiers[i]
		path := fmt.Sprintf("rateLimit.tiers[%d]", i)

		if t.Name == "" {
			v.addError(path+".name", "is required")
		} else if seen[t.Name] {
			v.addError(path+".name", "duplicate tier name %q", t.Name)
		}
		seen[t.Name] = true

		if t.Window.Duration() <= 0 {
			v.addError(path+".window", "must be positive")
		}
		if t.MaxRequests < 1 {
			v.addError(path+".maxRequests", "must be at least 1")
		}
		if !validScope(t.Scope) {
			v.addError(path+".scope", "unknown scope %q", t.Scope)
		}
		if t.Key != KeyIP && t.Key != KeyPrincipal {
			v.addError(path+".key", "must be %q or %q", KeyIP, KeyPrincipal)
		}
		switch t.Algorithm {
		case AlgorithmFixedWindow:
		case AlgorithmTokenBucket:
			if t.SkipSuccessful {
				v.addError(path+".skipSuccessful", "not supported by %s", AlgorithmTokenBucket)
			}
		default:
			v.addError(path+".algorithm", "unknown algorithm %q", t.Algorithm)
		}
	}

	if sd := c.RateLimit.SlowDown; sd != nil {
		if sd.Window.Duration() <= 0 {
			v.addError("rateLimit.slowDown.window", "must be positive")
		}
		if sd.DelayAfter < 0 {
			v.addError("rateLimit.slowDown.delayAfter", "must not be negative")
		}
		if sd.DelayStep.Duration() <= 0 {
			v.addError("rateLimit.slowDown.delayStep", "must be positive")
		}
		if sd.MaxDelay.Duration() < sd.DelayStep.Duration() {
			v.addError("rateLimit.slowDown.maxDelay", "must be at least delayStep")
		}
		if !validScope(sd.Scope) {
			v.addError("rateLimit.slowDown.scope", "unknown scope %q", sd.Scope)
		}
	}
}

func validScope(s string) bool {
	switch s {
	case ScopeAll, ScopeAuth, ScopeMutating, ScopeRead:
		return true
	}
	return false
}

func (c *Config) validateCache(v *validator) {
	if !c.Cache.Enabled {
		return
	}
	if c.Cache.DefaultTTL.Duration() <= 0 {
		v.addError("cache.defaultTTL", "must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		v.addError("cache.maxEntries", "must be at least 1")
	}
}

func (c *Config) validateStore(v *validator) {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			v.addError("store.dsn", "is required for the sqlite driver")
		}
	default:
		v.addError("store.driver", "must be %q or %q", DriverSQLite, DriverMemory)
	}
	r := c.Store.Retry
	if r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		v.addError("store.retry", "backoff durations must not be negative")
	}
	if r.MaxBackoff > 0 && r.InitialBackoff > r.MaxBackoff {
		v.addError("store.retry.initialBackoff", "must not exceed maxBackoff")
	}
}
