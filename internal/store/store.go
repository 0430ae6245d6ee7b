// Package store persists principals for the authentication gate and the
// user handlers. Two drivers exist: sqlite (modernc.org/sqlite, pure Go)
// and memory. Either may be wrapped in a circuit breaker so a failing
// database fails lookups fast.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
	"github.com/vyrodovalexey/avagate/internal/retry"
)

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.StoreConfig, logger observability.Logger) (auth.PrincipalStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		s   auth.PrincipalStore
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		s = NewMemoryStore()
	case config.DriverSQLite, "":
		err = retry.Do(ctx, retry.FromConfig(cfg.Retry), func() error {
			var openErr error
			s, openErr = OpenSQLite(ctx, cfg.DSN)
			return openErr
		}, &retry.Options{
			Operation:   "store_open",
			ShouldRetry: IsTransient,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				logger.Warn("principal store busy, retrying",
					observability.Int("attempt", attempt),
					observability.Duration("backoff", backoff),
					observability.Error(err),
				)
			},
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	logger.Info("principal store opened", observability.String("driver", cfg.Driver))

	if cfg.Breaker.Enabled {
		s = NewBreakerStore(s, cfg.Breaker, logger)
	}
	return s, nil
}

// NormalizeEmail lowercases and trims an email address. Stores compare
// emails in normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isExpected reports errors that describe data, not store health.
func isExpected(err error) bool {
	return err == nil ||
		errors.Is(err, auth.ErrPrincipalNotFound) ||
		errors.Is(err, auth.ErrEmailTaken) ||
		errors.Is(err, context.Canceled)
}
