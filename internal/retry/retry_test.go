package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/config"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestConfig_Effective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         *Config
		wantRetries int
		wantInitial time.Duration
		wantMax     time.Duration
		wantJitter  float64
	}{
		{"nil config", nil, 3, 100 * time.Millisecond, 5 * time.Second, 0.25},
		{"zero values", &Config{}, 3, 100 * time.Millisecond, 5 * time.Second, 0.25},
		{"disabled", &Config{MaxRetries: -1}, 0, 100 * time.Millisecond, 5 * time.Second, 0.25},
		{"custom", &Config{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: time.Minute, JitterFactor: 0.5}, 5, time.Second, time.Minute, 0.5},
		{"jitter capped", &Config{JitterFactor: 3}, 3, 100 * time.Millisecond, 5 * time.Second, 1.0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantRetries, tt.cfg.GetMaxRetries())
			assert.Equal(t, tt.wantInitial, tt.cfg.GetInitialBackoff())
			assert.Equal(t, tt.wantMax, tt.cfg.GetMaxBackoff())
			assert.Equal(t, tt.wantJitter, tt.cfg.GetJitterFactor())
		})
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := FromConfig(config.RetryConfig{
		MaxRetries:     4,
		InitialBackoff: config.Duration(200 * time.Millisecond),
		MaxBackoff:     config.Duration(2 * time.Second),
	})
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("locked")
		}
		return nil
	}, &Options{Operation: "test", Sleep: noSleep(&waits)})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	var retried []int
	calls := 0
	want := errors.New("still locked")
	err := Do(context.Background(), &Config{MaxRetries: 2}, func() error {
		calls++
		return want
	}, &Options{
		Sleep:   noSleep(&waits),
		OnRetry: func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	})

	require.ErrorIs(t, err, want)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("bad dsn")
	calls := 0
	err := Do(context.Background(), nil, func() error {
		calls++
		return permanent
	}, &Options{ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) }})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_Disabled(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: -1}, func() error {
		calls++
		return errors.New("locked")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, &Config{MaxRetries: 5, InitialBackoff: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("locked")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, 100 * time.Millisecond, 125 * time.Millisecond},
		{1, 200 * time.Millisecond, 250 * time.Millisecond},
		{3, 800 * time.Millisecond, 1000 * time.Millisecond},
		{10, time.Second, time.Second},
	}

	for _, tt := range tests {
		got := CalculateBackoff(tt.attempt, 100*time.Millisecond, time.Second, 0.25)
		assert.GreaterOrEqual(t, got, tt.min, "attempt %d", tt.attempt)
		assert.LessOrEqual(t, got, tt.max, "attempt %d", tt.attempt)
	}
}
