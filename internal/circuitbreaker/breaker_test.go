package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avagate/internal/config"
)

var errDown = errors.New("database is down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("store-open", config.BreakerConfig{FailureThreshold: 3, Timeout: config.Duration(time.Hour)})

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errDown })
		require.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b := New("store-reset", config.BreakerConfig{FailureThreshold: 2, Timeout: config.Duration(time.Hour)})

	_ = b.Execute(func() error { return errDown })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return errDown })

	assert.Equal(t, "closed", b.State())
}

func TestBreaker_ExpectedErrorsDoNotTrip(t *testing.T) {
	errNotFound := errors.New("not found")
	b := New("store-expected", config.BreakerConfig{FailureThreshold: 1, Timeout: config.Duration(time.Hour)},
		WithSuccessClassifier(func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		}))

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := New("store-halfopen", config.BreakerConfig{FailureThreshold: 1, Timeout: config.Duration(20 * time.Millisecond)})

	_ = b.Execute(func() error { return errDown })
	require.Equal(t, "open", b.State())

	require.Eventually(t, func() bool {
		return b.State() == "half-open"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, "store-halfopen", b.Name())
}
