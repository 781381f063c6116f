package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, maxFailures uint32) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: maxFailures, Cooldown: time.Minute, MaxHalfOpenRequests: 1})
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_InvalidConfig(t *testing.T) {
	for _, cfg := range []CircuitBreakerConfig{
		{Cooldown: time.Second, MaxHalfOpenRequests: 1},
		{MaxFailures: 1, MaxHalfOpenRequests: 1},
		{MaxFailures: 1, Cooldown: time.Second},
	} {
		_, err := NewCircuitBreaker(cfg)
		assert.ErrorIs(t, err, ErrInvalidCircuitBreakerConfig)
	}
	assert.NoError(t, DefaultCircuitBreakerConfig().Validate())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Zero(t, cb.Failures())

	cb.RecordFailure()
	cb.RecordFailure()
	old, state := cb.RecordFailure()
	assert.Equal(t, CircuitBreakerStateClosed, old)
	assert.Equal(t, CircuitBreakerStateOpen, state)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb, now := newTestBreaker(t, 1)
	cb.RecordFailure()
	require.Equal(t, CircuitBreakerStateOpen, cb.State())

	*now = now.Add(time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitBreakerStateHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrTooManyRequests)

	// a failed trial reopens for another full cooldown
	_, state := cb.RecordFailure()
	assert.Equal(t, CircuitBreakerStateOpen, state)
	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitBreakerOpen)

	*now = now.Add(30 * time.Second)
	require.NoError(t, cb.Allow())
	old, state := cb.RecordSuccess()
	assert.Equal(t, CircuitBreakerStateHalfOpen, old)
	assert.Equal(t, CircuitBreakerStateClosed, state)
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(t, 1)
	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, CircuitBreakerStateClosed, cb.State())
	assert.NoError(t, cb.Allow())
}
