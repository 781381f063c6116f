package storage

import (
	"context"
	"testing"
	"time"

	"rulebase/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewRedisCache(mr.Addr(), "", 0, time.Minute, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisCache_PublishGetRemove(t *testing.T) {
	mr, rc := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx))

	rule := newStoredRule("CR-RD-1", "1.0.0")
	require.NoError(t, rc.Publish(ctx, rule))

	got, found, err := rc.Get(ctx, "CR-RD-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Version, got.Version)

	ids, err := rc.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CR-RD-1"}, ids)

	assert.Equal(t, time.Minute, mr.TTL(redisRuleKeyPrefix+"CR-RD-1"))

	require.NoError(t, rc.Remove(ctx, "CR-RD-1"))
	_, found, err = rc.Get(ctx, "CR-RD-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_ExpiredEntryIsMissing(t *testing.T) {
	mr, rc := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Publish(ctx, newStoredRule("CR-RD-2", "1.0.0")))
	mr.FastForward(2 * time.Minute)

	_, found, err := rc.Get(ctx, "CR-RD-2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr, rc := setupTestRedis(t)
	mr.Close()

	err := rc.Publish(context.Background(), newStoredRule("CR-RD-3", "1.0.0"))
	assert.Error(t, err)
}

func TestRedisCache_BreakerOpensWhenServerDown(t *testing.T) {
	mr, rc := setupTestRedis(t)
	ctx := context.Background()
	breaker, err := core.NewCircuitBreaker(core.CircuitBreakerConfig{MaxFailures: 2, Cooldown: time.Hour, MaxHalfOpenRequests: 1})
	require.NoError(t, err)
	rc.breaker = breaker

	require.NoError(t, rc.Publish(ctx, newStoredRule("CR-RD-4", "1.0.0")))
	mr.Close()

	assert.Error(t, rc.Publish(ctx, newStoredRule("CR-RD-4", "1.0.1")))
	assert.Error(t, rc.Remove(ctx, "CR-RD-4"))
	assert.Equal(t, core.CircuitBreakerStateOpen, rc.BreakerState())

	err = rc.Publish(ctx, newStoredRule("CR-RD-4", "1.0.2"))
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
}
