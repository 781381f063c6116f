package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rulebase/core"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisRuleKeyPrefix = "rulebase:rule:"
	redisRuleSetKey    = "rulebase:rules"
	// maxCachedRuleSize bounds a single cached payload
	maxCachedRuleSize = 10 * 1024 * 1024
)

// RedisCache publishes the latest version of each rule to Redis so other processes can
// read the live corpus without opening the database.
// Writes go through a circuit breaker so an unreachable server does not stall every
// mutation on dial timeouts.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.SugaredLogger
	breaker *core.CircuitBreaker
}

// NewRedisCache creates a new Redis cache instance. A zero ttl keeps entries until removed.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *zap.SugaredLogger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	breaker, _ := core.NewCircuitBreaker(core.DefaultCircuitBreakerConfig())
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		logger:  logger,
		breaker: breaker,
	}
}

// BreakerState reports whether writes are currently being attempted
func (rc *RedisCache) BreakerState() core.CircuitBreakerState {
	return rc.breaker.State()
}

// guard runs a write through the breaker and logs state changes.
func (rc *RedisCache) guard(op string, fn func() error) error {
	if err := rc.breaker.Allow(); err != nil {
		return fmt.Errorf("redis %s skipped: %w", op, err)
	}
	err := fn()
	var from, to core.CircuitBreakerState
	if err != nil {
		from, to = rc.breaker.RecordFailure()
	} else {
		from, to = rc.breaker.RecordSuccess()
	}
	if from != to {
		rc.logger.Warnw("Redis circuit breaker changed state", "from", from, "to", to, "op", op)
	}
	return err
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Publish stores the rule under its identifier and adds it to the rule set
func (rc *RedisCache) Publish(ctx context.Context, rule *core.Rule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", rule.Key(), err)
	}
	if len(data) > maxCachedRuleSize {
		rc.logger.Warnf("Rule %s exceeds cache size limit (%d bytes), not published", rule.RuleID, len(data))
		return fmt.Errorf("rule payload size %d bytes exceeds maximum %d bytes", len(data), maxCachedRuleSize)
	}

	return rc.guard("publish", func() error {
		pipe := rc.client.TxPipeline()
		pipe.Set(ctx, redisRuleKeyPrefix+rule.RuleID, data, rc.ttl)
		pipe.SAdd(ctx, redisRuleSetKey, rule.RuleID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to publish rule %s: %w", rule.RuleID, err)
		}
		return nil
	})
}

// Remove deletes a rule from the cache
func (rc *RedisCache) Remove(ctx context.Context, ruleID string) error {
	return rc.guard("remove", func() error {
		pipe := rc.client.TxPipeline()
		pipe.Del(ctx, redisRuleKeyPrefix+ruleID)
		pipe.SRem(ctx, redisRuleSetKey, ruleID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to remove rule %s: %w", ruleID, err)
		}
		return nil
	})
}

// Get returns the cached rule, or found=false when absent
func (rc *RedisCache) Get(ctx context.Context, ruleID string) (*core.Rule, bool, error) {
	data, err := rc.client.Get(ctx, redisRuleKeyPrefix+ruleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rule %s: %w", ruleID, err)
	}
	var rule core.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached rule %s: %w", ruleID, err)
	}
	return &rule, true, nil
}

// IDs returns the identifiers currently published
func (rc *RedisCache) IDs(ctx context.Context) ([]string, error) {
	return rc.client.SMembers(ctx, redisRuleSetKey).Result()
}
