package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rulebase/config"
	"rulebase/storage"

	"go.uber.org/zap"
)

// redisPingTimeout bounds the startup probe of the optional cache.
const redisPingTimeout = 3 * time.Second

// StorageComponents holds the version store and the optional cache.
type StorageComponents struct {
	Store storage.RuleVersionStore
	// SQLite is nil for the files backend
	SQLite *storage.SQLite
	// Cache is nil when redis is disabled or unreachable
	Cache *storage.RedisCache
}

// InitStorage opens the configured backend and, when enabled, the Redis cache.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	sc := &StorageComponents{}

	switch cfg.Storage.Backend {
	case config.BackendFiles:
		fs, err := storage.NewFileStore(cfg.DataPaths.RulesDir, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to open rule directory: %w", err)
		}
		sc.Store = fs
		sugar.Debugw("File store opened", "dir", cfg.DataPaths.RulesDir)
	default:
		sqlite, err := InitSQLite(cfg.DataPaths.SQLitePath, sugar)
		if err != nil {
			return nil, err
		}
		sc.SQLite = sqlite
		sc.Store = storage.NewSQLiteRuleStorage(sqlite, sugar)
	}

	if cfg.Redis.Enabled {
		sc.Cache = InitRedisCache(ctx, cfg.Redis, sugar)
	}
	return sc, nil
}

// InitSQLite opens the SQLite database, explaining common failures.
func InitSQLite(path string, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(path, sugar)
	if err != nil {
		sugar.Error(ClassifySQLiteError(err, path))
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	sugar.Debugw("SQLite initialized", "path", path)
	return sqlite, nil
}

// InitRedisCache connects to Redis. The cache is optional, so an unreachable server is
// logged and nil is returned.
func InitRedisCache(ctx context.Context, cfg config.RedisConfig, sugar *zap.SugaredLogger) *storage.RedisCache {
	cache := storage.NewRedisCache(cfg.Addr, cfg.Password, cfg.DB, cfg.TTL, sugar)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		sugar.Warnw("Redis cache disabled", "reason", ClassifyConnectionError(err, cfg.Addr))
		cache.Close()
		return nil
	}
	sugar.Infow("Redis cache connected", "addr", cfg.Addr)
	return cache
}

// Publisher returns the cache as a rule publisher, or nil when there is none.
func (sc *StorageComponents) Publisher() storage.RulePublisher {
	if sc.Cache == nil {
		return nil
	}
	return sc.Cache
}

// Close closes the cache and the store.
func (sc *StorageComponents) Close() error {
	var errs []error
	if sc.Cache != nil {
		if err := sc.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis cache: %w", err))
		}
	}
	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
