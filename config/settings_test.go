package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSet(t *testing.T) {
	tests := []struct {
		path  string
		value string
		check func(t *testing.T, c *Config)
	}{
		{"import.workers", "12", func(t *testing.T, c *Config) { assert.Equal(t, 12, c.Import.Workers) }},
		{"import.rate_per_second", "2.5", func(t *testing.T, c *Config) { assert.Equal(t, 2.5, c.Import.RatePerSecond) }},
		{"import.file_timeout", "1m", func(t *testing.T, c *Config) { assert.Equal(t, time.Minute, c.Import.FileTimeout) }},
		{"redis.enabled", "true", func(t *testing.T, c *Config) { assert.True(t, c.Redis.Enabled) }},
		{"storage.backend", "files", func(t *testing.T, c *Config) { assert.Equal(t, BackendFiles, c.Storage.Backend) }},
		{"SERVER.PORT", "9090", func(t *testing.T, c *Config) { assert.Equal(t, 9090, c.Server.Port) }},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Set(tt.path, tt.value))
			tt.check(t, cfg)
		})
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	cfg := Default()
	err := cfg.Set("mongodb.uri", "mongodb://localhost")
	assert.ErrorIs(t, err, ErrUnknownConfigKey)

	_, err = cfg.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownConfigKey)
}

func TestConfigSet_RejectsInvalidAndLeavesConfigUntouched(t *testing.T) {
	cfg := Default()

	assert.Error(t, cfg.Set("import.workers", "many"))
	assert.Error(t, cfg.Set("import.workers", "0"))
	assert.Error(t, cfg.Set("storage.backend", "clickhouse"))
	assert.Error(t, cfg.Set("redis.enabled", "maybe"))

	assert.Equal(t, 4, cfg.Import.Workers)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}

func TestConfigGet(t *testing.T) {
	cfg := Default()
	v, err := cfg.Get("search.max_limit")
	require.NoError(t, err)
	assert.Equal(t, "1000", v)

	v, err = cfg.Get("import.file_timeout")
	require.NoError(t, err)
	assert.Equal(t, "30s", v)

	require.NoError(t, cfg.Set("redis.password", "secret"))
	v, err = cfg.Get("redis.password")
	require.NoError(t, err)
	assert.Equal(t, maskedValue, v)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, maskedValue, cfg.Masked().Redis.Password)
}

func TestKeys_AllResolvable(t *testing.T) {
	cfg := Default()
	keys := Keys()
	require.NotEmpty(t, keys)
	assert.IsIncreasing(t, keys)
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}
