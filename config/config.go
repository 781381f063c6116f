package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rulebase/validation"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RULEBASE_LOG_LEVEL.
const EnvPrefix = "RULEBASE"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFiles  = "files"
)

// DataPaths locates everything rulebase writes to disk.
type DataPaths struct {
	DataDir    string `mapstructure:"data_dir" json:"data_dir"`
	RulesDir   string `mapstructure:"rules_dir" json:"rules_dir"`
	SQLitePath string `mapstructure:"sqlite_path" json:"sqlite_path"`
	LogDir     string `mapstructure:"log_dir" json:"log_dir"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" json:"backend" validate:"oneof=sqlite files"`
}

// ImportConfig tunes the batch import pipeline.
type ImportConfig struct {
	Workers         int           `mapstructure:"workers" json:"workers" validate:"min=1,max=64"`
	RatePerSecond   float64       `mapstructure:"rate_per_second" json:"rate_per_second" validate:"min=0"`
	FileTimeout     time.Duration `mapstructure:"file_timeout" json:"file_timeout" validate:"min=0"`
	SegmentCap      int           `mapstructure:"segment_cap" json:"segment_cap" validate:"min=0"`
	MaxCoreSections int           `mapstructure:"max_core_sections" json:"max_core_sections" validate:"min=1"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" json:"default_limit" validate:"min=1"`
	MaxLimit     int `mapstructure:"max_limit" json:"max_limit" validate:"min=1,max=1000"`
	CacheSize    int `mapstructure:"cache_size" json:"cache_size" validate:"min=0"`
}

// ValidationConfig selects the schema capability and the external checkers.
type ValidationConfig struct {
	Schema      string        `mapstructure:"schema" json:"schema" validate:"oneof=full none"`
	ToolTimeout time.Duration `mapstructure:"tool_timeout" json:"tool_timeout" validate:"min=0"`
	// Tools lists checkers per language; empty means validation.DefaultTools()
	Tools map[string][]validation.ToolConfig `mapstructure:"tools" json:"tools,omitempty"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Addr     string        `mapstructure:"addr" json:"addr"`
	Password string        `mapstructure:"password" json:"password"`
	DB       int           `mapstructure:"db" json:"db" validate:"min=0,max=15"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl" validate:"min=0"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" json:"rps" validate:"min=0"`
	Burst int     `mapstructure:"burst" json:"burst" validate:"min=0"`
}

type ServerConfig struct {
	Host      string          `mapstructure:"host" json:"host" validate:"required"`
	Port      int             `mapstructure:"port" json:"port" validate:"min=1,max=65535"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// Config holds the application configuration.
type Config struct {
	LogLevel   string           `mapstructure:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	DataPaths  DataPaths        `mapstructure:"data_paths" json:"data_paths"`
	Storage    StorageConfig    `mapstructure:"storage" json:"storage"`
	Import     ImportConfig     `mapstructure:"import" json:"import"`
	Search     SearchConfig     `mapstructure:"search" json:"search"`
	Validation ValidationConfig `mapstructure:"validation" json:"validation"`
	Redis      RedisConfig      `mapstructure:"redis" json:"redis"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
}

// LoadConfig reads configuration from configFile, or from config.yaml in "." or
// "./config" when configFile is empty. A missing default config file is not an error.
// Environment variables prefixed with RULEBASE override file values.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	if err := loadFromEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.UnmarshalExact(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.ResolveDataPaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// defaults always decode
	_ = v.Unmarshal(&config)
	config.ResolveDataPaths()
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("data_paths.data_dir", "./data")
	v.SetDefault("data_paths.rules_dir", "")
	v.SetDefault("data_paths.sqlite_path", "")
	v.SetDefault("data_paths.log_dir", "")

	v.SetDefault("storage.backend", BackendSQLite)

	v.SetDefault("import.workers", 4)
	v.SetDefault("import.rate_per_second", 0.0)
	v.SetDefault("import.file_timeout", 30*time.Second)
	v.SetDefault("import.segment_cap", 0)
	v.SetDefault("import.max_core_sections", 15)

	v.SetDefault("search.default_limit", 50)
	v.SetDefault("search.max_limit", 1000)
	v.SetDefault("search.cache_size", 256)

	v.SetDefault("validation.schema", validation.SchemaFull)
	v.SetDefault("validation.tool_timeout", validation.DefaultToolTimeout)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Duration(0))

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit.rps", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)
}

func loadFromEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names for the paths people most often override.
	bindings := map[string]string{
		"data_paths.data_dir":    EnvPrefix + "_DATA_DIR",
		"data_paths.rules_dir":   EnvPrefix + "_RULES_DIR",
		"data_paths.sqlite_path": EnvPrefix + "_SQLITE_PATH",
		"data_paths.log_dir":     EnvPrefix + "_LOG_DIR",
		"redis.password":         EnvPrefix + "_REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// ResolveDataPaths fills derived paths from DataDir and cleans them.
func (c *Config) ResolveDataPaths() {
	if c.DataPaths.DataDir == "" {
		c.DataPaths.DataDir = "./data"
	}
	c.DataPaths.DataDir = filepath.Clean(c.DataPaths.DataDir)
	if c.DataPaths.RulesDir == "" {
		c.DataPaths.RulesDir = filepath.Join(c.DataPaths.DataDir, "rules")
	}
	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(c.DataPaths.DataDir, "rulebase.db")
	}
	if c.DataPaths.LogDir == "" {
		c.DataPaths.LogDir = filepath.Join(c.DataPaths.DataDir, "logs")
	}
	c.DataPaths.RulesDir = filepath.Clean(c.DataPaths.RulesDir)
	if c.DataPaths.SQLitePath != ":memory:" {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}
	c.DataPaths.LogDir = filepath.Clean(c.DataPaths.LogDir)
}

// EnsureDataDirs creates the directories the configured backend writes to.
func (c *Config) EnsureDataDirs() error {
	dirs := []string{c.DataPaths.DataDir, c.DataPaths.LogDir}
	if c.Storage.Backend == BackendFiles {
		dirs = append(dirs, c.DataPaths.RulesDir)
	} else if c.DataPaths.SQLitePath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.DataPaths.SQLitePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// ToolsOrDefault returns the configured checkers, falling back to the stock set.
func (c *Config) ToolsOrDefault() map[string][]validation.ToolConfig {
	if len(c.Validation.Tools) == 0 {
		return validation.DefaultTools()
	}
	return c.Validation.Tools
}

var configValidator = validator.New()

func validateConfig(config *Config) error {
	if err := configValidator.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check (value %v)", settingPath(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	if config.Search.DefaultLimit > config.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) must not exceed search.max_limit (%d)",
			config.Search.DefaultLimit, config.Search.MaxLimit)
	}
	if config.Redis.Enabled && config.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty when redis is enabled")
	}
	for lang, tools := range config.Validation.Tools {
		for i, t := range tools {
			if t.Name == "" || t.Command == "" {
				return fmt.Errorf("validation.tools.%s[%d] needs both name and command", lang, i)
			}
		}
	}
	return nil
}

// settingPath turns "Config.Import.Workers" into "import.workers".
func settingPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	switch s {
	case "DB":
		return "db"
	case "RPS":
		return "rps"
	case "TTL":
		return "ttl"
	case "SQLitePath":
		return "sqlite_path"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
