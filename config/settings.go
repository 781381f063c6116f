package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownConfigKey is returned by Get and Set for paths outside the settings table.
var ErrUnknownConfigKey = errors.New("unknown config key")

// SettingSchema describes one overridable setting.
type SettingSchema struct {
	Type            string `json:"type"`
	Description     string `json:"description"`
	RestartRequired bool   `json:"restart_required"`
	Category        string `json:"category"`
	Sensitive       bool   `json:"sensitive,omitempty"`

	get func(c *Config) string
	set func(c *Config, value string) error
}

func stringSetting(category, desc string, restart bool, field func(c *Config) *string) SettingSchema {
	return SettingSchema{
		Type: "string", Description: desc, RestartRequired: restart, Category: category,
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, value string) error {
			*field(c) = value
			return nil
		},
	}
}

func intSetting(category, desc string, restart bool, field func(c *Config) *int) SettingSchema {
	return SettingSchema{
		Type: "int", Description: desc, RestartRequired: restart, Category: category,
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, value string) error {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", value)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatSetting(category, desc string, restart bool, field func(c *Config) *float64) SettingSchema {
	return SettingSchema{
		Type: "float", Description: desc, RestartRequired: restart, Category: category,
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, value string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return fmt.Errorf("expected a number, got %q", value)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolSetting(category, desc string, restart bool, field func(c *Config) *bool) SettingSchema {
	return SettingSchema{
		Type: "bool", Description: desc, RestartRequired: restart, Category: category,
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, value string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", value)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationSetting(category, desc string, restart bool, field func(c *Config) *time.Duration) SettingSchema {
	return SettingSchema{
		Type: "duration", Description: desc, RestartRequired: restart, Category: category,
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, value string) error {
			d, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("expected a duration like 30s, got %q", value)
			}
			*field(c) = d
			return nil
		},
	}
}

var settings = buildSettingsSchema()

func buildSettingsSchema() map[string]SettingSchema {
	s := map[string]SettingSchema{
		"log_level": stringSetting("general", "Log level (debug, info, warn, error)", true,
			func(c *Config) *string { return &c.LogLevel }),

		"data_paths.data_dir": stringSetting("paths", "Base data directory", true,
			func(c *Config) *string { return &c.DataPaths.DataDir }),
		"data_paths.rules_dir": stringSetting("paths", "Directory of YAML rule files (files backend)", true,
			func(c *Config) *string { return &c.DataPaths.RulesDir }),
		"data_paths.sqlite_path": stringSetting("paths", "SQLite database file", true,
			func(c *Config) *string { return &c.DataPaths.SQLitePath }),
		"data_paths.log_dir": stringSetting("paths", "Directory for import logs", false,
			func(c *Config) *string { return &c.DataPaths.LogDir }),

		"storage.backend": stringSetting("storage", "Version store backend (sqlite, files)", true,
			func(c *Config) *string { return &c.Storage.Backend }),

		"import.workers": intSetting("import", "Files parsed concurrently", false,
			func(c *Config) *int { return &c.Import.Workers }),
		"import.rate_per_second": floatSetting("import", "Files started per second, 0 for unlimited", false,
			func(c *Config) *float64 { return &c.Import.RatePerSecond }),
		"import.file_timeout": durationSetting("import", "Parse timeout per file", false,
			func(c *Config) *time.Duration { return &c.Import.FileTimeout }),
		"import.segment_cap": intSetting("import", "Maximum segments per document, 0 for unlimited", false,
			func(c *Config) *int { return &c.Import.SegmentCap }),
		"import.max_core_sections": intSetting("import", "Core sections kept from markdown", false,
			func(c *Config) *int { return &c.Import.MaxCoreSections }),

		"search.default_limit": intSetting("search", "Result limit when none is given", false,
			func(c *Config) *int { return &c.Search.DefaultLimit }),
		"search.max_limit": intSetting("search", "Largest accepted result limit", false,
			func(c *Config) *int { return &c.Search.MaxLimit }),
		"search.cache_size": intSetting("search", "Cached search results per index generation", true,
			func(c *Config) *int { return &c.Search.CacheSize }),

		"validation.schema": stringSetting("validation", "Schema validation mode (full, none)", true,
			func(c *Config) *string { return &c.Validation.Schema }),
		"validation.tool_timeout": durationSetting("validation", "Default external tool timeout", false,
			func(c *Config) *time.Duration { return &c.Validation.ToolTimeout }),

		"redis.enabled": boolSetting("redis", "Publish latest rules to redis", true,
			func(c *Config) *bool { return &c.Redis.Enabled }),
		"redis.addr": stringSetting("redis", "Redis address", true,
			func(c *Config) *string { return &c.Redis.Addr }),
		"redis.password": stringSetting("redis", "Redis password", true,
			func(c *Config) *string { return &c.Redis.Password }),
		"redis.db": intSetting("redis", "Redis database number", true,
			func(c *Config) *int { return &c.Redis.DB }),
		"redis.ttl": durationSetting("redis", "Expiry of published rules, 0 for none", false,
			func(c *Config) *time.Duration { return &c.Redis.TTL }),

		"server.host": stringSetting("server", "HTTP listen host", true,
			func(c *Config) *string { return &c.Server.Host }),
		"server.port": intSetting("server", "HTTP listen port", true,
			func(c *Config) *int { return &c.Server.Port }),
		"server.rate_limit.rps": floatSetting("server", "Requests per second per client", true,
			func(c *Config) *float64 { return &c.Server.RateLimit.RPS }),
		"server.rate_limit.burst": intSetting("server", "Request burst per client", true,
			func(c *Config) *int { return &c.Server.RateLimit.Burst }),
	}

	pw := s["redis.password"]
	pw.Sensitive = true
	s["redis.password"] = pw
	return s
}

// Keys lists every overridable path in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Schema returns the metadata for path.
func Schema(path string) (SettingSchema, error) {
	s, ok := settings[strings.ToLower(strings.TrimSpace(path))]
	if !ok {
		return SettingSchema{}, fmt.Errorf("%w: %s", ErrUnknownConfigKey, path)
	}
	return s, nil
}

// Get returns the current value at path as a string. Sensitive values are masked.
func (c *Config) Get(path string) (string, error) {
	s, err := Schema(path)
	if err != nil {
		return "", err
	}
	value := s.get(c)
	if s.Sensitive && value != "" {
		return maskedValue, nil
	}
	return value, nil
}

// Set overrides the value at path. The change is rejected, and c left untouched,
// if the value does not parse or the resulting config is invalid.
func (c *Config) Set(path, value string) error {
	s, err := Schema(path)
	if err != nil {
		return err
	}
	updated := *c
	if err := s.set(&updated, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", path, err)
	}
	if err := validateConfig(&updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", path, err)
	}
	*c = updated
	return nil
}

const maskedValue = "********"

// Masked returns a copy of c with secrets replaced, suitable for display.
func (c *Config) Masked() *Config {
	masked := *c
	if masked.Redis.Password != "" {
		masked.Redis.Password = maskedValue
	}
	return &masked
}
