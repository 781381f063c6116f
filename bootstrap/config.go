package bootstrap

import (
	"fmt"
	"io"
	"os"
	"sort"

	"rulebase/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions controls InitLogger.
type LoggerOptions struct {
	Level   string
	NoColor bool
	// Output defaults to stderr so that command output on stdout stays machine readable
	Output io.Writer
}

// InitLogger initializes the zap logger with colored console output.
func InitLogger(opts LoggerOptions) (*zap.Logger, *zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if opts.NoColor {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(out),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration and applies key=value overrides in sorted key order.
func InitConfig(configFile string, overrides map[string]string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.Set(k, overrides[k]); err != nil {
			return nil, fmt.Errorf("failed to apply override: %w", err)
		}
	}
	if _, ok := overrides["data_paths.data_dir"]; ok {
		// re-derive the paths that were not overridden themselves
		if _, ok := overrides["data_paths.rules_dir"]; !ok {
			cfg.DataPaths.RulesDir = ""
		}
		if _, ok := overrides["data_paths.sqlite_path"]; !ok {
			cfg.DataPaths.SQLitePath = ""
		}
		if _, ok := overrides["data_paths.log_dir"]; !ok {
			cfg.DataPaths.LogDir = ""
		}
	}
	cfg.ResolveDataPaths()
	return cfg, nil
}

func logConfig(sugar *zap.SugaredLogger, cfg *config.Config) {
	sugar.Debugw("Data paths configuration",
		"data_dir", cfg.DataPaths.DataDir,
		"rules_dir", cfg.DataPaths.RulesDir,
		"sqlite_path", cfg.DataPaths.SQLitePath,
		"log_dir", cfg.DataPaths.LogDir)
	sugar.Debugw("Config loaded",
		"backend", cfg.Storage.Backend,
		"schema", cfg.Validation.Schema,
		"workers", cfg.Import.Workers,
		"redis", cfg.Redis.Enabled)
}
