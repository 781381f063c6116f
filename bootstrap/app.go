package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"rulebase/api"
	"rulebase/config"
	"rulebase/importer"
	"rulebase/rulesdb"
	"rulebase/validation"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful HTTP drain.
const shutdownTimeout = 10 * time.Second

// Options controls NewApp.
type Options struct {
	ConfigFile string
	// LogLevel overrides the configured level when set
	LogLevel string
	NoColor  bool
	// Quiet raises the log level to warn
	Quiet bool
	// Overrides are dotted key=value settings applied after the config file
	Overrides map[string]string
}

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Sugar    *zap.SugaredLogger
	Storage  *StorageComponents
	DB       *rulesdb.Database
	Importer *importer.Importer
	Schema   validation.SchemaValidator
	Tools    *validation.ToolRunner

	APIServer *api.API

	closeOnce sync.Once
}

// NewApp loads configuration, opens storage and loads the rule database.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	cfg, err := InitConfig(opts.ConfigFile, opts.Overrides)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.Quiet {
		level = "warn"
	}
	logger, sugar, err := InitLogger(LoggerOptions{Level: level, NoColor: opts.NoColor})
	if err != nil {
		return nil, err
	}
	logConfig(sugar, cfg)

	app := &App{Config: cfg, Logger: logger, Sugar: sugar}
	if err := app.init(ctx); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	cfg := app.Config

	if err := EnsureDataDirectories(cfg, app.Sugar); err != nil {
		return err
	}

	sc, err := InitStorage(ctx, cfg, app.Sugar)
	if err != nil {
		return err
	}
	app.Storage = sc

	db, err := rulesdb.New(sc.Store, &rulesdb.Options{
		Logger:          app.Sugar,
		SearchCacheSize: cfg.Search.CacheSize,
		Publisher:       sc.Publisher(),
	})
	if err != nil {
		return fmt.Errorf("failed to create rule database: %w", err)
	}
	if err := db.Load(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	app.DB = db

	schema, err := validation.NewSchemaValidator(cfg.Validation.Schema)
	if err != nil {
		return err
	}
	app.Schema = schema

	app.Importer = importer.New(db, importer.Options{
		Workers:         cfg.Import.Workers,
		RatePerSecond:   cfg.Import.RatePerSecond,
		FileTimeout:     cfg.Import.FileTimeout,
		SegmentCap:      cfg.Import.SegmentCap,
		MaxCoreSections: cfg.Import.MaxCoreSections,
		Validator:       schema,
		Logger:          app.Sugar,
	})
	app.Tools = validation.NewToolRunner(cfg.ToolsOrDefault(), cfg.Validation.ToolTimeout, app.Sugar)
	return nil
}

// ServeOptions controls Serve.
type ServeOptions struct {
	// WatchDir, when set, is re-imported on change while the server runs
	WatchDir string
	Debounce time.Duration
}

// Addr is the configured listen address.
func (app *App) Addr() string {
	return net.JoinHostPort(app.Config.Server.Host, strconv.Itoa(app.Config.Server.Port))
}

// Serve runs the HTTP API, and the directory watcher when requested, until ctx is done
// or one of them fails.
func (app *App) Serve(ctx context.Context, opts ServeOptions) error {
	deps := api.Deps{
		Rules:    app.DB,
		Importer: app.Importer,
		Tools:    app.Tools,
		Schema:   app.Schema,
	}
	if app.Storage != nil && app.Storage.SQLite != nil {
		deps.Health = app.Storage.SQLite
	}
	app.APIServer = api.NewAPI(deps, app.Config, app.Sugar)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.APIServer.Start(app.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Sugar.Info("Shutting down API server")
		return app.APIServer.Stop(shutdownCtx)
	})
	if opts.WatchDir != "" {
		g.Go(func() error {
			return app.Importer.Watch(gctx, opts.WatchDir, importer.WatchOptions{
				Debounce: opts.Debounce,
				OnImport: app.logImport,
			})
		})
	}
	return g.Wait()
}

func (app *App) logImport(path string, result *importer.Result, err error) {
	if err != nil {
		app.Sugar.Warnw("Re-import failed", "path", path, "error", err)
		return
	}
	s := result.Summary()
	app.Sugar.Infow("Re-imported", "path", path, "stored", len(result.Rules), "failed", s.Failed)
}

// Shutdown closes storage. It is safe to call more than once.
func (app *App) Shutdown() {
	app.closeOnce.Do(func() {
		if app.Storage != nil {
			if err := app.Storage.Close(); err != nil {
				app.Sugar.Warnw("Error closing storage", "error", err)
			}
		}
		if app.Logger != nil {
			_ = app.Logger.Sync()
		}
	})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
