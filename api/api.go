// Package api exposes the rule database over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"rulebase/config"
	"rulebase/core"
	"rulebase/importer"
	"rulebase/rulesdb"
	"rulebase/validation"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RuleStore is the part of the database the API serves.
type RuleStore interface {
	Get(ruleID string) (*core.Rule, error)
	GetVersion(ruleID, version string) (*core.Rule, error)
	History(ruleID string) []*core.Rule
	Search(ctx context.Context, filter core.SearchFilter) ([]rulesdb.SearchResult, error)
	Add(ctx context.Context, rule *core.Rule) (*rulesdb.AddResult, error)
	Update(ctx context.Context, rule *core.Rule) (*rulesdb.AddResult, error)
	RecordUsage(ctx context.Context, ruleID string, success bool) error
	Stats(filter rulesdb.StatsFilter) rulesdb.Stats
	AvailableTags() rulesdb.AvailableTags
	Conflicts() []rulesdb.Conflict
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck() error
}

// ContentImporter imports a single document supplied in a request body.
type ContentImporter interface {
	ImportContent(ctx context.Context, name, content string, opts importer.ContentOptions) (*importer.Result, error)
}

// ContentValidator runs external checkers over submitted content.
type ContentValidator interface {
	RunForRule(ctx context.Context, rule *core.Rule, content, language string) validation.Report
}

// Deps are the services behind the handlers. Importer and Tools may be nil, in which
// case their endpoints answer 503.
type Deps struct {
	Rules    RuleStore
	Importer ContentImporter
	Tools    ContentValidator
	// Schema checks rules submitted to add and update; nil skips the check
	Schema validation.SchemaValidator
	// Health is checked by /health; nil for stores with nothing to ping
	Health HealthChecker
}

// API holds the API server
type API struct {
	router  *mux.Router
	mu      sync.Mutex
	server  *http.Server
	deps    Deps
	search  config.SearchConfig
	limiter *RateLimiter
	logger  *zap.SugaredLogger
	started time.Time
	stopped bool
}

// NewAPI creates the router and rate limiter. Call Stop to release the limiter's
// cleanup goroutine.
func NewAPI(deps Deps, cfg *config.Config, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &API{
		router:  mux.NewRouter(),
		deps:    deps,
		search:  cfg.Search,
		limiter: NewRateLimiter(cfg.Server.RateLimit, logger),
		logger:  logger,
		started: time.Now(),
	}
	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.loggingMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/rules/search", a.searchRules).Methods(http.MethodGet)
	v1.HandleFunc("/rules", a.createRule).Methods(http.MethodPost)
	v1.HandleFunc("/rules/{id}", a.getRule).Methods(http.MethodGet)
	v1.HandleFunc("/rules/{id}", a.updateRule).Methods(http.MethodPut)
	v1.HandleFunc("/rules/{id}/versions", a.getRuleVersions).Methods(http.MethodGet)
	v1.HandleFunc("/rules/{id}/versions/{version}", a.getRuleVersion).Methods(http.MethodGet)
	v1.HandleFunc("/rules/{id}/usage", a.recordUsage).Methods(http.MethodPost)
	v1.HandleFunc("/import", a.importContent).Methods(http.MethodPost)
	v1.HandleFunc("/stats", a.getStats).Methods(http.MethodGet)
	v1.HandleFunc("/tags", a.getTags).Methods(http.MethodGet)
	v1.HandleFunc("/conflicts", a.getConflicts).Methods(http.MethodGet)
	v1.HandleFunc("/validate", a.validateContent).Methods(http.MethodPost)

	a.router.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the router, for tests and embedding.
func (a *API) Handler() http.Handler {
	return a.router
}

// Start serves on addr until Stop is called. It returns http.ErrServerClosed after a
// clean shutdown.
func (a *API) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return http.ErrServerClosed
	}
	a.server = srv
	a.mu.Unlock()
	a.logger.Infow("API server listening", "addr", addr)
	return srv.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	a.limiter.Stop()
	a.mu.Lock()
	a.stopped = true
	srv := a.server
	a.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debugw("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
