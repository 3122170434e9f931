// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsforge/remediator/internal/api"
	"github.com/opsforge/remediator/internal/audit"
	auditpostgres "github.com/opsforge/remediator/internal/audit/postgres"
	"github.com/opsforge/remediator/internal/config"
	"github.com/opsforge/remediator/internal/credentials"
	"github.com/opsforge/remediator/internal/domain"
	"github.com/opsforge/remediator/internal/history"
	historymem "github.com/opsforge/remediator/internal/history/memory"
	historypostgres "github.com/opsforge/remediator/internal/history/postgres"
	"github.com/opsforge/remediator/internal/notify"
	"github.com/opsforge/remediator/internal/orchestration"
	orchestrationpostgres "github.com/opsforge/remediator/internal/orchestration/postgres"
	"github.com/opsforge/remediator/internal/pkg/ctxlog"
	"github.com/opsforge/remediator/internal/pkg/httputil"
	"github.com/opsforge/remediator/internal/pkg/metrics"
	"github.com/opsforge/remediator/internal/pkg/postgres"
	"github.com/opsforge/remediator/internal/platform"
	"github.com/opsforge/remediator/internal/resilience"
	"github.com/opsforge/remediator/internal/routing"
	"github.com/opsforge/remediator/internal/tenant"
	"github.com/opsforge/remediator/internal/validation"
	"github.com/opsforge/remediator/internal/version"
	"github.com/opsforge/remediator/migrations"
)

// App represents the application instance.
type App struct {
	config         *config.Config
	logger         *slog.Logger
	db             *pgxpool.Pool
	engine         *orchestration.Engine
	historyRepo    history.Repository
	server         *http.Server
	metricsServer  *http.Server
	collectorsStop context.CancelFunc
}

// New creates a new application instance. With no database URL
// configured the service runs on in-memory stores.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	var db *pgxpool.Pool
	if cfg.Database.URL != "" {
		if cfg.Database.MigrationsPath != "" {
			if err := postgres.MigrateDir(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		} else if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}

		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		pool, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		db = pool
	} else {
		logger.Warn("no database configured, using in-memory stores")
	}

	collectorsCtx, collectorsStop := context.WithCancel(context.Background())

	app := &App{
		config:         cfg,
		logger:         logger,
		db:             db,
		collectorsStop: collectorsStop,
	}

	if err := app.buildEngine(); err != nil {
		collectorsStop()
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer recoverCancel()
	if err := app.engine.Recover(recoverCtx); err != nil {
		collectorsStop()
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("recover orchestration instances: %w", err)
	}

	go app.collectMetrics(collectorsCtx)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// buildEngine wires the orchestration engine and its collaborators.
func (a *App) buildEngine() error {
	cfg := a.config

	tenants := make([]domain.TenantConfig, 0, len(cfg.Tenants.Static))
	for _, t := range cfg.Tenants.Static {
		platforms := make([]domain.Platform, 0, len(t.EnabledPlatforms))
		for _, p := range t.EnabledPlatforms {
			platforms = append(platforms, domain.Platform(p))
		}
		tenants = append(tenants, domain.TenantConfig{
			TenantID:         t.TenantID,
			Name:             t.Name,
			IsActive:         t.IsActive,
			EnabledPlatforms: platforms,
		})
	}
	tenantProvider := tenant.NewCachedProvider(tenant.NewStaticProvider(tenants), cfg.Tenants.ConfigTTL)
	requestValidator := validation.NewValidator(tenantProvider)

	issuer := credentials.NewClientCredentialsIssuer(
		cfg.Credentials.TokenURL,
		cfg.Credentials.ClientID,
		cfg.Credentials.ClientSecret,
	)
	tokenCache := credentials.NewCache(issuer, cfg.Credentials.FreshnessMargin)

	caller := resilience.NewCaller(resilience.Config{
		MaxAttempts:      cfg.Resilience.MaxAttempts,
		InitialInterval:  cfg.Resilience.InitialInterval,
		BreakerThreshold: uint32(cfg.Resilience.BreakerThreshold),
		BreakerCooldown:  cfg.Resilience.BreakerCooldown,
	})

	endpoints := make(map[domain.Platform]platform.Endpoint, len(cfg.Platforms))
	for name, ep := range cfg.Platforms {
		endpoints[domain.Platform(name)] = platform.Endpoint{
			BaseURL:  ep.BaseURL,
			Resource: ep.Resource,
		}
	}
	client := platform.NewHTTPClient(tokenCache, caller, endpoints)
	dispatcher := routing.NewDispatcher(platform.NewWorkersFromCatalog(routing.Catalog, client)...)

	notifier, err := notify.NewWebhookSender(notify.WebhookConfig{
		Enabled:   cfg.Notifications.Enabled,
		URL:       cfg.Notifications.URL,
		RateLimit: cfg.Notifications.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("create webhook sender: %w", err)
	}

	var (
		auditSink audit.Sink
		journal   orchestration.JournalStore
	)
	if a.db != nil {
		a.historyRepo = historypostgres.NewRepository(a.db)
		auditSink = auditpostgres.NewSink(a.db)
		journal = orchestrationpostgres.NewJournal(a.db)
	} else {
		a.historyRepo = historymem.NewRepository()
		auditSink = audit.NewSlogSink()
		journal = orchestration.NewMemoryJournal()
	}

	a.engine = orchestration.NewEngine(requestValidator, dispatcher, a.historyRepo, auditSink, notifier, journal)
	return nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application: stop accepting
// requests, drain in-flight orchestrations, then close the database.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.collectorsStop()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.engine.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop orchestration engine: %w", err))
	}

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Engine returns the orchestration engine. Used in tests.
func (a *App) Engine() *orchestration.Engine {
	return a.engine
}

func (a *App) collectMetrics(ctx context.Context) {
	collect := func() {
		if a.db != nil {
			metrics.RecordDBPoolMetrics(a.db)
		}
		counts := a.engine.StateCounts()
		byState := make(map[string]int, len(counts))
		for state, n := range counts {
			byState[string(state)] = n
		}
		metrics.RecordInstanceStates(byState)
	}

	collect()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			collect()
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	r.Use(httputil.CORSMiddleware(a.config.Server.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	handler := api.NewHandler(a.engine, a.historyRepo)
	r.Route("/api/v1", handler.RegisterRoutes)

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
