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
	"github.com/leego972/sitewarden/internal/alerting"
	"github.com/leego972/sitewarden/internal/audit"
	"github.com/leego972/sitewarden/internal/config"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/identity"
	"github.com/leego972/sitewarden/internal/incidents"
	incidentspostgres "github.com/leego972/sitewarden/internal/incidents/postgres"
	"github.com/leego972/sitewarden/internal/monitor"
	monitorpostgres "github.com/leego972/sitewarden/internal/monitor/postgres"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
	"github.com/leego972/sitewarden/internal/pkg/httputil"
	"github.com/leego972/sitewarden/internal/pkg/metrics"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
	"github.com/leego972/sitewarden/internal/plans"
	"github.com/leego972/sitewarden/internal/probe"
	"github.com/leego972/sitewarden/internal/repair"
	"github.com/leego972/sitewarden/internal/repair/api"
	"github.com/leego972/sitewarden/internal/repair/platform"
	repairpostgres "github.com/leego972/sitewarden/internal/repair/postgres"
	repairssh "github.com/leego972/sitewarden/internal/repair/ssh"
	"github.com/leego972/sitewarden/internal/repair/webhook"
	"github.com/leego972/sitewarden/internal/sites"
	sitespostgres "github.com/leego972/sitewarden/internal/sites/postgres"
	"github.com/leego972/sitewarden/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	scheduler     *monitor.Scheduler
	checker       *monitor.Checker
	sites         *sitespostgres.Repository
}

// New creates a new application instance. Background work starts with Run.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	db, err := Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	metrics.RecordBuildInfo(version.Version, version.GitCommit)
	if err := metrics.RegisterPool(prometheus.DefaultRegisterer, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
	}

	router, err := app.setup()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setup application: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
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

// Connect opens the database pool described by cfg.
func Connect(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Run starts the scheduler and the HTTP servers. It blocks until the API
// server stops.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start(ctxlog.WithLogger(context.Background(), a.logger.With("component", "scheduler")))
	} else {
		a.logger.Info("scheduler disabled")
	}

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"version", version.Version,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Stop scheduling first so no check starts against a closing pool.
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Shutdown both servers in parallel
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

	a.db.Close()

	return errors.Join(errs...)
}

// Close releases resources of an application that was never run.
func (a *App) Close() {
	a.db.Close()
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the check scheduler, or nil when it is disabled.
func (a *App) Scheduler() *monitor.Scheduler {
	return a.scheduler
}

// CheckSite runs the full check pipeline for one site, as a scheduled check
// would, and returns the site with its state after the check.
func (a *App) CheckSite(ctx context.Context, id string) (*domain.MonitoredSite, *domain.HealthCheck, error) {
	site, err := a.sites.GetSite(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	hc, err := a.checker.Check(ctx, site)
	if err != nil {
		return site, nil, err
	}
	updated, err := a.sites.GetSite(ctx, id)
	if err != nil {
		return site, hc, fmt.Errorf("reload site: %w", err)
	}
	return updated, hc, nil
}

func (a *App) setup() (*chi.Mux, error) {
	cfg := a.config

	planProvider, err := plans.NewProvider(cfg.Plans)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}

	alerter, err := alerting.NewService(alerting.Config{
		BaseURL: cfg.Alerting.BaseURL,
		Timeout: cfg.Alerting.Timeout,
		SMTP: alerting.SMTPConfig{
			Host:        cfg.Alerting.SMTP.Host,
			Port:        cfg.Alerting.SMTP.Port,
			User:        cfg.Alerting.SMTP.User,
			Password:    cfg.Alerting.SMTP.Password,
			FromAddress: cfg.Alerting.SMTP.FromAddress,
		},
		Telegram: alerting.TelegramConfig{
			BotToken:  cfg.Alerting.Telegram.BotToken,
			RateLimit: cfg.Alerting.Telegram.RateLimit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create alerting service: %w", err)
	}

	repairRepo := repairpostgres.NewRepository(a.db)
	dispatcher := repair.NewDispatcher(repair.Config{
		Timeout:   cfg.Repair.Timeout,
		RateLimit: cfg.Repair.RateLimit,
		RateBurst: cfg.Repair.RateBurst,
	}, repairRepo, repairAdapters(cfg.Repair)...)

	incidentRepo := incidentspostgres.NewRepository(a.db)
	managerOpts := []incidents.Option{incidents.WithRepairer(dispatcher)}
	if cfg.Alerting.Enabled {
		managerOpts = append(managerOpts, incidents.WithAlerter(alerter))
	}
	slog.Info("alerting configured",
		"enabled", cfg.Alerting.Enabled,
		"email_enabled", cfg.Alerting.SMTP.Host != "",
		"telegram_enabled", cfg.Alerting.Telegram.BotToken != "",
	)
	manager := incidents.NewManager(incidentRepo, planProvider, managerOpts...)

	prober := probe.NewExecutor(probe.Config{
		DefaultTimeout: cfg.Probe.DefaultTimeout,
		MaxBodyBytes:   cfg.Probe.MaxBodyBytes,
		UserAgent:      cfg.Probe.UserAgent,
	})
	monitorRepo := monitorpostgres.NewRepository(a.db)
	a.checker = monitor.NewChecker(prober, monitorRepo, manager)

	if cfg.Scheduler.Enabled {
		opts := []monitor.SchedulerOption{monitor.WithRetention(planProvider)}
		if cfg.Scheduler.LeaderLock {
			opts = append(opts, monitor.WithLeaderElector(postgres.NewLeaderLock(a.db, cfg.Scheduler.LeaderLockKey)))
		}
		a.scheduler = monitor.NewScheduler(monitor.SchedulerConfig{
			TickInterval:      cfg.Scheduler.TickInterval,
			BatchSize:         cfg.Scheduler.BatchSize,
			Concurrency:       cfg.Scheduler.Concurrency,
			RetentionInterval: cfg.Scheduler.RetentionInterval,
		}, monitorRepo, a.checker, opts...)
	}

	a.sites = sitespostgres.NewRepository(a.db)
	sitesService := sites.NewService(sites.Deps{
		Repo:       a.sites,
		Incidents:  incidentRepo,
		Manager:    manager,
		RepairLogs: repairRepo,
		Repairer:   dispatcher,
		Checker:    a.checker,
		Prober:     prober,
		Plans:      planProvider,
		Audit:      audit.NewLogSink(nil),
	})
	sitesHandler := sites.NewHandler(sitesService)

	validator := identity.NewValidator(identity.Config{
		SecretKey: cfg.JWT.SecretKey,
		Issuer:    cfg.JWT.Issuer,
	})

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Sitewarden API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", func(w http.ResponseWriter, _ *http.Request) {
			httputil.Success(w, http.StatusOK, planProvider.All())
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(validator))
			sitesHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

// repairAdapters builds one adapter per supported access method.
func repairAdapters(cfg config.RepairConfig) []repair.Adapter {
	var executor repairssh.Executor
	sshConfig := repairssh.ExecutorConfig{
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
	}
	if cfg.SSH.Mode == "binary" {
		executor = repairssh.NewBinaryExecutor(sshConfig)
	} else {
		executor = repairssh.NewClientExecutor(sshConfig)
	}
	if cfg.SSH.KnownHostsFile == "" {
		slog.Warn("ssh host keys are not verified: repair.ssh.known_hosts_file is empty")
	}

	adapters := []repair.Adapter{
		webhook.NewAdapter(webhook.Config{}),
		api.NewAdapter(api.Config{}),
		repairssh.NewAdapter(executor),
	}
	for _, a := range platform.NewAdapters(platform.Config{
		RailwayURL: cfg.PlatformURLs.Railway,
		VercelURL:  cfg.PlatformURLs.Vercel,
		NetlifyURL: cfg.PlatformURLs.Netlify,
		RenderURL:  cfg.PlatformURLs.Render,
		HerokuURL:  cfg.PlatformURLs.Heroku,
	}) {
		adapters = append(adapters, a)
	}
	return adapters
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
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
	httputil.JSON(w, http.StatusOK, version.Get())
}

// NewLogger builds the process logger.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
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
