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

	"github.com/bissquit/status-sentry/internal/config"
	"github.com/bissquit/status-sentry/internal/failover"
	"github.com/bissquit/status-sentry/internal/heartbeat"
	"github.com/bissquit/status-sentry/internal/incident"
	incidentpostgres "github.com/bissquit/status-sentry/internal/incident/postgres"
	"github.com/bissquit/status-sentry/internal/notify"
	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/status-sentry/internal/pkg/httputil"
	"github.com/bissquit/status-sentry/internal/pkg/metrics"
	"github.com/bissquit/status-sentry/internal/pkg/postgres"
	"github.com/bissquit/status-sentry/internal/scheduler"
	"github.com/bissquit/status-sentry/internal/statusfeed"
	"github.com/bissquit/status-sentry/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *scheduler.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, sched, err := app.setup()
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup application: %w", err)
	}
	app.scheduler = sched

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

// Run starts the scheduler and the HTTP servers.
func (a *App) Run() error {
	schedCtx := ctxlog.WithLogger(context.Background(), a.logger)
	a.scheduler.Start(schedCtx)

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	// Stop schedules first so no new cycles start mid-shutdown
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

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

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setup() (*chi.Mux, *scheduler.Scheduler, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	store := incidentpostgres.NewRepository(a.db)

	sender := notify.NewSender(notify.Config{
		WebhookURL: a.config.Slack.WebhookURL,
		Username:   a.config.Slack.Username,
		Timeout:    a.config.Slack.Timeout,
	})

	source := statusfeed.NewClient(statusfeed.Config{
		URL:     a.config.Monitor.StatusURL,
		Timeout: a.config.Monitor.RequestTimeout,
	})

	gate := heartbeat.NewFile(a.config.Heartbeat.Path)
	if err := gate.Init(); err != nil {
		return nil, nil, fmt.Errorf("init heartbeat: %w", err)
	}

	reconciler := incident.NewReconciler(
		a.config.Monitor.Services,
		source,
		store,
		sender,
		gate,
	)
	sweeper := incident.NewSweeper(
		store,
		sender,
		a.config.Monitor.EscalationTimeout,
		a.config.Monitor.EscalationContact,
	)
	acknowledger := incident.NewAcknowledger(store, sender)

	handler := incident.NewHandler(acknowledger, a.config.Slack.SigningSecret)

	r.Route("/api/v1", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	jobs := []scheduler.Job{
		{
			Name:     "reconcile",
			Interval: a.config.Monitor.PollInterval,
			Run:      reconciler.Reconcile,
		},
		{
			Name:     "sweep",
			Interval: a.config.Monitor.SweepInterval,
			Run: func(ctx context.Context) error {
				return sweeper.Sweep(ctx, time.Now())
			},
		},
	}

	if a.config.Failover.Enabled {
		prober := failover.NewProber(failover.Config{
			HealthURL:    a.config.Failover.HealthURL,
			Threshold:    a.config.Failover.Threshold,
			ProbeTimeout: a.config.Failover.ProbeTimeout,
		}, sender)

		jobs = append(jobs, scheduler.Job{
			Name:     "failover-probe",
			Interval: a.config.Failover.CheckInterval,
			Run:      prober.Evaluate,
		})
	}

	return r, scheduler.New(jobs...), nil
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
