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
	"github.com/jaslr/orchon/internal/alerts"
	"github.com/jaslr/orchon/internal/alerts/email"
	"github.com/jaslr/orchon/internal/api"
	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	historymemory "github.com/jaslr/orchon/internal/history/memory"
	historypostgres "github.com/jaslr/orchon/internal/history/postgres"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/pkg/ctxlog"
	"github.com/jaslr/orchon/internal/pkg/httputil"
	"github.com/jaslr/orchon/internal/pkg/metrics"
	"github.com/jaslr/orchon/internal/pkg/postgres"
	"github.com/jaslr/orchon/internal/poller"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/provider/flyio"
	"github.com/jaslr/orchon/internal/provider/github"
	"github.com/jaslr/orchon/internal/provider/netlify"
	"github.com/jaslr/orchon/internal/provider/sshhost"
	"github.com/jaslr/orchon/internal/provider/supabase"
	"github.com/jaslr/orchon/internal/provider/uptime"
	"github.com/jaslr/orchon/internal/recovery"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"github.com/jaslr/orchon/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool // nil in degraded mode
	store         history.Store
	broadcaster   *live.Broadcaster
	engine        *poller.Engine
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance. When the database is unreachable
// the app comes up in degraded mode on an in-memory store instead of
// refusing to start: live monitoring still works, history is lost on
// restart.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	reg, err := registry.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		metricsCancel: metricsCancel,
	}

	app.store = app.connectStore(cfg)
	if app.db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	app.broadcaster = live.NewBroadcaster()
	liveHandler := live.NewHandler(app.broadcaster)

	dispatcher, err := buildAlertDispatcher(cfg, reg, app.store, app.broadcaster)
	if err != nil {
		metricsCancel()
		return nil, err
	}

	recoveryService := recovery.NewService(reg, app.store, recovery.Config{
		GitHubToken: cfg.Providers.GitHubToken,
		FlyToken:    cfg.Providers.FlyToken,
	})

	app.engine = buildEngine(cfg, reg, app.store, app.broadcaster, dispatcher)

	apiHandler := api.NewHandler(reg, app.store, liveHandler, recoveryService)
	router := app.setupRouter(apiHandler)

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

// connectStore connects to postgres and runs migrations, falling back to the
// in-memory store when the database is unavailable.
func (a *App) connectStore(cfg *config.Config) history.Store {
	if cfg.Database.URL == "" {
		a.logger.Warn("no database configured, running with in-memory history")
		return historymemory.NewStore()
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		a.logger.Error("database unavailable, running degraded with in-memory history", "error", err)
		return historymemory.NewStore()
	}

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		db.Close()
		a.logger.Error("migrations failed, running degraded with in-memory history", "error", err)
		return historymemory.NewStore()
	}

	a.db = db
	return historypostgres.NewRepository(db)
}

func buildAlertDispatcher(cfg *config.Config, reg *registry.Registry, store history.Store, b *live.Broadcaster) (*alerts.Dispatcher, error) {
	renderer, err := alerts.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create alert renderer: %w", err)
	}

	var sender alerts.EmailSender
	if cfg.Alerts.Email.Enabled {
		emailSender, err := email.NewSender(email.Config{
			Enabled:      cfg.Alerts.Email.Enabled,
			SMTPHost:     cfg.Alerts.Email.SMTPHost,
			SMTPPort:     cfg.Alerts.Email.SMTPPort,
			SMTPUser:     cfg.Alerts.Email.SMTPUser,
			SMTPPassword: cfg.Alerts.Email.SMTPPassword,
			FromAddress:  cfg.Alerts.Email.FromAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}
		sender = emailSender
	} else {
		slog.Warn("email alerts disabled: business tier projects only get ui alerts")
	}

	return alerts.NewDispatcher(reg, store, b, sender, renderer), nil
}

func buildEngine(cfg *config.Config, reg *registry.Registry, store history.Store, b *live.Broadcaster, dispatcher *alerts.Dispatcher) *poller.Engine {
	tracker := status.NewTracker()

	clients := []provider.Client{
		github.NewClient(github.Config{
			Token:          cfg.Providers.GitHubToken,
			RequestTimeout: cfg.Pollers.RequestTimeout,
			RatePerSecond:  cfg.Providers.RatePerSecond,
		}),
		flyio.NewClient(flyio.Config{
			Token:          cfg.Providers.FlyToken,
			RequestTimeout: cfg.Pollers.RequestTimeout,
			RatePerSecond:  cfg.Providers.RatePerSecond,
		}),
		netlify.NewClient(netlify.Config{
			Token:          cfg.Providers.NetlifyToken,
			RequestTimeout: cfg.Pollers.RequestTimeout,
			RatePerSecond:  cfg.Providers.RatePerSecond,
		}),
		supabase.NewClient(supabase.Config{
			AccessToken:    cfg.Providers.SupabaseKey,
			RequestTimeout: cfg.Pollers.RequestTimeout,
			RatePerSecond:  cfg.Providers.RatePerSecond,
		}),
		sshhost.NewClient(sshhost.Config{
			DialTimeout: cfg.Pollers.RequestTimeout,
		}),
		uptime.NewProber(uptime.Config{
			RequestTimeout: cfg.Pollers.RequestTimeout,
		}),
	}

	engine := poller.NewEngine(cfg.Pollers.StartupDelay)
	for _, client := range clients {
		interval := cfg.Pollers.CheckInterval
		if client.Provider() == domain.ProviderUptime {
			interval = cfg.Pollers.UptimeInterval
		}
		cycle := poller.NewCycle(reg, client, store, tracker, b, dispatcher, cfg.Pollers.Concurrency)
		engine.Add(cycle, interval)
	}
	return engine
}

// Run starts the poll engine, the broadcaster heartbeat and the HTTP
// servers.
func (a *App) Run() error {
	a.broadcaster.Start()
	a.engine.Start(context.Background())

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

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"degraded", a.db == nil,
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
	a.engine.Stop()
	a.broadcaster.Stop()

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

	if a.db != nil {
		a.db.Close()
	}

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

// Broadcaster returns the live event broadcaster for testing.
func (a *App) Broadcaster() *live.Broadcaster {
	return a.broadcaster
}

func (a *App) setupRouter(apiHandler *api.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	auth := httputil.BearerAuthMiddleware(a.config.Auth.Token)

	r.Route("/api/v1", func(r chi.Router) {
		// No request timeout on this group: /live holds its connection open
		// for the lifetime of the client.
		apiHandler.RegisterRoutes(r, auth)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// Degraded mode is still ready: the in-memory store serves everything.
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK (degraded)")
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
