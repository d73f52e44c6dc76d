package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/icco/cinerec/handlers"
	"github.com/icco/cinerec/lib/config"
	"github.com/icco/cinerec/lib/db"
	"github.com/icco/cinerec/lib/health"
	"github.com/icco/cinerec/lib/lock"
	"github.com/icco/cinerec/lib/logging"
	"github.com/icco/cinerec/lib/omdb"
	"github.com/icco/cinerec/lib/recommend"
	"github.com/icco/cinerec/lib/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type App struct {
	cfg     *config.Config
	db      *gorm.DB
	catalog omdb.Catalog
	breaker *omdb.Breaker
	store   *users.Store
	engine  *recommend.Engine
	router  *chi.Mux
	logger  *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	gdb, err := db.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	var catalog omdb.Catalog = omdb.NewClient(omdb.Config{
		APIKey:  cfg.Catalog.APIKey,
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: cfg.Catalog.Timeout,
	}, logger)

	var breaker *omdb.Breaker
	if cfg.Catalog.BreakerEnabled {
		breaker = omdb.NewBreaker("omdb", catalog, omdb.DefaultBreakerSettings(), logger)
		catalog = breaker
	}

	fallback := recommend.NewFallback(catalog, cfg.Recommend.FallbackTitles, logger)
	engine := recommend.New(catalog, fallback, logger,
		recommend.WithPicker(recommend.NewPicker(cfg.Recommend.Seed)),
		recommend.WithSignalTimeout(cfg.Recommend.SignalTimeout))

	app := &App{
		cfg:     cfg,
		db:      gdb,
		catalog: catalog,
		breaker: breaker,
		store:   users.NewStore(gdb, lock.NewFileLock(cfg.Lock.Dir, logger), logger),
		engine:  engine,
		router:  chi.NewRouter(),
		logger:  logger,
	}

	app.setupRoutes()
	return app, nil
}

func (a *App) setupRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{handlers.SourceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// A nil *omdb.Breaker must not become a non-nil interface.
	var breaker health.BreakerState
	if a.breaker != nil {
		breaker = a.breaker
	}
	a.router.Get("/healthz", health.Check(a.db, breaker))
	a.router.Handle("/metrics", promhttp.Handler())

	a.router.Mount("/api", handlers.APIRoutes(handlers.Deps{
		Store:       a.store,
		Recommender: a.engine,
		Catalog:     a.catalog,
		JWTSecret:   a.cfg.Auth.JWTSecret,
	}))
}

func (a *App) Close() error {
	return db.Close(a.db)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
