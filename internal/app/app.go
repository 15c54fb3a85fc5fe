// Package app assembles the user service from its configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-user-cache/internal/config"
	"github.com/goliatone/go-user-cache/internal/database"
	"github.com/goliatone/go-user-cache/internal/health"
	"github.com/goliatone/go-user-cache/internal/logging"
	"github.com/goliatone/go-user-cache/internal/transport/httpapi"
	"github.com/goliatone/go-user-cache/internal/users"
	"github.com/goliatone/go-user-cache/pkg/di"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is the assembled application.
type Service struct {
	cfg    config.Config
	logger *zap.Logger
	db     *bun.DB
	caches *di.Container
	api    *httpapi.API
	server *httpapi.Server
}

// Run builds the service from cfg and serves until ctx is cancelled, then
// shuts down gracefully.
func Run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Log, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer svc.Close()

	return svc.Serve(ctx)
}

// New opens the database and cache and wires the HTTP API.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("service", cfg.ProjectName))

	var registry *prometheus.Registry
	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = registry
	}

	db, err := database.Open(ctx, cfg.DatabaseConfig(), logger)
	if err != nil {
		return nil, err
	}

	if cfg.DB.AutoMigrate {
		if err := database.EnsureSchema(ctx, db, (*users.User)(nil)); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("schema ensured", zap.String("table", "users"))
	}

	caches, err := di.NewContainer(cfg.CacheConfig(), logger.Named("cache"), reg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache backend: %w", err)
	}

	userService := users.NewService(users.NewRepository(db, logger), caches.Layer())

	opts := []httpapi.Option{
		httpapi.WithBaseContext(context.WithoutCancel(ctx)),
		httpapi.WithRequestTimeout(cfg.HTTP.RequestTimeout),
		httpapi.WithDebug(cfg.Debug),
		httpapi.WithLogger(logger.Named("http")),
	}
	if registry != nil {
		opts = append(opts, httpapi.WithMetrics(httpapi.NewHTTPMetrics(registry)))
	}

	api := httpapi.NewAPI(opts...)
	httpapi.NewUserHandlers(userService).Register(api, cfg.APIPrefix)
	api.RegisterHealth(cfg.APIPrefix, health.NewChecker(cfg.HTTP.RequestTimeout, logger,
		health.DatabaseCheck(db),
		health.CacheCheck(caches.Layer()),
	))
	if registry != nil {
		api.RegisterMetrics(cfg.Metrics.Path, registry)
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:               cfg.HTTP.Addr,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
		Name:               cfg.ProjectName,
	}, api.Handler(), logger.Named("http"))

	return &Service{
		cfg:    cfg,
		logger: logger,
		db:     db,
		caches: caches,
		api:    api,
		server: server,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() fasthttp.RequestHandler {
	return s.api.Handler()
}

// Serve runs the HTTP server until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.server.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the cache and database connections.
func (s *Service) Close() {
	if err := s.caches.Close(); err != nil {
		s.logger.Warn("closing cache backend", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", zap.Error(err))
	}
	s.logger.Info("service stopped")
}
