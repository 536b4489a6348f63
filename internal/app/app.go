package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	grpcapp "magiclink/internal/app/grpc"
	httpapp "magiclink/internal/app/http"
	"magiclink/internal/config"
	magiclinkhttp "magiclink/internal/http/magiclink"
	"magiclink/internal/http/middleware"
	"magiclink/internal/lib/logger/sl"
	"magiclink/internal/services/magiclink"
	"magiclink/internal/services/session"
	"magiclink/internal/storage/mongodb"
	"magiclink/internal/storage/postgres"
	"magiclink/internal/storage/sqlite"
)

const storageCloseTimeout = 5 * time.Second

// Storage is what the exchange flow needs from a backing store.
type Storage interface {
	magiclink.AccountActivator
	magiclink.AccountProvider
	session.RefreshTokenSaver
	grpcapp.Pinger
}

type App struct {
	HTTPSrv *httpapp.App
	GRPCSrv *grpcapp.App
	Handler http.Handler

	logger       *slog.Logger
	closeStorage func() error
}

// New opens the configured storage and wires the application. It panics if
// the storage cannot be opened.
func New(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
) *App {
	st, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		panic(err)
	}

	application, err := NewWithStorage(logger, cfg, st)
	if err != nil {
		_ = closeStorage()
		panic(err)
	}
	application.closeStorage = closeStorage

	return application
}

// NewWithStorage wires the application on top of an already opened storage.
func NewWithStorage(
	logger *slog.Logger,
	cfg *config.Config,
	st Storage,
) (*App, error) {
	const op = "app.NewWithStorage"

	redirects, err := magiclink.NewRedirects(cfg.Redirect.Success, cfg.Redirect.Error)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	issuer := session.New(logger, st, cfg.RefreshTokenTTL)
	magicLinkService := magiclink.New(logger, st, st, issuer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.NewMetrics(registry).Middleware)
	router.Use(chimw.Recoverer)

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	magiclinkhttp.Register(router, logger, registry, magicLinkService, redirects)

	httpApp := httpapp.New(logger, router, httpapp.Options{
		Address:         cfg.HTTP.Address,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	grpcApp := grpcapp.New(logger, st, cfg.Grpc.Port)

	return &App{
		HTTPSrv:      httpApp,
		GRPCSrv:      grpcApp,
		Handler:      router,
		logger:       logger,
		closeStorage: func() error { return nil },
	}, nil
}

// Stop shuts down both servers and releases the storage.
func (a *App) Stop() {
	a.HTTPSrv.Stop()
	a.GRPCSrv.Stop()

	if err := a.closeStorage(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (Storage, func() error, error) {
	const op = "app.openStorage"

	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		st, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, st.Close, nil

	case config.StoragePostgres:
		st, err := postgres.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		return st, func() error { st.Close(); return nil }, nil

	case config.StorageMongoDB:
		st, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		closeFn := func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), storageCloseTimeout)
			defer cancel()
			return st.Close(closeCtx)
		}
		return st, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}
