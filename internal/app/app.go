// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/api"
	"github.com/JakeFAU/bathroom-buddy/internal/auth"
	"github.com/JakeFAU/bathroom-buddy/internal/clock/system"
	"github.com/JakeFAU/bathroom-buddy/internal/config"
	"github.com/JakeFAU/bathroom-buddy/internal/id/uuid"
	"github.com/JakeFAU/bathroom-buddy/internal/places/google"
	"github.com/JakeFAU/bathroom-buddy/internal/policy/ratelimit"
	"github.com/JakeFAU/bathroom-buddy/internal/search"
	"github.com/JakeFAU/bathroom-buddy/internal/storage/memory"
	"github.com/JakeFAU/bathroom-buddy/internal/storage/postgres"
	"github.com/JakeFAU/bathroom-buddy/internal/storage/sqlite"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

// SchemaEnsurer is implemented by repositories that can create their tables.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// App holds the shared, long-lived services of a running server.
type App struct {
	logger *zap.Logger
	repo   store.Repository
	tracer *sdktrace.TracerProvider
	server *api.Server
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Repository exposes the configured persistence backend.
func (a *App) Repository() store.Repository { return a.repo }

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// New builds every service from cfg. It fails fast when a critical service
// cannot be initialized and releases whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services", zap.String("db_driver", cfg.DB.Driver))

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a := &App{logger: logger, tracer: tp}

	a.repo, err = OpenRepository(ctx, cfg.DB, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	mode, err := cfg.SearchMode()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("search mode: %w", err)
	}
	client, err := google.New(google.Config{
		APIKey:     cfg.Places.APIKey,
		GeocodeURL: cfg.Places.GeocodeURL,
		NearbyURL:  cfg.Places.NearbyURL,
		DetailsURL: cfg.Places.DetailsURL,
		Timeout:    cfg.PlacesTimeout(),
	}, logger.Named("places"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("places client: %w", err)
	}
	pipeline := search.New(client, search.Config{
		Keyword:      cfg.Places.Keyword,
		Mode:         mode,
		DetailFields: cfg.Places.DetailFields,
	}, logger.Named("search"))

	clock := system.New()
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.TokenTTL(), clock)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("session tokens: %w", err)
	}
	sessions := auth.NewSessions(tokens, a.repo, auth.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	}, logger.Named("auth"))

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.SearchRPS, Burst: cfg.RateLimit.SearchBurst})
	}

	a.server = api.NewServer(api.Deps{
		Repo:     a.repo,
		Searcher: pipeline,
		Sessions: sessions,
		Hasher:   auth.NewHasher(cfg.Auth.BcryptCost),
		IDs:      uuid.New(),
		Clock:    clock,
		Limiter:  limiter,
		Config:   cfg,
		Logger:   logger.Named("api"),
	})

	logger.Info("application services initialized")
	return a, nil
}

// OpenRepository connects the backend selected by cfg.Driver and, when
// cfg.EnsureSchema is set, creates its tables.
func OpenRepository(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (store.Repository, error) {
	var (
		repo store.Repository
		err  error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		logger.Info("using in-memory repository; data is lost on restart")
		repo = memory.New()
	case config.DriverPostgres:
		logger.Info("connecting to postgres")
		repo, err = postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
	case config.DriverSQLite:
		logger.Info("opening sqlite database", zap.String("path", cfg.SQLitePath))
		repo, err = sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown db driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	if cfg.EnsureSchema {
		if err := EnsureSchema(ctx, repo); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

// EnsureSchema creates the repository tables when the backend supports it.
func EnsureSchema(ctx context.Context, repo store.Repository) error {
	ensurer, ok := repo.(SchemaEnsurer)
	if !ok {
		return nil
	}
	if err := ensurer.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close shuts down the repository and flushes the tracer provider.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.repo != nil {
		a.repo.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
