// Package app builds the components shared by the API and worker binaries
// from the loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-assistant/internal/config"
	"github.com/jwalitptl/booking-assistant/internal/handler/health"
	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
	"github.com/jwalitptl/booking-assistant/internal/repository/memory"
	"github.com/jwalitptl/booking-assistant/internal/repository/postgres"
	redisstate "github.com/jwalitptl/booking-assistant/internal/repository/redis"
	"github.com/jwalitptl/booking-assistant/internal/service/availability"
	"github.com/jwalitptl/booking-assistant/internal/service/calendar"
	"github.com/jwalitptl/booking-assistant/internal/service/ledger"
	"github.com/jwalitptl/booking-assistant/pkg/circuitbreaker"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
	pkgrepository "github.com/jwalitptl/booking-assistant/pkg/repository"
)

const metricsNamespace = "booking"

type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Location  *time.Location
	Providers *model.Directory

	Store    repository.Store
	Outbox   pkgrepository.OutboxRepository
	Calendar calendar.Client
	Ledger   *ledger.Service
	Resolver *availability.Resolver

	// db is nil with the memory store, redis until the state store or a
	// health check needs it.
	db      *sqlx.DB
	redis   *goredis.Client
	closers []func() error
}

// New connects the ledger store and the calendar and builds the services
// on top of them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	providers, err := cfg.Directory()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	a := &App{
		Config:    cfg,
		Logger:    log,
		Registry:  registry,
		Metrics:   metrics.NewMetrics(registry, metricsNamespace),
		Location:  loc,
		Providers: providers,
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCalendar(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.NewService(a.Store, providers, log.With("component", "ledger"), a.Metrics)
	a.Resolver = availability.NewResolver(
		a.Store,
		a.Calendar,
		providers,
		cfg.ToResolverConfig(loc),
		log.With("component", "availability"),
		a.Metrics,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "postgres":
		db, err := postgres.NewDB(a.Config.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		a.Store = repository.Instrument(postgres.NewStore(db), a.Metrics)
		a.Outbox = postgres.NewOutboxRepository(db)
	default:
		a.Logger.Warn("Using the in-memory store, reservations are lost on restart")
		a.Store = repository.Instrument(memory.NewStore(), a.Metrics)
		a.Outbox = repository.NewOutbox(a.Store)
	}
	return nil
}

func (a *App) openCalendar(ctx context.Context) error {
	cfg := a.Config.Calendar
	var cal calendar.Client
	switch cfg.Driver {
	case "google":
		g, err := calendar.NewGoogle(ctx, cfg.CredentialsFile, a.Location, a.Logger.With("component", "calendar"))
		if err != nil {
			return err
		}
		cal = g
	default:
		cal = calendar.NewStatic(a.Location)
	}
	if cfg.CacheTTL > 0 {
		cal = calendar.NewCached(cal, cfg.CacheTTL)
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "calendar",
		MaxFailures: cfg.BreakerFailures,
		Timeout:     cfg.BreakerTimeout,
	})
	a.Calendar = calendar.NewGuarded(cal, breaker, cfg.FetchTimeout)
	return nil
}

// Redis returns the shared redis client, connecting on first use.
func (a *App) Redis(ctx context.Context) (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	if a.Config.Redis.URL == "" {
		return nil, errors.New("redis url is not configured")
	}
	client, err := redisstate.NewClient(ctx, a.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// StateStore returns the conversation state backend.
func (a *App) StateStore(ctx context.Context) (repository.StateStore, error) {
	if a.Config.Store.State != "redis" {
		return memory.NewStateStore(a.Config.Store.StateTTL), nil
	}
	client, err := a.Redis(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return redisstate.NewStateStore(client, a.Config.Store.StateTTL), nil
}

// Checks lists the dependencies readiness depends on.
func (a *App) Checks() map[string]health.Checker {
	checks := map[string]health.Checker{}
	if a.db != nil {
		checks["postgres"] = a.db
	}
	if a.redis != nil {
		client := a.redis
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return checks
}

// OnClose registers fn to run when the app is closed.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error(err, "Failed to release resource")
		}
	}
	a.closers = nil
}
