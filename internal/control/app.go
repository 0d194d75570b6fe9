// Package control wires configuration into a running warmup service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/warmup/internal/core/config"
	"github.com/vietddude/warmup/internal/core/worker"
	redisclient "github.com/vietddude/warmup/internal/infra/redis"
	"github.com/vietddude/warmup/internal/infra/source"
	"github.com/vietddude/warmup/internal/infra/storage"
	"github.com/vietddude/warmup/internal/infra/storage/memory"
	"github.com/vietddude/warmup/internal/infra/storage/postgres"
	"github.com/vietddude/warmup/internal/loading/health"
	"github.com/vietddude/warmup/internal/loading/pipeline"
)

// App owns the orchestrator and everything around it.
type App struct {
	cfg          config.AppConfig
	sources      *source.Set
	orchestrator *pipeline.Orchestrator
	runs         storage.RunRepository
	monitor      *health.Monitor
	pruner       *worker.Pruner
	httpServer   *health.Server
	grpcServer   *health.GRPCServer
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// New creates an App with all dependencies initialized. Nothing listens until Start.
func New(ctx context.Context, cfg config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	app := &App{cfg: cfg, log: log, monitor: health.NewMonitor()}

	// 1. Initialize Storage
	if err := app.initStorage(ctx); err != nil {
		app.closeStores()
		return nil, err
	}

	// 2. Initialize Sources
	sources, err := source.New(cfg.Source, log)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to init source: %w", err)
	}
	app.sources = sources
	log.Info("Using source", "type", cfg.Source.Type)

	// 3. Initialize Orchestrator
	app.orchestrator = pipeline.New(
		pipeline.ConfigFrom(cfg.Pipeline),
		sources.Manifest,
		sources.Fetcher,
		sources.Initializer,
		log,
	)
	app.orchestrator.SetRepository(app.runs)
	app.orchestrator.OnRunStarted(app.monitor.RunStarted)
	app.orchestrator.OnRunFinished(app.monitor.Observe)

	// 4. Initialize Pruner
	app.pruner = worker.NewPruner(cfg.History.Retention, app.runs, log)

	return app, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch {
	case a.cfg.Database.URL != "":
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
		a.runs = postgres.NewRunRepo(db)
		a.monitor.AddCheck("postgres", db.Health)
		a.log.Info("Using PostgreSQL storage")

	case a.cfg.Redis.URL != "":
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.runs = redisclient.NewRunRepo(client)
		a.monitor.AddCheck("redis", client.Health)
		a.log.Info("Using Redis storage")

	default:
		a.runs = memory.NewRunRepo()
		a.log.Info("Using Memory storage")
	}
	return nil
}

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Runs returns the run history repository.
func (a *App) Runs() storage.RunRepository {
	return a.runs
}

// Start starts the servers and background workers. Runs triggered over HTTP
// are bound to ctx.
func (a *App) Start(ctx context.Context) error {
	a.httpServer = health.NewServer(ctx, a.monitor, a.runs, a.orchestrator, a.cfg.Server.Port, a.log)
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()
	a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)

	if a.cfg.Server.GRPCPort > 0 {
		a.grpcServer = health.NewGRPCServer(a.monitor, a.cfg.Server.GRPCPort, a.log)
		go func() {
			if err := a.grpcServer.Start(); err != nil {
				a.log.Error("gRPC health server failed", "error", err)
			}
		}()
		a.log.Info("gRPC health server listening", "port", a.cfg.Server.GRPCPort)
	}

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go a.pruner.Start(ctx)
	return nil
}

// Stop closes the HTTP server so no new runs are accepted, waits for
// in-flight runs until ctx ends, then shuts everything else down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping warmup service...")

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	if err := a.orchestrator.Drain(ctx); err != nil {
		a.log.Warn("Runs still in flight at shutdown", "error", err)
	}

	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	if err := a.sources.Close(); err != nil {
		a.log.Warn("Failed to close source", "error", err)
	}
	a.closeStores()
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
