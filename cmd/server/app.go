package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/platform/gemini"
	"github.com/phrazzld/genqueue/internal/service"
	"github.com/phrazzld/genqueue/internal/service/auth"
	"github.com/phrazzld/genqueue/internal/store"
	"github.com/phrazzld/genqueue/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jobStore   store.JobStore
	jobService service.JobService
	jwtService auth.JWTService

	// Event system
	eventEmitter *events.InMemoryEventEmitter
	broker       *events.Broker

	runner *task.Runner
}

// newProvider builds the Gemini provider behind the configured rate limit.
func newProvider(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Provider, error) {
	provider, err := gemini.NewProvider(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	logger.Info("LLM provider initialized",
		"model", cfg.ModelName,
		"requests_per_second", cfg.RequestsPerSecond)

	return generation.NewRateLimitedProvider(provider, cfg.RequestsPerSecond, cfg.Burst), nil
}

// newApplication wires the store, runner, events and services. Nothing runs
// until Run is called.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	provider generation.Provider,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.jobStore, app.db, err = openJobStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	if err := app.init(provider); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

func (app *application) init(provider generation.Provider) error {
	cfg := app.config

	catalog, err := generation.NewCatalog()
	if err != nil {
		return fmt.Errorf("failed to load prompt catalog: %w", err)
	}

	app.runner, err = task.NewRunner(app.jobStore, catalog, provider, runnerConfig(cfg.Jobs), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task runner: %w", err)
	}

	// New jobs wake the runner; every transition reaches stream subscribers.
	app.broker = events.NewBroker(app.logger)
	app.eventEmitter = events.NewInMemoryEventEmitter(app.logger)
	app.eventEmitter.RegisterHandler(task.NewWakeEventHandler(app.runner, app.logger))
	app.eventEmitter.RegisterHandler(app.broker)
	app.runner.SetEmitter(app.eventEmitter)

	app.jobService, err = service.NewJobService(app.jobStore, app.eventEmitter, service.JobServiceConfig{
		DefaultTimeout: cfg.Jobs.DefaultTimeout,
		MaxTimeout:     cfg.Jobs.MaxTimeout,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create job service: %w", err)
	}

	if cfg.Auth.Enabled {
		app.jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		app.logger.Info("JWT authentication enabled")
	}

	return nil
}

func runnerConfig(cfg config.JobsConfig) task.RunnerConfig {
	rc := task.DefaultRunnerConfig()
	rc.WorkerCount = cfg.WorkerCount
	rc.MaxAttempts = cfg.MaxAttempts
	rc.PollInterval = cfg.PollInterval
	rc.Retention = cfg.Retention
	rc.JanitorInterval = cfg.JanitorInterval
	return rc
}

// Run starts the runner and serves HTTP until ctx is cancelled, then shuts
// both down.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
