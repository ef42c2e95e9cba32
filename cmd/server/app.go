package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/reelforge/internal/config"
	"github.com/phrazzld/reelforge/internal/events"
	"github.com/phrazzld/reelforge/internal/generation"
	"github.com/phrazzld/reelforge/internal/media"
	"github.com/phrazzld/reelforge/internal/platform/gemini"
	"github.com/phrazzld/reelforge/internal/resilience"
	"github.com/phrazzld/reelforge/internal/task"
)

// geminiBreaker names the circuit breaker that guards the Gemini API.
const geminiBreaker = "gemini"

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	registry *task.Registry
	breakers *resilience.BreakerRegistry
	bus      *events.Bus
	pool     *task.Pool
}

// newApplication creates a new application instance with all dependencies
// initialized and the worker pool started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		registry: task.NewRegistry(),
		breakers: resilience.NewBreakerRegistry(breakerDefaults(cfg.Breaker), logger),
		bus:      events.NewBus(logger),
	}

	if err := app.registerHandlers(ctx); err != nil {
		return nil, err
	}

	observer := events.Fanout(app.bus, events.NewLogObserver(logger))
	pool, err := task.NewPool(app.registry, observer, poolConfig(cfg.Pool), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	app.pool = pool

	logger.Info("Application initialized successfully", "task_types", app.registry.Types())
	return app, nil
}

// registerHandlers registers a task handler for every configured backend.
// Script generation is only available when a Gemini API key is set.
func (app *application) registerHandlers(ctx context.Context) error {
	runner, err := media.NewRunner(app.config.Media, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create media runner: %w", err)
	}
	if err := app.registry.Register(media.TaskType, media.NewTaskHandler(runner)); err != nil {
		return err
	}

	if app.config.LLM.GeminiAPIKey == "" {
		app.logger.Warn("Gemini API key not set, script generation disabled")
		return nil
	}

	generator, err := gemini.NewGenerator(
		ctx,
		app.logger.With("component", "llm_generator"),
		app.config.LLM,
		app.breakers.Get(geminiBreaker),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	app.logger.Info("LLM generator initialized successfully", "model", app.config.LLM.ModelName)

	return app.registry.Register(generation.TaskType, generation.NewTaskHandler(generator))
}

// poolConfig converts the loaded pool settings, leaving task defaults in
// place for unset fields.
func poolConfig(c config.PoolConfig) task.Config {
	cfg := task.DefaultConfig()
	cfg.MinWorkers = c.MinWorkers
	if c.MaxWorkers > 0 {
		cfg.MaxWorkers = c.MaxWorkers
	}
	cfg.DefaultTimeout = c.DefaultTimeout
	cfg.DefaultRetries = c.DefaultRetries
	cfg.MaxQueueDepth = c.MaxQueueDepth
	cfg.IdleTimeout = c.IdleTimeout
	cfg.ReapInterval = c.ReapInterval
	cfg.Retry = task.RetryConfig{
		BaseDelay:  c.RetryBaseDelay,
		Multiplier: c.RetryMultiplier,
		MaxDelay:   c.RetryMaxDelay,
	}
	return cfg
}

func breakerDefaults(c config.BreakerConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		OpenTimeout:      c.OpenTimeout,
	}
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup terminates the pool and closes the event bus. Jobs still queued or
// running are rejected with task.ErrPoolTerminated.
func (app *application) cleanup(ctx context.Context) error {
	var err error
	if app.pool != nil {
		if err = app.pool.Terminate(ctx); err != nil {
			app.logger.Error("Error terminating worker pool", "error", err)
		}
	}
	app.bus.Close()

	app.logger.Info("Application shutdown completed")
	return err
}
