package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/media-pipeline/internal/config"
	"github.com/phrazzld/media-pipeline/internal/dispatch"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/phrazzld/media-pipeline/internal/platform/gemini"
	"github.com/phrazzld/media-pipeline/internal/platform/memory"
	"github.com/phrazzld/media-pipeline/internal/platform/postgres"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/storage"
	"github.com/phrazzld/media-pipeline/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Bounds of the exponential backoff of event publication.
const (
	publishBaseDelay = 100 * time.Millisecond
	publishMaxDelay  = 5 * time.Second
)

// application holds the shared dependencies of the server so they can be
// shut down in order.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when the memory driver is configured
	db *sql.DB

	storage     storage.Storage
	artifacts   store.ArtifactStore
	vectors     job.VectorStore
	deadLetters events.DeadLetterStore

	// bus is nil for the log driver, which only publishes
	bus       events.Bus
	publisher events.Publisher

	registry   *job.Registry
	pools      *pool.Manager
	dispatcher *dispatch.Dispatcher
	consumer   *events.RetryingConsumer
	dlq        *events.DeadLetterHandler
	metrics    *prometheus.Registry
}

// newApplication builds every component from cfg. On error the components
// created so far are released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			app.cleanup(context.Background())
		}
	}()

	if app.storage, err = newStorage(ctx, cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("storage initialized", "driver", cfg.Storage.Driver)

	if err = app.setupStores(ctx); err != nil {
		return nil, err
	}

	if err = app.setupEvents(); err != nil {
		return nil, err
	}

	if app.registry, err = newRegistry(ctx, cfg, app.storage, app.artifacts, app.vectors, logger); err != nil {
		return nil, err
	}

	specs, err := cfg.Pools.Specs()
	if err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}
	if app.pools, err = pool.NewManager(specs, logger); err != nil {
		return nil, fmt.Errorf("failed to create worker pools: %w", err)
	}

	app.dispatcher, err = dispatch.New(
		dispatcherConfig(cfg),
		app.artifacts,
		app.registry,
		app.pools,
		app.publisher,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	retryCfg := events.RetryConfig{
		MaxRetries: cfg.Events.MaxRetries,
		Delay:      cfg.Events.RetryDelay,
	}
	app.consumer = events.NewRetryingConsumer(cfg.Events.Topic, app.dispatcher, app.publisher, retryCfg, logger)
	app.dlq = events.NewDeadLetterHandler(
		cfg.Events.Topic,
		app.deadLetters,
		app.artifacts,
		app.publisher,
		cfg.Batch.RetryAttempts,
		logger,
	)

	if err = app.setupMetrics(); err != nil {
		return nil, err
	}

	logger.Info("application initialized",
		"database_driver", cfg.Database.Driver,
		"events_driver", cfg.Events.Driver,
		"jobs", len(app.registry.Jobs()))
	return app, nil
}

// setupStores opens the artifact ledger, the vector store and the
// dead-letter store.
func (app *application) setupStores(ctx context.Context) error {
	cfg := app.config.Database

	if cfg.Driver == "memory" {
		app.artifacts = memory.NewArtifactStore()
		app.vectors = memory.NewVectorStore()
		app.deadLetters = memory.NewDeadLetterStore()
		app.logger.Warn("using in-memory stores, state is lost on restart")
		return nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := postgres.Migrate(ctx, db, postgres.MigrateUp, app.logger); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	app.artifacts = postgres.NewPostgresArtifactStore(db, app.logger)
	app.vectors = postgres.NewPostgresVectorStore(db, app.logger)
	app.deadLetters = postgres.NewPostgresDeadLetterStore(db, app.logger)
	app.logger.Info("database connection established")
	return nil
}

// setupEvents creates the bus and the publisher every component shares.
func (app *application) setupEvents() error {
	cfg := app.config.Events

	var next events.Publisher
	switch cfg.Driver {
	case "memory":
		bus := events.NewMemoryBus(cfg.Buffer, app.logger)
		app.bus, next = bus, bus
	case "kafka":
		bus, err := events.NewKafkaBus(cfg.Brokers, cfg.GroupID, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka bus: %w", err)
		}
		app.bus, next = bus, bus
	case "redis":
		client, err := events.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		bus := events.NewRedisBus(client, cfg.GroupID, app.logger)
		app.bus, next = bus, bus
	case "log":
		next = events.NewLoggingPublisher(app.logger)
	default:
		return fmt.Errorf("unknown events driver %q", cfg.Driver)
	}

	app.publisher = events.NewRetryingPublisher(
		next,
		int(cfg.PublishAttempts),
		publishBaseDelay,
		publishMaxDelay,
		app.logger,
	)
	return nil
}

// setupMetrics registers the runtime collectors, the pool gauges and the
// dispatcher metrics on a dedicated registry.
func (app *application) setupMetrics() error {
	app.metrics = prometheus.NewRegistry()
	app.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := app.pools.RegisterMetrics(app.metrics); err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}
	if err := app.dispatcher.RegisterMetrics(app.metrics); err != nil {
		return fmt.Errorf("failed to register dispatcher metrics: %w", err)
	}
	return nil
}

// newStorage selects the blob backend.
func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemory(), nil
	case "filesystem":
		fs, err := storage.NewFilesystem(cfg.BaseDir, cfg.BaseURL, cfg.SigningSecret)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "gcs":
		g, err := storage.NewGCS(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newRegistry registers the processing jobs. Voice analysis is only
// available when a Gemini API key is configured.
func newRegistry(
	ctx context.Context,
	cfg *config.Config,
	blobs storage.Storage,
	artifacts store.ArtifactStore,
	vectors job.VectorStore,
	logger *slog.Logger,
) (*job.Registry, error) {
	jobs := cfg.Jobs
	analysis := cfg.Gemini.APIKey != ""

	registry := job.NewRegistry(
		job.NewAudioConversionJob(blobs, job.NewFFmpeg(jobs.FFmpegBinary), artifacts, cfg.Storage.TempDir, analysis, logger),
		job.NewThumbnailJob(blobs, jobs.ThumbnailDirectory, jobs.ThumbnailSize, logger),
		job.NewImageOptimizationJob(blobs, jobs.MaxImageWidth, jobs.MaxImageHeight, jobs.ImageQuality, logger),
		job.NewMetadataJob(blobs, artifacts, logger),
	)

	if !analysis {
		logger.Warn("gemini api key not set, voice analysis disabled")
		return registry, nil
	}

	analyzer, err := gemini.NewAnalyzer(ctx, logger, cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize voice analyzer: %w", err)
	}
	registry.Register(job.NewVoiceAnalysisJob(blobs, analyzer, vectors, cfg.Gemini.MaxAudioBytes, logger))
	return registry, nil
}

func dispatcherConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		Enabled:           cfg.Batch.Enabled,
		Interval:          cfg.Batch.Interval,
		BatchSize:         cfg.Batch.BatchSize,
		MaxConcurrentJobs: cfg.Batch.MaxConcurrentJobs,
		MaxRetries:        cfg.Batch.RetryAttempts,
		RetryAfter:        cfg.Batch.RetryDelay,
		StuckAfter:        cfg.Batch.StuckAfter,
		StuckInterval:     cfg.Batch.StuckInterval,
		Topic:             cfg.Events.Topic,
		StatusTopic:       cfg.Events.StatusTopic,
	}
}

// healthCheck pings the database when there is one.
func (app *application) healthCheck(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return app.db.PingContext(ctx)
}

// cleanup releases resources in reverse dependency order. It is safe on a
// partially built application.
func (app *application) cleanup(ctx context.Context) {
	if app.dispatcher != nil {
		app.dispatcher.Stop()
		app.dispatcher.Wait()
	}

	if app.pools != nil {
		if err := app.pools.Shutdown(ctx); err != nil {
			app.logger.Error("error shutting down worker pools", "error", err)
		}
	}

	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			app.logger.Error("error closing event bus", "error", err)
		}
	}

	if c, ok := app.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Error("error closing storage", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
