package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/phrazzld/media-pipeline/internal/api"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var errLocked = errors.New("another instance holds the lock file")

// runServe runs the server until SIGINT or SIGTERM.
func runServe(ctx context.Context, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}

	if cfg.Server.LockFile != "" {
		lock := flock.New(cfg.Server.LockFile)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire lock file: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", errLocked, cfg.Server.LockFile)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				cc.logger.Warn("failed to release lock file", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, cc.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

// Run starts the dispatcher, the event consumers and the HTTP server, and
// shuts everything down once ctx is done or one of them fails.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.dispatcher.Run(gctx)
	})

	if app.bus != nil {
		for _, topic := range app.consumer.Topics() {
			app.subscribe(gctx, g, topic, app.consumer)
		}
		app.subscribe(gctx, g, app.dlq.Topic(), app.dlq)
	}

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()
	app.cleanup(cleanupCtx)

	if err != nil {
		return err
	}
	app.logger.Info("server shutdown completed")
	return nil
}

func (app *application) subscribe(ctx context.Context, g *errgroup.Group, topic string, h events.Handler) {
	g.Go(func() error {
		app.logger.Info("subscribing", "topic", topic)
		err := app.bus.Subscribe(ctx, topic, h)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscription to %s failed: %w", topic, err)
		}
		return nil
	})
}

func (app *application) setupRouter() http.Handler {
	handler := api.NewAdminHandler(app.dispatcher, app.pools, app.artifacts, app.adminDeadLetters(), app.logger)
	metrics := promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{})
	return api.NewRouter(handler, metrics, app.healthCheck, app.logger)
}

// adminDeadLetters is nil when no dead-letter consumer runs.
func (app *application) adminDeadLetters() api.DeadLetterAdmin {
	if app.bus == nil {
		return nil
	}
	return app.dlq
}
