package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryingPublisher retries failed publishes with exponential backoff.
type RetryingPublisher struct {
	next     Publisher
	attempts uint64
	base     time.Duration
	max      time.Duration
	logger   *slog.Logger
}

// NewRetryingPublisher wraps next. attempts counts retries after the first try.
func NewRetryingPublisher(next Publisher, attempts int, base, max time.Duration, logger *slog.Logger) *RetryingPublisher {
	if attempts < 0 {
		attempts = 0
	}
	return &RetryingPublisher{
		next:     next,
		attempts: uint64(attempts),
		base:     base,
		max:      max,
		logger:   logger.With("component", "retrying_publisher"),
	}
}

// Publish sends e, retrying transient failures.
func (p *RetryingPublisher) Publish(ctx context.Context, topic string, e *Event) error {
	b := retry.NewExponential(p.base)
	if p.max > 0 {
		b = retry.WithCappedDuration(p.max, b)
	}
	b = retry.WithMaxRetries(p.attempts, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := p.next.Publish(ctx, topic, e); err != nil {
			p.logger.Warn("publish failed",
				"topic", topic,
				"event_id", e.EventID,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// LoggingPublisher logs events instead of sending them.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher creates a publisher for deployments without a broker.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger.With("component", "logging_publisher")}
}

// Publish logs e.
func (p *LoggingPublisher) Publish(ctx context.Context, topic string, e *Event) error {
	p.logger.InfoContext(ctx, "event",
		"topic", topic,
		"event_id", e.EventID,
		"event_type", e.Type,
		"artifact_id", e.ArtifactID,
		"status", e.Status,
		"previous_status", e.PreviousStatus)
	return nil
}
