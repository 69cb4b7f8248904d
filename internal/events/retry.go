package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds event redelivery.
type RetryConfig struct {
	// MaxRetries is the retry count at which an event is dead-lettered
	MaxRetries int

	// Delay is the minimum time between a failure and its retry
	Delay time.Duration
}

// DefaultRetryConfig returns three retries five minutes apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Delay:      5 * time.Minute,
	}
}

// RetryingConsumer wraps a Handler subscribed to topic and its retry topic.
// A failed event is republished to the retry topic with its retry count
// incremented; once the count has reached MaxRetries the event is moved to
// the dead-letter topic instead. The retry count is the only criterion.
type RetryingConsumer struct {
	topic   string
	next    Handler
	pub     Publisher
	cfg     RetryConfig
	logger  *slog.Logger
	now     func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

// NewRetryingConsumer creates a consumer for topic.
func NewRetryingConsumer(topic string, next Handler, pub Publisher, cfg RetryConfig, logger *slog.Logger) *RetryingConsumer {
	return &RetryingConsumer{
		topic:   topic,
		next:    next,
		pub:     pub,
		cfg:     cfg,
		logger:  logger.With("component", "retrying_consumer", "topic", topic),
		now:     func() time.Time { return time.Now().UTC() },
		sleepFn: sleep,
	}
}

// Topics returns the topics the consumer must be subscribed to.
func (c *RetryingConsumer) Topics() []string {
	return []string{c.topic, RetryTopic(c.topic)}
}

// HandleEvent runs the wrapped handler and routes a failure to the retry or
// dead-letter topic. It returns an error only when that routing fails, so
// the broker redelivers the original.
func (c *RetryingConsumer) HandleEvent(ctx context.Context, e *Event) error {
	if e.LastRetryAt != nil && c.cfg.Delay > 0 {
		if wait := e.LastRetryAt.Add(c.cfg.Delay).Sub(c.now()); wait > 0 {
			if err := c.sleepFn(ctx, wait); err != nil {
				return err
			}
		}
	}

	err := c.next.HandleEvent(ctx, e)
	if err == nil {
		return nil
	}

	if e.RetryCount < c.cfg.MaxRetries {
		return c.retry(ctx, e, err)
	}
	return c.deadLetter(ctx, e, err)
}

func (c *RetryingConsumer) retry(ctx context.Context, e *Event, cause error) error {
	now := c.now()
	r := e.Clone()
	r.RetryCount++
	r.LastRetryAt = &now
	if r.FirstFailureAt == nil {
		r.FirstFailureAt = &now
	}
	r.ErrorMessage = cause.Error()

	if err := c.pub.Publish(ctx, RetryTopic(c.topic), r); err != nil {
		return fmt.Errorf("failed to publish retry: %w", err)
	}

	c.logger.Warn("event scheduled for retry",
		"event_id", e.EventID,
		"event_type", e.Type,
		"artifact_id", e.ArtifactID,
		"retry_count", r.RetryCount,
		"max_retries", c.cfg.MaxRetries,
		"error", cause)
	return nil
}

func (c *RetryingConsumer) deadLetter(ctx context.Context, e *Event, cause error) error {
	now := c.now()
	d := e.Clone()
	d.DeadLetteredAt = &now
	d.FailureReason = fmt.Sprintf("%s (retry %d failed)", cause.Error(), e.RetryCount)
	if d.FirstFailureAt == nil {
		d.FirstFailureAt = &now
	}

	if err := c.pub.Publish(ctx, DLQTopic(c.topic), d); err != nil {
		return fmt.Errorf("failed to publish to dead-letter topic: %w", err)
	}

	c.logger.Error("event moved to dead-letter topic",
		"event_id", e.EventID,
		"event_type", e.Type,
		"artifact_id", e.ArtifactID,
		"retry_count", e.RetryCount,
		"reason", d.FailureReason)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
