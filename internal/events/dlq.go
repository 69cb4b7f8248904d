package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Dead-letter errors
var (
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrAlreadyReplayed    = errors.New("dead letter already replayed")
)

// DeadLetter is an event that exhausted its retries.
type DeadLetter struct {
	ID         uuid.UUID  `json:"id"`
	Topic      string     `json:"topic"`
	Event      *Event     `json:"event"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}

// DeadLetterStore keeps dead letters for inspection and replay.
type DeadLetterStore interface {
	Save(ctx context.Context, d *DeadLetter) error
	Get(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
	List(ctx context.Context, limit int) ([]*DeadLetter, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ArtifactFailer is the part of the artifact ledger the dead-letter
// handler needs.
type ArtifactFailer interface {
	// MarkExhausted fails the artifact and uses up its batch retries
	MarkExhausted(ctx context.Context, id uuid.UUID, reason string, maxRetries int) error

	// Requeue returns a failed artifact to PENDING with a fresh retry budget
	Requeue(ctx context.Context, id uuid.UUID) error
}

// DLQStats counts dead-letter handling outcomes.
type DLQStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// DeadLetterHandler consumes the dead-letter topic of topic. It stores each
// event and fails the artifact it refers to so the batch dispatcher stops
// retrying it.
type DeadLetterHandler struct {
	topic      string
	store      DeadLetterStore
	artifacts  ArtifactFailer
	pub        Publisher
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time

	processed atomic.Int64
	failed    atomic.Int64
}

// NewDeadLetterHandler creates the handler. maxRetries is the batch retry
// ceiling written to exhausted artifacts.
func NewDeadLetterHandler(
	topic string,
	store DeadLetterStore,
	artifacts ArtifactFailer,
	pub Publisher,
	maxRetries int,
	logger *slog.Logger,
) *DeadLetterHandler {
	return &DeadLetterHandler{
		topic:      topic,
		store:      store,
		artifacts:  artifacts,
		pub:        pub,
		maxRetries: maxRetries,
		logger:     logger.With("component", "dead_letter_handler", "topic", DLQTopic(topic)),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Topic returns the topic the handler must be subscribed to.
func (h *DeadLetterHandler) Topic() string {
	return DLQTopic(h.topic)
}

// HandleEvent records a dead-lettered event.
func (h *DeadLetterHandler) HandleEvent(ctx context.Context, e *Event) error {
	reason := e.FailureReason
	if reason == "" {
		reason = e.ErrorMessage
	}

	d := &DeadLetter{
		ID:        uuid.New(),
		Topic:     h.topic,
		Event:     e.Clone(),
		Reason:    reason,
		CreatedAt: h.now(),
	}
	if err := h.store.Save(ctx, d); err != nil {
		h.failed.Add(1)
		return fmt.Errorf("failed to save dead letter: %w", err)
	}

	if e.ArtifactID != uuid.Nil {
		if err := h.artifacts.MarkExhausted(ctx, e.ArtifactID, "DLQ: "+reason, h.maxRetries); err != nil {
			h.failed.Add(1)
			return fmt.Errorf("failed to mark artifact failed: %w", err)
		}
	}

	h.processed.Add(1)
	h.logger.Warn("dead letter recorded",
		"dead_letter_id", d.ID,
		"event_id", e.EventID,
		"event_type", e.Type,
		"artifact_id", e.ArtifactID,
		"reason", reason)
	return nil
}

// Replay requeues the artifact of a dead letter and republishes its event
// on the main topic with the retry count reset.
func (h *DeadLetterHandler) Replay(ctx context.Context, id uuid.UUID) (*Event, error) {
	d, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.ReplayedAt != nil {
		return nil, ErrAlreadyReplayed
	}

	if d.Event.ArtifactID != uuid.Nil {
		if err := h.artifacts.Requeue(ctx, d.Event.ArtifactID); err != nil {
			return nil, fmt.Errorf("failed to requeue artifact: %w", err)
		}
	}

	e := d.Event.Clone()
	e.RetryCount = 0
	e.FirstFailureAt = nil
	e.LastRetryAt = nil
	e.DeadLetteredAt = nil
	e.FailureReason = ""
	e.ErrorMessage = ""
	e.Timestamp = h.now()

	if err := h.pub.Publish(ctx, d.Topic, e); err != nil {
		return nil, fmt.Errorf("failed to republish event: %w", err)
	}

	if err := h.store.MarkReplayed(ctx, id, h.now()); err != nil {
		return nil, fmt.Errorf("failed to mark dead letter replayed: %w", err)
	}

	h.logger.Info("dead letter replayed",
		"dead_letter_id", id,
		"event_id", e.EventID,
		"artifact_id", e.ArtifactID)
	return e, nil
}

// List returns the most recent dead letters.
func (h *DeadLetterHandler) List(ctx context.Context, limit int) ([]*DeadLetter, error) {
	return h.store.List(ctx, limit)
}

// Stats returns handling counters.
func (h *DeadLetterHandler) Stats() DLQStats {
	return DLQStats{
		Processed: h.processed.Load(),
		Failed:    h.failed.Load(),
	}
}
