package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// publishStatus announces a status transition. Publishing is best effort:
// the ledger already holds the new status.
func (d *Dispatcher) publishStatus(ctx context.Context, id uuid.UUID, from, to domain.ProcessingStatus, reason string) {
	if d.pub == nil {
		return
	}
	e := events.NewStatusChanged(Source, id, string(from), string(to))
	e.ErrorMessage = reason
	if err := d.pub.Publish(ctx, d.cfg.StatusTopic, e); err != nil {
		d.logger.Warn("failed to publish status change",
			"artifact_id", id,
			"status", to,
			"error", err)
	}
}

func (d *Dispatcher) publishFollowUp(ctx context.Context, id uuid.UUID, t events.Type) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Publish(ctx, d.cfg.Topic, events.New(t, Source, id)); err != nil {
		d.logger.Warn("failed to request follow-up processing",
			"artifact_id", id,
			"event_type", t,
			"error", err)
		return
	}
	d.logger.Debug("follow-up processing requested", "artifact_id", id, "event_type", t)
}

// HandleEvent starts processing for inbound processing events. It is meant
// to sit behind an events.RetryingConsumer: a returned error makes the event
// retry later.
//
// Events for unknown artifacts, for artifacts no job accepts, or for
// artifacts already in flight are acknowledged without work.
func (d *Dispatcher) HandleEvent(ctx context.Context, e *events.Event) error {
	switch e.Type {
	case events.TypeUploadCompleted,
		events.TypeProcessingRequested,
		events.TypeVoiceAnalysisRequested,
		events.TypeRetryProcessing:
	default:
		return nil
	}

	err := d.Dispatch(ctx, e.ArtifactID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrArtifactNotFound):
		d.logger.Warn("event for unknown artifact dropped",
			"event_id", e.EventID,
			"event_type", e.Type,
			"artifact_id", e.ArtifactID)
		return nil
	case errors.Is(err, ErrNoJob), errors.Is(err, ErrInFlight):
		d.logger.Debug("event needs no processing",
			"event_id", e.EventID,
			"event_type", e.Type,
			"artifact_id", e.ArtifactID,
			"reason", err)
		return nil
	default:
		return err
	}
}
