package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/api/shared"
	"github.com/phrazzld/media-pipeline/internal/dispatch"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/platform/logger"
	"github.com/phrazzld/media-pipeline/internal/pool"
)

// BatchController is the part of the dispatcher the admin API drives.
type BatchController interface {
	Tick(ctx context.Context) (int, error)
	Dispatch(ctx context.Context, id uuid.UUID) error
	Pause()
	Resume()
	Enabled() bool
	SetBatchSize(n int) error
	Statistics(ctx context.Context) (dispatch.Statistics, error)
}

// PoolInspector reports pool configuration and gauges.
type PoolInspector interface {
	Snapshot() []pool.Snapshot
}

// ArtifactReader reads artifacts from the status ledger.
type ArtifactReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)
}

// DeadLetterAdmin lists and replays dead letters.
type DeadLetterAdmin interface {
	List(ctx context.Context, limit int) ([]*events.DeadLetter, error)
	Replay(ctx context.Context, id uuid.UUID) (*events.Event, error)
	Stats() events.DLQStats
}

// AdminHandler serves the operator control plane.
type AdminHandler struct {
	batch       BatchController
	pools       PoolInspector
	artifacts   ArtifactReader
	deadLetters DeadLetterAdmin
	logger      *slog.Logger
}

// NewAdminHandler creates an AdminHandler. deadLetters may be nil when no
// dead-letter consumer runs, in which case the DLQ routes answer 404.
func NewAdminHandler(
	batch BatchController,
	pools PoolInspector,
	artifacts ArtifactReader,
	deadLetters DeadLetterAdmin,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		batch:       batch,
		pools:       pools,
		artifacts:   artifacts,
		deadLetters: deadLetters,
		logger:      logger.With("component", "admin_api"),
	}
}

func (h *AdminHandler) log(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// GetPools handles GET /admin/pools.
func (h *AdminHandler) GetPools(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, PoolsResponse{Pools: h.pools.Snapshot()})
}

// TriggerBatch handles POST /admin/batch/trigger.
func (h *AdminHandler) TriggerBatch(w http.ResponseWriter, r *http.Request) {
	if !h.batch.Enabled() {
		shared.RespondWithError(w, r, http.StatusConflict, "Batch processing is paused")
		return
	}

	started, err := h.batch.Tick(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to run batch pass")
		return
	}

	h.log(r).Info("batch pass triggered manually", "started", started)
	shared.RespondWithJSON(w, r, http.StatusOK, TriggerResponse{
		Success: true,
		Message: fmt.Sprintf("Batch pass started %d job(s)", started),
		Started: started,
	})
}

// PauseBatch handles POST /admin/batch/pause.
func (h *AdminHandler) PauseBatch(w http.ResponseWriter, r *http.Request) {
	h.batch.Pause()
	shared.RespondWithAck(w, r, http.StatusOK, "Batch processing paused")
}

// ResumeBatch handles POST /admin/batch/resume.
func (h *AdminHandler) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	h.batch.Resume()
	shared.RespondWithAck(w, r, http.StatusOK, "Batch processing resumed")
}

// SetBatchSize handles PUT /admin/batch/size.
func (h *AdminHandler) SetBatchSize(w http.ResponseWriter, r *http.Request) {
	var req BatchSizeRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	if err := h.batch.SetBatchSize(req.BatchSize); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithAck(w, r, http.StatusOK, fmt.Sprintf("Batch size set to %d", req.BatchSize))
}

// GetStatistics handles GET /admin/batch/statistics.
func (h *AdminHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.batch.Statistics(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to collect statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// GetArtifact handles GET /admin/artifacts/{id}.
func (h *AdminHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	a, err := h.artifacts.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load artifact")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, artifactToResponse(a))
}

// ProcessArtifact handles POST /admin/artifacts/{id}/process: the artifact
// is dispatched immediately instead of waiting for the next tick.
func (h *AdminHandler) ProcessArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.batch.Dispatch(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to dispatch artifact")
		return
	}

	h.log(r).Info("artifact dispatched manually", "artifact_id", id)
	shared.RespondWithAck(w, r, http.StatusAccepted, "Artifact dispatched")
}

// ListDeadLetters handles GET /admin/dlq.
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Dead-letter handling is disabled")
		return
	}

	letters, err := h.deadLetters.List(r.Context(), getLimit(r))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list dead letters")
		return
	}
	if letters == nil {
		letters = []*events.DeadLetter{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, DeadLettersResponse{
		DeadLetters: letters,
		Stats:       h.deadLetters.Stats(),
	})
}

// ReplayDeadLetter handles POST /admin/dlq/{id}/replay.
func (h *AdminHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Dead-letter handling is disabled")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	e, err := h.deadLetters.Replay(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to replay dead letter")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ReplayResponse{
		Success: true,
		Message: "Event republished with a fresh retry budget",
		Event:   e,
	})
}
