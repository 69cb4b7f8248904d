package api

import (
	"time"

	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/pool"
)

// BatchSizeRequest defines the payload of PUT /admin/batch/size.
type BatchSizeRequest struct {
	BatchSize int `json:"batch_size" validate:"required,gte=1,lte=100"`
}

// TriggerResponse acknowledges an out-of-schedule batch pass.
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Started int    `json:"started"`
}

// PoolsResponse lists every resource pool.
type PoolsResponse struct {
	Pools []pool.Snapshot `json:"pools"`
}

// ArtifactResponse is the externally visible status of an artifact.
type ArtifactResponse struct {
	ID            string     `json:"id"`
	FileName      string     `json:"file_name"`
	ContentType   string     `json:"content_type"`
	SizeBytes     int64      `json:"size_bytes"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastFailedAt  *time.Time `json:"last_failed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DeadLettersResponse lists dead letters and the handler counters.
type DeadLettersResponse struct {
	DeadLetters []*events.DeadLetter `json:"dead_letters"`
	Stats       events.DLQStats      `json:"stats"`
}

// ReplayResponse acknowledges a dead-letter replay.
type ReplayResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Event   *events.Event `json:"event"`
}

func artifactToResponse(a *domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:            a.ID.String(),
		FileName:      a.FileName,
		ContentType:   a.ContentType,
		SizeBytes:     a.SizeBytes,
		Status:        string(a.Status),
		RetryCount:    a.Retries(),
		LastFailedAt:  a.LastFailedAt,
		FailureReason: a.FailureReason,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}
