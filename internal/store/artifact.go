package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
)

// ArtifactStore is the status ledger of uploaded artifacts.
//
// Status changes go through UpdateStatus, a compare-and-set on the current
// status, so two workers can never both move the same artifact out of the
// same state. Implementations must be safe for concurrent use.
type ArtifactStore interface {
	// Create inserts a new artifact. ErrArtifactExists on a duplicate ID.
	Create(ctx context.Context, a *domain.Artifact) error

	// Get returns the artifact or ErrArtifactNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error)

	// FindEligibleForProcessing first moves FAILED artifacts that still have
	// retries left and whose cool-down elapsed back to PENDING, then returns
	// up to limit artifacts that are UPLOADED, or PENDING with retries left
	// and an elapsed cool-down, oldest first.
	FindEligibleForProcessing(ctx context.Context, limit, maxRetries int, retryAfter time.Duration) ([]*domain.Artifact, error)

	// UpdateStatus moves the artifact from one status to another. It returns
	// ErrStatusConflict when the artifact is no longer in from, and
	// domain.ErrInvalidTransition when the move is not allowed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.ProcessingStatus) error

	// UpdateFile persists the file fields of a (converted) artifact:
	// name, content type, extension, size and location.
	UpdateFile(ctx context.Context, a *domain.Artifact) error

	// RecordFailure moves the artifact from the in-progress status from to
	// FAILED, increments its retry count and stamps the failure time and
	// reason. It reports whether the retry budget of maxRetries is now used
	// up, and returns ErrStatusConflict when the artifact left from.
	RecordFailure(ctx context.Context, id uuid.UUID, from domain.ProcessingStatus, reason string, maxRetries int) (bool, error)

	// MarkExhausted marks the artifact FAILED with its retries used up, so
	// the batch path never picks it again.
	MarkExhausted(ctx context.Context, id uuid.UUID, reason string, maxRetries int) error

	// Requeue returns a FAILED artifact to PENDING with a fresh retry budget.
	// ErrStatusConflict when the artifact is not FAILED.
	Requeue(ctx context.Context, id uuid.UUID) error

	// CountByStatus returns the number of artifacts per status. Statuses
	// with no artifacts are absent.
	CountByStatus(ctx context.Context) (map[domain.ProcessingStatus]int, error)

	// FindStuck returns artifacts that have sat in an in-progress status for
	// longer than olderThan.
	FindStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Artifact, error)
}
