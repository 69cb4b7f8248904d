// Package job defines the processing strategies the dispatcher can run
// against an artifact and the registry that selects one per artifact.
package job

import (
	"context"
	"time"

	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/pool"
)

const (
	// DefaultPriority is used by jobs that do not declare their own.
	DefaultPriority = 10

	// DefaultEstimate is the duration hint of jobs that do not declare one.
	DefaultEstimate = 30 * time.Second
)

// Job processes one kind of artifact. A job declares which artifacts it
// accepts and the status transition it performs: the dispatcher moves the
// artifact to InProgressStatus before Process and to CompletedStatus after
// it returns nil.
type Job interface {
	// Name identifies the job in logs and statistics
	Name() string

	// CanProcess reports whether the job accepts the artifact in its
	// current status
	CanProcess(a *domain.Artifact) bool

	// Process performs the work. A non-nil error is a handled failure and
	// its message becomes the recorded failure reason.
	Process(ctx context.Context, a *domain.Artifact) error

	// InProgressStatus is set while the job runs
	InProgressStatus() domain.ProcessingStatus

	// CompletedStatus is set when Process succeeds
	CompletedStatus() domain.ProcessingStatus

	// Priority orders overlapping jobs; lower wins
	Priority() int

	// EstimatedDuration is a hint of how long Process takes for a
	EstimatedDuration(a *domain.Artifact) time.Duration

	// Pool names the resource pool the job runs on
	Pool() pool.Kind
}

// Defaults provides the default Priority and EstimatedDuration. Jobs embed
// it and override what they need.
type Defaults struct{}

// Priority returns DefaultPriority.
func (Defaults) Priority() int { return DefaultPriority }

// EstimatedDuration returns DefaultEstimate.
func (Defaults) EstimatedDuration(*domain.Artifact) time.Duration { return DefaultEstimate }

// perMB scales an estimate by artifact size with a floor.
func perMB(a *domain.Artifact, each, floor time.Duration) time.Duration {
	d := time.Duration(a.SizeBytes/(1024*1024)) * each
	if d < floor {
		return floor
	}
	return d
}

// acceptsNew reports whether a is waiting for its first processing pass.
func acceptsNew(a *domain.Artifact) bool {
	return a.Status == domain.StatusUploaded || a.Status == domain.StatusPending
}
