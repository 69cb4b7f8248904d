package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/storage"
)

// MetadataJob is the catch-all for uploads no media job accepts. It checks
// that the object is readable and fills in a missing content type.
type MetadataJob struct {
	Defaults
	store  storage.Storage
	files  FileUpdater
	logger *slog.Logger
}

// NewMetadataJob creates the fallback job.
func NewMetadataJob(store storage.Storage, files FileUpdater, logger *slog.Logger) *MetadataJob {
	return &MetadataJob{
		store:  store,
		files:  files,
		logger: logger.With("job", "metadata"),
	}
}

func (j *MetadataJob) Name() string { return "metadata" }

func (j *MetadataJob) CanProcess(a *domain.Artifact) bool {
	return acceptsNew(a)
}

func (j *MetadataJob) InProgressStatus() domain.ProcessingStatus {
	return domain.StatusProcessing
}

func (j *MetadataJob) CompletedStatus() domain.ProcessingStatus {
	return domain.StatusCompleted
}

// Priority keeps the fallback behind every specific job.
func (j *MetadataJob) Priority() int { return 50 }

func (j *MetadataJob) Pool() pool.Kind { return pool.Batch }

func (j *MetadataJob) Process(ctx context.Context, a *domain.Artifact) error {
	r, err := j.store.Open(ctx, a.Location)
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer func() { _ = r.Close() }()

	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	if a.ContentType != "" {
		return nil
	}

	a.ContentType = detected.String()
	if err := j.files.UpdateFile(ctx, a); err != nil {
		return fmt.Errorf("failed to record content type: %w", err)
	}

	j.logger.Info("content type detected",
		"artifact_id", a.ID,
		"content_type", a.ContentType)
	return nil
}
