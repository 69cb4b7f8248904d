package job

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/storage"
)

// ImageOptimizationJob shrinks uploaded images to fit a bounding box and
// re-encodes them in place.
type ImageOptimizationJob struct {
	Defaults
	store     storage.Storage
	maxWidth  int
	maxHeight int
	quality   int
	logger    *slog.Logger
}

// NewImageOptimizationJob creates the optimization job.
func NewImageOptimizationJob(store storage.Storage, maxWidth, maxHeight, quality int, logger *slog.Logger) *ImageOptimizationJob {
	return &ImageOptimizationJob{
		store:     store,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		quality:   quality,
		logger:    logger.With("job", "image_optimization"),
	}
}

func (j *ImageOptimizationJob) Name() string { return "image_optimization" }

func (j *ImageOptimizationJob) CanProcess(a *domain.Artifact) bool {
	return a.IsImage() && acceptsNew(a)
}

func (j *ImageOptimizationJob) InProgressStatus() domain.ProcessingStatus {
	return domain.StatusImageOptimizing
}

func (j *ImageOptimizationJob) CompletedStatus() domain.ProcessingStatus {
	return domain.StatusCompleted
}

func (j *ImageOptimizationJob) Priority() int { return 5 }

func (j *ImageOptimizationJob) Pool() pool.Kind { return pool.Image }

func (j *ImageOptimizationJob) EstimatedDuration(a *domain.Artifact) time.Duration {
	return perMB(a, 2*time.Second, 3*time.Second)
}

// Process fits the image within the bounding box. Images already inside
// it are left untouched.
func (j *ImageOptimizationJob) Process(ctx context.Context, a *domain.Artifact) error {
	img, format, err := decodeImage(ctx, j.store, a)
	if err != nil {
		return err
	}

	b := img.Bounds()
	if b.Dx() <= j.maxWidth && b.Dy() <= j.maxHeight {
		j.logger.Debug("image within bounds, nothing to optimize",
			"artifact_id", a.ID,
			"width", b.Dx(),
			"height", b.Dy())
		return nil
	}

	fitted := imaging.Fit(img, j.maxWidth, j.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, format, imaging.JPEGQuality(j.quality)); err != nil {
		return fmt.Errorf("image encode failed: %w", err)
	}
	size := int64(buf.Len())

	if _, err := j.store.Store(ctx, a.Location, &buf); err != nil {
		return fmt.Errorf("failed to store optimized image: %w", err)
	}
	j.logger.Info("image optimized",
		"artifact_id", a.ID,
		"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to", fmt.Sprintf("%dx%d", fitted.Bounds().Dx(), fitted.Bounds().Dy()),
		"size_bytes", size)
	return nil
}

// ThumbnailJob renders a square-bounded thumbnail for profile images. It
// overlaps with ImageOptimizationJob and wins on priority.
type ThumbnailJob struct {
	Defaults
	store     storage.Storage
	directory string
	size      int
	logger    *slog.Logger
}

// NewThumbnailJob creates the thumbnail job for images under directory.
func NewThumbnailJob(store storage.Storage, directory string, size int, logger *slog.Logger) *ThumbnailJob {
	return &ThumbnailJob{
		store:     store,
		directory: directory,
		size:      size,
		logger:    logger.With("job", "thumbnail"),
	}
}

func (j *ThumbnailJob) Name() string { return "thumbnail" }

func (j *ThumbnailJob) CanProcess(a *domain.Artifact) bool {
	return a.IsImage() && acceptsNew(a) && a.InDirectory(j.directory)
}

func (j *ThumbnailJob) InProgressStatus() domain.ProcessingStatus {
	return domain.StatusThumbnailGenerating
}

func (j *ThumbnailJob) CompletedStatus() domain.ProcessingStatus {
	return domain.StatusCompleted
}

func (j *ThumbnailJob) Priority() int { return 4 }

func (j *ThumbnailJob) Pool() pool.Kind { return pool.Image }

// Process writes a JPEG thumbnail next to the original.
func (j *ThumbnailJob) Process(ctx context.Context, a *domain.Artifact) error {
	img, _, err := decodeImage(ctx, j.store, a)
	if err != nil {
		return err
	}

	thumb := imaging.Fit(img, j.size, j.size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("thumbnail encode failed: %w", err)
	}

	key := ThumbnailKey(a.Location)
	if _, err := j.store.Store(ctx, key, &buf); err != nil {
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}

	j.logger.Info("thumbnail generated",
		"artifact_id", a.ID,
		"location", key,
		"width", thumb.Bounds().Dx(),
		"height", thumb.Bounds().Dy())
	return nil
}

// ThumbnailKey returns where the thumbnail of location is stored.
func ThumbnailKey(location string) string {
	dir, file := path.Split(location)
	return dir + "thumb_" + strings.TrimSuffix(file, path.Ext(file)) + ".jpg"
}

func decodeImage(ctx context.Context, store storage.Storage, a *domain.Artifact) (image.Image, imaging.Format, error) {
	r, err := store.Open(ctx, a.Location)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = r.Close() }()

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("image decode failed: %w", err)
	}

	format, err := imaging.FormatFromFilename(a.FileName)
	if err != nil {
		format = imaging.JPEG
	}
	return img, format, nil
}
