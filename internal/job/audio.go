package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/storage"
)

// FileUpdater persists the file fields of an artifact after a job replaced
// its stored object.
type FileUpdater interface {
	UpdateFile(ctx context.Context, a *domain.Artifact) error
}

// Chainer is implemented by jobs whose success should request a follow-up
// pass for the same artifact.
type Chainer interface {
	Next(a *domain.Artifact) (events.Type, bool)
}

// AudioConversionJob converts uploaded audio into wav for playback and
// analysis. Wav uploads pass through untouched.
type AudioConversionJob struct {
	Defaults
	store     storage.Storage
	converter Converter
	files     FileUpdater
	tempDir   string
	analysis  bool
	logger    *slog.Logger
}

// NewAudioConversionJob creates the conversion job. Intermediate files are
// written below tempDir, or the system temp dir when empty. With analysis
// set, a converted recording waits in ANALYSIS_PENDING for voice analysis
// instead of completing.
func NewAudioConversionJob(
	store storage.Storage,
	converter Converter,
	files FileUpdater,
	tempDir string,
	analysis bool,
	logger *slog.Logger,
) *AudioConversionJob {
	return &AudioConversionJob{
		store:     store,
		converter: converter,
		files:     files,
		tempDir:   tempDir,
		analysis:  analysis,
		logger:    logger.With("job", "audio_conversion"),
	}
}

func (j *AudioConversionJob) Name() string { return "audio_conversion" }

func (j *AudioConversionJob) CanProcess(a *domain.Artifact) bool {
	return a.IsAudio() && acceptsNew(a)
}

func (j *AudioConversionJob) InProgressStatus() domain.ProcessingStatus {
	return domain.StatusConverting
}

func (j *AudioConversionJob) CompletedStatus() domain.ProcessingStatus {
	if j.analysis {
		return domain.StatusAnalysisPending
	}
	return domain.StatusCompleted
}

func (j *AudioConversionJob) Pool() pool.Kind { return pool.Conversion }

// EstimatedDuration is five seconds per megabyte, at least five seconds.
func (j *AudioConversionJob) EstimatedDuration(a *domain.Artifact) time.Duration {
	return perMB(a, 5*time.Second, 5*time.Second)
}

// Next requests voice analysis of the converted file.
func (j *AudioConversionJob) Next(a *domain.Artifact) (events.Type, bool) {
	return events.TypeVoiceAnalysisRequested, j.analysis
}

// Process downloads the original, converts it to wav, stores the result
// next to the original and points the artifact at it.
func (j *AudioConversionJob) Process(ctx context.Context, a *domain.Artifact) error {
	log := j.logger.With("artifact_id", a.ID)

	if a.IsWav() {
		log.Info("artifact is already wav, skipping conversion")
		return nil
	}

	work, err := os.MkdirTemp(j.tempDir, "convert-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	src := filepath.Join(work, "source."+a.Extension)
	if err := download(ctx, j.store, a.Location, src); err != nil {
		return err
	}

	dst := filepath.Join(work, "converted.wav")
	if err := j.converter.Convert(ctx, src, dst); err != nil {
		return err
	}

	out, err := os.Open(dst)
	if err != nil {
		return fmt.Errorf("converted file missing: %w", err)
	}
	defer func() { _ = out.Close() }()

	info, err := out.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat converted file: %w", err)
	}

	original := a.Location
	key := replaceExt(original, ".wav")
	location, err := j.store.Store(ctx, key, out)
	if err != nil {
		return fmt.Errorf("failed to store converted file: %w", err)
	}

	a.FileName = replaceExt(a.FileName, ".wav")
	a.Extension = "wav"
	a.ContentType = "audio/wav"
	a.SizeBytes = info.Size()
	a.Location = location
	if err := j.files.UpdateFile(ctx, a); err != nil {
		return fmt.Errorf("failed to record converted file: %w", err)
	}

	if original != location {
		if err := j.store.Delete(ctx, original); err != nil {
			log.Warn("failed to delete original after conversion",
				"location", original,
				"error", err)
		}
	}

	log.Info("audio converted to wav",
		"location", location,
		"size_bytes", a.SizeBytes)
	return nil
}

func download(ctx context.Context, store storage.Storage, location, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create local copy: %w", err)
	}

	if _, err := storage.Copy(ctx, store, location, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to download %s: %w", location, err)
	}
	return f.Close()
}

func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}
