package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/storage"
)

// ErrEmptyAnalysis is returned when the analyzer produced no vector.
var ErrEmptyAnalysis = errors.New("analysis returned an empty embedding")

// Analysis is the result of analysing one recording.
type Analysis struct {
	Description string
	Embedding   []float32
	Model       string
}

// Analyzer describes a recording and embeds the description.
type Analyzer interface {
	Analyze(ctx context.Context, audio []byte, mimeType string) (*Analysis, error)
}

// VectorStore keeps one voice vector per artifact.
type VectorStore interface {
	SaveVector(ctx context.Context, artifactID uuid.UUID, a *Analysis) error
	HasVector(ctx context.Context, artifactID uuid.UUID) (bool, error)
}

// VoiceAnalysisJob analyses converted wav recordings and indexes their
// voice vector. It runs on the analysis pool, whose semaphore bounds
// concurrent calls to the analysis service.
type VoiceAnalysisJob struct {
	Defaults
	store    storage.Storage
	analyzer Analyzer
	vectors  VectorStore
	maxBytes int64
	logger   *slog.Logger
}

// NewVoiceAnalysisJob creates the analysis job. Recordings larger than
// maxBytes are rejected; zero disables the limit.
func NewVoiceAnalysisJob(
	store storage.Storage,
	analyzer Analyzer,
	vectors VectorStore,
	maxBytes int64,
	logger *slog.Logger,
) *VoiceAnalysisJob {
	return &VoiceAnalysisJob{
		store:    store,
		analyzer: analyzer,
		vectors:  vectors,
		maxBytes: maxBytes,
		logger:   logger.With("job", "voice_analysis"),
	}
}

func (j *VoiceAnalysisJob) Name() string { return "voice_analysis" }

// CanProcess accepts converted recordings waiting for analysis.
func (j *VoiceAnalysisJob) CanProcess(a *domain.Artifact) bool {
	return a.IsWav() && a.Status == domain.StatusAnalysisPending
}

func (j *VoiceAnalysisJob) InProgressStatus() domain.ProcessingStatus {
	return domain.StatusAnalyzing
}

func (j *VoiceAnalysisJob) CompletedStatus() domain.ProcessingStatus {
	return domain.StatusVectorCompleted
}

func (j *VoiceAnalysisJob) Priority() int { return 2 }

func (j *VoiceAnalysisJob) Pool() pool.Kind { return pool.Analysis }

// EstimatedDuration is ten seconds per megabyte, at least fifteen seconds.
func (j *VoiceAnalysisJob) EstimatedDuration(a *domain.Artifact) time.Duration {
	return perMB(a, 10*time.Second, 15*time.Second)
}

// Process analyses the recording unless a vector already exists.
func (j *VoiceAnalysisJob) Process(ctx context.Context, a *domain.Artifact) error {
	log := j.logger.With("artifact_id", a.ID)

	exists, err := j.vectors.HasVector(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("failed to check existing vector: %w", err)
	}
	if exists {
		log.Debug("vector already indexed, nothing to analyse")
		return nil
	}

	if j.maxBytes > 0 && a.SizeBytes > j.maxBytes {
		return fmt.Errorf("recording of %d bytes exceeds analysis limit of %d", a.SizeBytes, j.maxBytes)
	}

	var buf bytes.Buffer
	if _, err := storage.Copy(ctx, j.store, a.Location, &buf); err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	start := time.Now()
	result, err := j.analyzer.Analyze(ctx, buf.Bytes(), "audio/wav")
	if err != nil {
		return fmt.Errorf("voice analysis failed: %w", err)
	}
	if result == nil || len(result.Embedding) == 0 {
		return ErrEmptyAnalysis
	}

	if err := j.vectors.SaveVector(ctx, a.ID, result); err != nil {
		return fmt.Errorf("failed to save vector: %w", err)
	}

	log.Info("voice vector indexed",
		"dimensions", len(result.Embedding),
		"model", result.Model,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
