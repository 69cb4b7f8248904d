package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/phrazzld/media-pipeline/internal/platform/logger"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// PostgresVectorStore keeps one voice vector per artifact. Embeddings are
// stored as JSONB arrays.
type PostgresVectorStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresVectorStore creates a vector store on db.
func NewPostgresVectorStore(db store.DBTX, logger *slog.Logger) *PostgresVectorStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresVectorStore{
		db:     db,
		logger: logger.With(slog.String("component", "vector_store")),
	}
}

var _ job.VectorStore = (*PostgresVectorStore)(nil)

// SaveVector upserts the analysis of an artifact.
func (s *PostgresVectorStore) SaveVector(ctx context.Context, artifactID uuid.UUID, a *job.Analysis) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if a == nil || len(a.Embedding) == 0 {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, job.ErrEmptyAnalysis)
	}

	embedding, err := json.Marshal(a.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO voice_vectors (artifact_id, description, model, dimensions, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (artifact_id) DO UPDATE
		SET description = EXCLUDED.description,
		    model = EXCLUDED.model,
		    dimensions = EXCLUDED.dimensions,
		    embedding = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, artifactID, a.Description, a.Model, len(a.Embedding), embedding, now)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrArtifactNotFound
		}
		log.Error("failed to save voice vector",
			slog.String("artifact_id", artifactID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("vector", "save", "upsert failed", MapError(err))
	}

	log.Debug("voice vector saved",
		slog.String("artifact_id", artifactID.String()),
		slog.Int("dimensions", len(a.Embedding)))
	return nil
}

// HasVector reports whether the artifact already has a vector.
func (s *PostgresVectorStore) HasVector(ctx context.Context, artifactID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM voice_vectors WHERE artifact_id = $1)`, artifactID,
	).Scan(&exists)
	if err != nil {
		return false, store.NewStoreError("vector", "exists", "query failed", MapError(err))
	}
	return exists, nil
}

// GetVector returns the stored analysis, or store.ErrVectorNotFound.
func (s *PostgresVectorStore) GetVector(ctx context.Context, artifactID uuid.UUID) (*job.Analysis, error) {
	var (
		a         job.Analysis
		embedding []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT description, model, embedding FROM voice_vectors WHERE artifact_id = $1`, artifactID,
	).Scan(&a.Description, &a.Model, &embedding)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrVectorNotFound
		}
		return nil, store.NewStoreError("vector", "get", "query failed", MapError(err))
	}

	if err := json.Unmarshal(embedding, &a.Embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return &a, nil
}
