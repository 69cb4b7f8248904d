package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/platform/logger"
	"github.com/phrazzld/media-pipeline/internal/store"
)

const artifactColumns = `id, owner_id, file_name, content_type, extension, size_bytes,
	directory, location, status, retry_count, last_failed_at, failure_reason,
	version, created_at, updated_at`

// PostgresArtifactStore implements store.ArtifactStore on PostgreSQL.
// Status changes are compare-and-set updates guarded by the current status;
// every write bumps the version column.
type PostgresArtifactStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresArtifactStore creates an artifact store on db.
// If logger is nil, a default logger will be used.
func NewPostgresArtifactStore(db *sql.DB, logger *slog.Logger) *PostgresArtifactStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresArtifactStore{
		db:     db,
		logger: logger.With(slog.String("component", "artifact_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ store.ArtifactStore = (*PostgresArtifactStore)(nil)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*domain.Artifact, error) {
	var (
		a          domain.Artifact
		status     string
		retryCount sql.NullInt64
		lastFailed sql.NullTime
	)

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.FileName,
		&a.ContentType,
		&a.Extension,
		&a.SizeBytes,
		&a.Directory,
		&a.Location,
		&status,
		&retryCount,
		&lastFailed,
		&a.FailureReason,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.ProcessingStatus(status)
	if retryCount.Valid {
		n := int(retryCount.Int64)
		a.RetryCount = &n
	}
	if lastFailed.Valid {
		t := lastFailed.Time
		a.LastFailedAt = &t
	}
	return &a, nil
}

func scanArtifacts(rows *sql.Rows) ([]*domain.Artifact, error) {
	defer func() { _ = rows.Close() }()

	var out []*domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create implements store.ArtifactStore.Create.
func (s *PostgresArtifactStore) Create(ctx context.Context, a *domain.Artifact) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO artifacts (` + artifactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.OwnerID,
		a.FileName,
		a.ContentType,
		a.Extension,
		a.SizeBytes,
		a.Directory,
		a.Location,
		string(a.Status),
		nullInt(a.RetryCount),
		nullTime(a.LastFailedAt),
		a.FailureReason,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return MapUniqueViolation(err, "artifact", "", store.ErrArtifactExists)
		}
		log.Error("failed to create artifact",
			slog.String("artifact_id", a.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("artifact", "create", "insert failed", MapError(err))
	}

	log.Debug("artifact created",
		slog.String("artifact_id", a.ID.String()),
		slog.String("status", string(a.Status)))
	return nil
}

// Get implements store.ArtifactStore.Get.
func (s *PostgresArtifactStore) Get(ctx context.Context, id uuid.UUID) (*domain.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`

	a, err := scanArtifact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrArtifactNotFound
		}
		return nil, store.NewStoreError("artifact", "get", "query failed", MapError(err))
	}
	return a, nil
}

// FindEligibleForProcessing implements store.ArtifactStore.FindEligibleForProcessing.
// The promotion and the selection run in one transaction. The transaction
// commits before any unit starts, so batches of concurrent dispatchers may
// overlap; the UpdateStatus compare-and-set decides which unit runs.
func (s *PostgresArtifactStore) FindEligibleForProcessing(
	ctx context.Context,
	limit, maxRetries int,
	retryAfter time.Duration,
) ([]*domain.Artifact, error) {
	if limit <= 0 {
		return nil, nil
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.now()
	cutoff := now.Add(-retryAfter)

	var out []*domain.Artifact
	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		promote := `
			UPDATE artifacts
			SET status = $1, version = version + 1, updated_at = $2
			WHERE status = $3
			  AND retry_count IS NOT NULL AND retry_count < $4
			  AND (last_failed_at IS NULL OR last_failed_at < $5)
		`
		res, err := tx.ExecContext(ctx, promote,
			string(domain.StatusPending), now, string(domain.StatusFailed), maxRetries, cutoff)
		if err != nil {
			return fmt.Errorf("failed to re-enter failed artifacts: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Info("failed artifacts re-entered for retry", slog.Int64("count", n))
		}

		sel := `
			SELECT ` + artifactColumns + `
			FROM artifacts
			WHERE status IN ($1, $2)
			   OR (status = $3
			       AND (retry_count IS NULL OR retry_count < $4)
			       AND (last_failed_at IS NULL OR last_failed_at < $5))
			ORDER BY created_at ASC
			LIMIT $6
		`
		rows, err := tx.QueryContext(ctx, sel,
			string(domain.StatusUploaded), string(domain.StatusAnalysisPending),
			string(domain.StatusPending), maxRetries, cutoff, limit)
		if err != nil {
			return fmt.Errorf("failed to select eligible artifacts: %w", err)
		}
		out, err = scanArtifacts(rows)
		return err
	})
	if err != nil {
		log.Error("failed to find eligible artifacts", slog.String("error", err.Error()))
		return nil, store.NewStoreError("artifact", "find_eligible", "query failed", MapError(err))
	}
	return out, nil
}

// UpdateStatus implements store.ArtifactStore.UpdateStatus.
func (s *PostgresArtifactStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ProcessingStatus,
) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE artifacts
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, string(to), s.now(), id, string(from))
	if err != nil {
		return store.NewStoreError("artifact", "update_status", "update failed", MapError(err))
	}

	return s.checkCAS(ctx, res, id)
}

// UpdateFile implements store.ArtifactStore.UpdateFile.
func (s *PostgresArtifactStore) UpdateFile(ctx context.Context, a *domain.Artifact) error {
	now := s.now()
	query := `
		UPDATE artifacts
		SET file_name = $1, content_type = $2, extension = $3, size_bytes = $4,
		    location = $5, version = version + 1, updated_at = $6
		WHERE id = $7
		RETURNING version
	`
	err := s.db.QueryRowContext(ctx, query,
		a.FileName, a.ContentType, a.Extension, a.SizeBytes, a.Location, now, a.ID,
	).Scan(&a.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrArtifactNotFound
		}
		return store.NewStoreError("artifact", "update_file", "update failed", MapError(err))
	}

	a.UpdatedAt = now
	return nil
}

// RecordFailure implements store.ArtifactStore.RecordFailure.
func (s *PostgresArtifactStore) RecordFailure(
	ctx context.Context,
	id uuid.UUID,
	from domain.ProcessingStatus,
	reason string,
	maxRetries int,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE artifacts
		SET status = $1,
		    retry_count = COALESCE(retry_count, 0) + 1,
		    last_failed_at = $2,
		    failure_reason = $3,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $4 AND status = $5
		RETURNING retry_count
	`
	var retries int
	err := s.db.QueryRowContext(ctx, query,
		string(domain.StatusFailed), s.now(), reason, id, string(from),
	).Scan(&retries)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, s.missOrConflict(ctx, id)
		}
		return false, store.NewStoreError("artifact", "record_failure", "update failed", MapError(err))
	}

	exhausted := retries >= maxRetries
	log.Warn("artifact failure recorded",
		slog.String("artifact_id", id.String()),
		slog.Int("retry_count", retries),
		slog.Bool("exhausted", exhausted))
	return exhausted, nil
}

// MarkExhausted implements store.ArtifactStore.MarkExhausted.
func (s *PostgresArtifactStore) MarkExhausted(
	ctx context.Context,
	id uuid.UUID,
	reason string,
	maxRetries int,
) error {
	query := `
		UPDATE artifacts
		SET status = $1,
		    retry_count = GREATEST(COALESCE(retry_count, 0), $2),
		    last_failed_at = $3,
		    failure_reason = $4,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, query, string(domain.StatusFailed), maxRetries, s.now(), reason, id)
	if err != nil {
		return store.NewStoreError("artifact", "mark_exhausted", "update failed", MapError(err))
	}
	return CheckRowsAffected(res, store.ErrArtifactNotFound)
}

// Requeue implements store.ArtifactStore.Requeue.
func (s *PostgresArtifactStore) Requeue(ctx context.Context, id uuid.UUID) error {
	now := s.now()
	query := `
		UPDATE artifacts
		SET status = $1,
		    retry_count = 0,
		    last_failed_at = COALESCE(last_failed_at, $2),
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, string(domain.StatusPending), now, id, string(domain.StatusFailed))
	if err != nil {
		return store.NewStoreError("artifact", "requeue", "update failed", MapError(err))
	}
	return s.checkCAS(ctx, res, id)
}

// CountByStatus implements store.ArtifactStore.CountByStatus.
func (s *PostgresArtifactStore) CountByStatus(ctx context.Context) (map[domain.ProcessingStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM artifacts GROUP BY status`)
	if err != nil {
		return nil, store.NewStoreError("artifact", "count_by_status", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.ProcessingStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, store.NewStoreError("artifact", "count_by_status", "scan failed", err)
		}
		counts[domain.ProcessingStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("artifact", "count_by_status", "rows failed", err)
	}
	return counts, nil
}

// FindStuck implements store.ArtifactStore.FindStuck.
func (s *PostgresArtifactStore) FindStuck(
	ctx context.Context,
	olderThan time.Duration,
	limit int,
) ([]*domain.Artifact, error) {
	statuses := domain.InProgressStatuses()

	args := make([]any, 0, len(statuses)+2)
	placeholders := make([]string, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	args = append(args, s.now().Add(-olderThan), limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM artifacts
		WHERE status IN (%s) AND updated_at < $%d
		ORDER BY updated_at ASC
		LIMIT $%d
	`, artifactColumns, strings.Join(placeholders, ", "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("artifact", "find_stuck", "query failed", MapError(err))
	}
	out, err := scanArtifacts(rows)
	if err != nil {
		return nil, store.NewStoreError("artifact", "find_stuck", "scan failed", err)
	}
	return out, nil
}

// checkCAS turns a zero-row compare-and-set into ErrArtifactNotFound or
// ErrStatusConflict.
func (s *PostgresArtifactStore) checkCAS(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.missOrConflict(ctx, id)
}

// missOrConflict tells a missing artifact from one whose status moved on.
func (s *PostgresArtifactStore) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM artifacts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return store.NewStoreError("artifact", "check_exists", "query failed", MapError(err))
	}
	if !exists {
		return store.ErrArtifactNotFound
	}
	return store.ErrStatusConflict
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
