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
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// PostgresDeadLetterStore persists dead-lettered events with their payload
// as JSONB.
type PostgresDeadLetterStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDeadLetterStore creates a dead-letter store on db.
func NewPostgresDeadLetterStore(db store.DBTX, logger *slog.Logger) *PostgresDeadLetterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeadLetterStore{
		db:     db,
		logger: logger.With(slog.String("component", "dead_letter_store")),
	}
}

var _ events.DeadLetterStore = (*PostgresDeadLetterStore)(nil)

const deadLetterColumns = `id, topic, event, reason, created_at, replayed_at`

// Save inserts a dead letter.
func (s *PostgresDeadLetterStore) Save(ctx context.Context, d *events.DeadLetter) error {
	payload, err := json.Marshal(d.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var artifactID uuid.NullUUID
	if d.Event != nil && d.Event.ArtifactID != uuid.Nil {
		artifactID = uuid.NullUUID{UUID: d.Event.ArtifactID, Valid: true}
	}

	query := `
		INSERT INTO dead_letters (id, topic, artifact_id, event, reason, created_at, replayed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.Topic, artifactID, payload, d.Reason, d.CreatedAt, nullTime(d.ReplayedAt))
	if err != nil {
		s.logger.Error("failed to save dead letter",
			slog.String("dead_letter_id", d.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("dead_letter", "save", "insert failed", MapError(err))
	}
	return nil
}

func scanDeadLetter(row rowScanner) (*events.DeadLetter, error) {
	var (
		d        events.DeadLetter
		payload  []byte
		replayed sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.Topic, &payload, &d.Reason, &d.CreatedAt, &replayed); err != nil {
		return nil, err
	}

	e, err := events.Unmarshal(payload)
	if err != nil {
		return nil, err
	}
	d.Event = e
	if replayed.Valid {
		t := replayed.Time
		d.ReplayedAt = &t
	}
	return &d, nil
}

// Get returns a dead letter or events.ErrDeadLetterNotFound.
func (s *PostgresDeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*events.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`

	d, err := scanDeadLetter(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, events.ErrDeadLetterNotFound
		}
		return nil, store.NewStoreError("dead_letter", "get", "query failed", MapError(err))
	}
	return d, nil
}

// List returns the newest dead letters first.
func (s *PostgresDeadLetterStore) List(ctx context.Context, limit int) ([]*events.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, store.NewStoreError("dead_letter", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []*events.DeadLetter
	for rows.Next() {
		d, err := scanDeadLetter(rows)
		if err != nil {
			return nil, store.NewStoreError("dead_letter", "list", "scan failed", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("dead_letter", "list", "rows failed", err)
	}
	return out, nil
}

// MarkReplayed stamps the replay time once. A second call returns
// events.ErrAlreadyReplayed.
func (s *PostgresDeadLetterStore) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letters SET replayed_at = $1 WHERE id = $2 AND replayed_at IS NULL`, at, id)
	if err != nil {
		return store.NewStoreError("dead_letter", "mark_replayed", "update failed", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return events.ErrAlreadyReplayed
}
