package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// ArtifactStore is a mutex-guarded store.ArtifactStore. Callers always
// receive copies, so mutating a returned artifact never changes the ledger.
type ArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*domain.Artifact
	now       func() time.Time
}

// NewArtifactStore creates an empty store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		artifacts: make(map[uuid.UUID]*domain.Artifact),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ store.ArtifactStore = (*ArtifactStore)(nil)

// SetClock replaces the time source.
func (s *ArtifactStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func clone(a *domain.Artifact) *domain.Artifact {
	c := *a
	if a.RetryCount != nil {
		n := *a.RetryCount
		c.RetryCount = &n
	}
	if a.LastFailedAt != nil {
		t := *a.LastFailedAt
		c.LastFailedAt = &t
	}
	return &c
}

// Create implements store.ArtifactStore.Create.
func (s *ArtifactStore) Create(_ context.Context, a *domain.Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[a.ID]; ok {
		return store.ErrArtifactExists
	}
	s.artifacts[a.ID] = clone(a)
	return nil
}

// Get implements store.ArtifactStore.Get.
func (s *ArtifactStore) Get(_ context.Context, id uuid.UUID) (*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, store.ErrArtifactNotFound
	}
	return clone(a), nil
}

// FindEligibleForProcessing implements store.ArtifactStore.FindEligibleForProcessing.
func (s *ArtifactStore) FindEligibleForProcessing(
	_ context.Context,
	limit, maxRetries int,
	retryAfter time.Duration,
) ([]*domain.Artifact, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-retryAfter)
	cooled := func(a *domain.Artifact) bool {
		return a.LastFailedAt == nil || a.LastFailedAt.Before(cutoff)
	}

	for _, a := range s.artifacts {
		if a.Status == domain.StatusFailed && a.RetryCount != nil && *a.RetryCount < maxRetries && cooled(a) {
			a.Status = domain.StatusPending
			a.Version++
			a.UpdatedAt = now
		}
	}

	var out []*domain.Artifact
	for _, a := range s.artifacts {
		switch {
		case a.Status == domain.StatusUploaded, a.Status == domain.StatusAnalysisPending:
		case a.Status == domain.StatusPending && a.Retries() < maxRetries && cooled(a):
		default:
			continue
		}
		out = append(out, clone(a))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus implements store.ArtifactStore.UpdateStatus.
func (s *ArtifactStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.ProcessingStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrArtifactNotFound
	}
	if a.Status != from {
		return store.ErrStatusConflict
	}

	a.Status = to
	a.Version++
	a.UpdatedAt = s.now()
	return nil
}

// UpdateFile implements store.ArtifactStore.UpdateFile.
func (s *ArtifactStore) UpdateFile(_ context.Context, in *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[in.ID]
	if !ok {
		return store.ErrArtifactNotFound
	}

	a.FileName = in.FileName
	a.ContentType = in.ContentType
	a.Extension = in.Extension
	a.SizeBytes = in.SizeBytes
	a.Location = in.Location
	a.Version++
	a.UpdatedAt = s.now()

	in.Version = a.Version
	in.UpdatedAt = a.UpdatedAt
	return nil
}

// RecordFailure implements store.ArtifactStore.RecordFailure.
func (s *ArtifactStore) RecordFailure(
	_ context.Context,
	id uuid.UUID,
	from domain.ProcessingStatus,
	reason string,
	maxRetries int,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return false, store.ErrArtifactNotFound
	}
	if a.Status != from {
		return false, store.ErrStatusConflict
	}

	now := s.now()
	n := a.Retries() + 1
	a.RetryCount = &n
	a.LastFailedAt = &now
	a.FailureReason = reason
	a.Status = domain.StatusFailed
	a.Version++
	a.UpdatedAt = now

	return n >= maxRetries, nil
}

// MarkExhausted implements store.ArtifactStore.MarkExhausted.
func (s *ArtifactStore) MarkExhausted(_ context.Context, id uuid.UUID, reason string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrArtifactNotFound
	}

	now := s.now()
	n := max(a.Retries(), maxRetries)
	a.RetryCount = &n
	a.LastFailedAt = &now
	a.FailureReason = reason
	a.Status = domain.StatusFailed
	a.Version++
	a.UpdatedAt = now
	return nil
}

// Requeue implements store.ArtifactStore.Requeue.
func (s *ArtifactStore) Requeue(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrArtifactNotFound
	}
	if a.Status != domain.StatusFailed {
		return store.ErrStatusConflict
	}

	now := s.now()
	zero := 0
	a.RetryCount = &zero
	if a.LastFailedAt == nil {
		a.LastFailedAt = &now
	}
	a.Status = domain.StatusPending
	a.Version++
	a.UpdatedAt = now
	return nil
}

// CountByStatus implements store.ArtifactStore.CountByStatus.
func (s *ArtifactStore) CountByStatus(_ context.Context) (map[domain.ProcessingStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.ProcessingStatus]int)
	for _, a := range s.artifacts {
		counts[a.Status]++
	}
	return counts, nil
}

// FindStuck implements store.ArtifactStore.FindStuck.
func (s *ArtifactStore) FindStuck(_ context.Context, olderThan time.Duration, limit int) ([]*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)

	var out []*domain.Artifact
	for _, a := range s.artifacts {
		if a.Status.IsInProgress() && a.UpdatedAt.Before(cutoff) {
			out = append(out, clone(a))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
