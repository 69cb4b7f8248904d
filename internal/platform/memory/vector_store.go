package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// VectorStore keeps voice vectors in a map.
type VectorStore struct {
	mu      sync.RWMutex
	vectors map[uuid.UUID]job.Analysis
}

// NewVectorStore creates an empty vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{vectors: make(map[uuid.UUID]job.Analysis)}
}

var _ job.VectorStore = (*VectorStore)(nil)

// SaveVector implements job.VectorStore.
func (s *VectorStore) SaveVector(_ context.Context, artifactID uuid.UUID, a *job.Analysis) error {
	if a == nil || len(a.Embedding) == 0 {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, job.ErrEmptyAnalysis)
	}

	c := *a
	c.Embedding = append([]float32(nil), a.Embedding...)

	s.mu.Lock()
	s.vectors[artifactID] = c
	s.mu.Unlock()
	return nil
}

// HasVector implements job.VectorStore.
func (s *VectorStore) HasVector(_ context.Context, artifactID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[artifactID]
	return ok, nil
}

// GetVector returns the stored analysis, or store.ErrVectorNotFound.
func (s *VectorStore) GetVector(_ context.Context, artifactID uuid.UUID) (*job.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.vectors[artifactID]
	if !ok {
		return nil, store.ErrVectorNotFound
	}
	a.Embedding = append([]float32(nil), a.Embedding...)
	return &a, nil
}

// Len returns the number of stored vectors.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
