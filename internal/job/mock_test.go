package job

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/pool"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubJob is a configurable Job for registry tests.
type stubJob struct {
	Defaults
	name     string
	priority int
	accept   func(a *domain.Artifact) bool
}

func (s *stubJob) Name() string { return s.name }
func (s *stubJob) CanProcess(a *domain.Artifact) bool { return s.accept(a) }
func (s *stubJob) Process(context.Context, *domain.Artifact) error { return nil }
func (s *stubJob) InProgressStatus() domain.ProcessingStatus { return domain.StatusProcessing }
func (s *stubJob) CompletedStatus() domain.ProcessingStatus { return domain.StatusCompleted }
func (s *stubJob) Priority() int { return s.priority }
func (s *stubJob) Pool() pool.Kind { return pool.Batch }

func always(*domain.Artifact) bool { return true }

// MockConverter copies the source file or fails with ConvertErr.
type MockConverter struct {
	ConvertErr error
	Calls      int
}

func (m *MockConverter) Convert(ctx context.Context, src, dst string) error {
	m.Calls++
	if m.ConvertErr != nil {
		return m.ConvertErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("RIFF"), data...), 0o600)
}

// MockFileUpdater records UpdateFile calls.
type MockFileUpdater struct {
	mu           sync.Mutex
	Updated      []domain.Artifact
	UpdateFileFn func(ctx context.Context, a *domain.Artifact) error
}

func (m *MockFileUpdater) UpdateFile(ctx context.Context, a *domain.Artifact) error {
	if m.UpdateFileFn != nil {
		return m.UpdateFileFn(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updated = append(m.Updated, *a)
	return nil
}

// MockAnalyzer returns Result or Err.
type MockAnalyzer struct {
	Result *Analysis
	Err    error
	Calls  int
}

func (m *MockAnalyzer) Analyze(ctx context.Context, audio []byte, mimeType string) (*Analysis, error) {
	m.Calls++
	return m.Result, m.Err
}

// MockVectorStore keeps vectors in a map.
type MockVectorStore struct {
	mu      sync.Mutex
	Vectors map[uuid.UUID]*Analysis
}

func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{Vectors: make(map[uuid.UUID]*Analysis)}
}

func (m *MockVectorStore) SaveVector(ctx context.Context, id uuid.UUID, a *Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Vectors[id] = a
	return nil
}

func (m *MockVectorStore) HasVector(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Vectors[id]
	return ok, nil
}

func newArtifact(fileName, dir string, status domain.ProcessingStatus) *domain.Artifact {
	now := time.Now().UTC()
	return &domain.Artifact{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		FileName:  fileName,
		Extension: domain.ExtensionOf(fileName),
		Directory: dir,
		Location:  dir + fileName,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
