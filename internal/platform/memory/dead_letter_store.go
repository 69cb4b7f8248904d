package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/media-pipeline/internal/events"
)

// DeadLetterStore keeps dead letters in a map.
type DeadLetterStore struct {
	mu      sync.Mutex
	letters map[uuid.UUID]*events.DeadLetter
}

// NewDeadLetterStore creates an empty dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{letters: make(map[uuid.UUID]*events.DeadLetter)}
}

var _ events.DeadLetterStore = (*DeadLetterStore)(nil)

func cloneLetter(d *events.DeadLetter) *events.DeadLetter {
	c := *d
	if d.Event != nil {
		c.Event = d.Event.Clone()
	}
	if d.ReplayedAt != nil {
		t := *d.ReplayedAt
		c.ReplayedAt = &t
	}
	return &c
}

// Save implements events.DeadLetterStore.
func (s *DeadLetterStore) Save(_ context.Context, d *events.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[d.ID] = cloneLetter(d)
	return nil
}

// Get implements events.DeadLetterStore.
func (s *DeadLetterStore) Get(_ context.Context, id uuid.UUID) (*events.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.letters[id]
	if !ok {
		return nil, events.ErrDeadLetterNotFound
	}
	return cloneLetter(d), nil
}

// List implements events.DeadLetterStore. Newest first.
func (s *DeadLetterStore) List(_ context.Context, limit int) ([]*events.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*events.DeadLetter, 0, len(s.letters))
	for _, d := range s.letters {
		out = append(out, cloneLetter(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkReplayed implements events.DeadLetterStore.
func (s *DeadLetterStore) MarkReplayed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.letters[id]
	if !ok {
		return events.ErrDeadLetterNotFound
	}
	if d.ReplayedAt != nil {
		return events.ErrAlreadyReplayed
	}
	d.ReplayedAt = &at
	return nil
}
