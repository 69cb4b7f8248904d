package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type published struct {
	topic string
	event *Event
}

// MockPublisher records published events; PublishFn may inject failures.
type MockPublisher struct {
	mu        sync.Mutex
	Published []published
	PublishFn func(ctx context.Context, topic string, e *Event) error
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, e *Event) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(ctx, topic, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, published{topic: topic, event: e.Clone()})
	return nil
}

func (m *MockPublisher) On(topic string) []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, p := range m.Published {
		if p.topic == topic {
			out = append(out, p.event)
		}
	}
	return out
}

// MockDeadLetterStore keeps dead letters in a map.
type MockDeadLetterStore struct {
	mu      sync.Mutex
	Letters map[uuid.UUID]*DeadLetter
	SaveFn  func(ctx context.Context, d *DeadLetter) error
}

func NewMockDeadLetterStore() *MockDeadLetterStore {
	return &MockDeadLetterStore{Letters: make(map[uuid.UUID]*DeadLetter)}
}

func (m *MockDeadLetterStore) Save(ctx context.Context, d *DeadLetter) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Letters[d.ID] = d
	return nil
}

func (m *MockDeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Letters[id]
	if !ok {
		return nil, ErrDeadLetterNotFound
	}
	return d, nil
}

func (m *MockDeadLetterStore) List(ctx context.Context, limit int) ([]*DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*DeadLetter, 0, len(m.Letters))
	for _, d := range m.Letters {
		out = append(out, d)
	}
	return out, nil
}

func (m *MockDeadLetterStore) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Letters[id]
	if !ok {
		return ErrDeadLetterNotFound
	}
	d.ReplayedAt = &at
	return nil
}

// MockArtifactFailer records ledger calls made by the dead-letter handler.
type MockArtifactFailer struct {
	MarkExhaustedFn func(ctx context.Context, id uuid.UUID, reason string, maxRetries int) error
	RequeueFn       func(ctx context.Context, id uuid.UUID) error
}

func (m *MockArtifactFailer) MarkExhausted(ctx context.Context, id uuid.UUID, reason string, maxRetries int) error {
	if m.MarkExhaustedFn != nil {
		return m.MarkExhaustedFn(ctx, id, reason, maxRetries)
	}
	return nil
}

func (m *MockArtifactFailer) Requeue(ctx context.Context, id uuid.UUID) error {
	if m.RequeueFn != nil {
		return m.RequeueFn(ctx, id)
	}
	return nil
}
