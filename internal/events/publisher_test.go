package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRetryingPublisher_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := &MockPublisher{PublishFn: func(ctx context.Context, topic string, e *Event) error {
		calls++
		if calls < 3 {
			return errors.New("leader not available")
		}
		return nil
	}}

	p := NewRetryingPublisher(inner, 5, time.Millisecond, 5*time.Millisecond, setupTestLogger())
	err := p.Publish(context.Background(), "uploads", New(TypeStatusChanged, "test", uuid.New()))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, inner.On("uploads"), 1)
}

func TestRetryingPublisher_GivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := &MockPublisher{PublishFn: func(ctx context.Context, topic string, e *Event) error {
		calls++
		return errors.New("broker down")
	}}

	p := NewRetryingPublisher(inner, 2, time.Millisecond, 0, setupTestLogger())
	err := p.Publish(context.Background(), "uploads", New(TypeStatusChanged, "test", uuid.New()))

	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 3, calls)
}

func TestLoggingPublisher(t *testing.T) {
	t.Parallel()

	p := NewLoggingPublisher(setupTestLogger())
	assert.NoError(t, p.Publish(context.Background(), "uploads", New(TypeStatusChanged, "test", uuid.New())))
}
