package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deadEvent() *Event {
	e := New(TypeProcessingRequested, "test", uuid.New())
	e.RetryCount = 3
	e.FailureReason = "boom (retry 3 failed)"
	return e
}

func TestDeadLetterHandler_RecordsAndFailsArtifact(t *testing.T) {
	t.Parallel()

	store := NewMockDeadLetterStore()
	var gotReason string
	var gotMax int
	failer := &MockArtifactFailer{
		MarkExhaustedFn: func(ctx context.Context, id uuid.UUID, reason string, maxRetries int) error {
			gotReason, gotMax = reason, maxRetries
			return nil
		},
	}
	h := NewDeadLetterHandler("uploads", store, failer, &MockPublisher{}, 3, setupTestLogger())
	assert.Equal(t, "uploads-dlq", h.Topic())

	e := deadEvent()
	require.NoError(t, h.HandleEvent(context.Background(), e))

	require.Len(t, store.Letters, 1)
	for _, d := range store.Letters {
		assert.Equal(t, "uploads", d.Topic)
		assert.Equal(t, e.EventID, d.Event.EventID)
		assert.Equal(t, "boom (retry 3 failed)", d.Reason)
	}
	assert.Equal(t, "DLQ: boom (retry 3 failed)", gotReason)
	assert.Equal(t, 3, gotMax)
	assert.Equal(t, DLQStats{Processed: 1}, h.Stats())
}

func TestDeadLetterHandler_CountsFailures(t *testing.T) {
	t.Parallel()

	store := NewMockDeadLetterStore()
	store.SaveFn = func(ctx context.Context, d *DeadLetter) error { return errors.New("db down") }
	h := NewDeadLetterHandler("uploads", store, &MockArtifactFailer{}, &MockPublisher{}, 3, setupTestLogger())

	assert.Error(t, h.HandleEvent(context.Background(), deadEvent()))
	assert.Equal(t, DLQStats{Failed: 1}, h.Stats())
}

func TestDeadLetterHandler_Replay(t *testing.T) {
	t.Parallel()

	store := NewMockDeadLetterStore()
	var requeued uuid.UUID
	failer := &MockArtifactFailer{RequeueFn: func(ctx context.Context, id uuid.UUID) error {
		requeued = id
		return nil
	}}
	pub := &MockPublisher{}
	h := NewDeadLetterHandler("uploads", store, failer, pub, 3, setupTestLogger())

	e := deadEvent()
	require.NoError(t, h.HandleEvent(context.Background(), e))

	var id uuid.UUID
	for k := range store.Letters {
		id = k
	}

	replayed, err := h.Replay(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, e.ArtifactID, requeued)
	assert.Zero(t, replayed.RetryCount)
	assert.Empty(t, replayed.FailureReason)
	assert.Nil(t, replayed.DeadLetteredAt)

	main := pub.On("uploads")
	require.Len(t, main, 1)
	assert.Equal(t, e.EventID, main[0].EventID)
	assert.Zero(t, main[0].RetryCount)

	_, err = h.Replay(context.Background(), id)
	assert.ErrorIs(t, err, ErrAlreadyReplayed)

	_, err = h.Replay(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDeadLetterNotFound)
}
