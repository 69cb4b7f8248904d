package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus(8, setupTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *Event, 1)
	go func() {
		_ = bus.Subscribe(ctx, "topic", HandlerFunc(func(ctx context.Context, e *Event) error {
			received <- e
			return nil
		}))
	}()

	e := New(TypeUploadCompleted, "test", uuid.New())
	require.NoError(t, bus.Publish(ctx, "topic", e))

	select {
	case got := <-received:
		assert.Equal(t, e.EventID, got.EventID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	assert.Len(t, bus.Messages("topic"), 1)
	assert.Empty(t, bus.Messages("other"))
}

func TestMemoryBus_HandlerErrorKeepsConsuming(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus(8, setupTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 2)
	go func() {
		_ = bus.Subscribe(ctx, "topic", HandlerFunc(func(ctx context.Context, e *Event) error {
			calls <- struct{}{}
			return errors.New("boom")
		}))
	}()

	require.NoError(t, bus.Publish(ctx, "topic", New(TypeUploadCompleted, "test", uuid.New())))
	require.NoError(t, bus.Publish(ctx, "topic", New(TypeUploadCompleted, "test", uuid.New())))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("subscriber stopped after handler error")
		}
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus(1, setupTestLogger())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "topic", New(TypeUploadCompleted, "test", uuid.New()))
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryBus_PublishBlocksUntilContextDone(t *testing.T) {
	t.Parallel()

	bus := NewMemoryBus(1, setupTestLogger())
	require.NoError(t, bus.Publish(context.Background(), "topic", New(TypeUploadCompleted, "test", uuid.New())))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := bus.Publish(ctx, "topic", New(TypeUploadCompleted, "test", uuid.New()))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
