package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// MemoryBus is an in-process Bus backed by one buffered channel per topic.
// It keeps every published event so callers can inspect a topic. A handler
// error is logged and the event is not redelivered.
type MemoryBus struct {
	mu      sync.Mutex
	topics  map[string]chan *Event
	history map[string][]*Event
	buffer  int
	closed  bool
	logger  *slog.Logger
}

// NewMemoryBus creates a bus whose topics buffer up to buffer events.
func NewMemoryBus(buffer int, logger *slog.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBus{
		topics:  make(map[string]chan *Event),
		history: make(map[string][]*Event),
		buffer:  buffer,
		logger:  logger.With("component", "memory_event_bus"),
	}
}

func (b *MemoryBus) channel(topic string) chan *Event {
	ch, ok := b.topics[topic]
	if !ok {
		ch = make(chan *Event, b.buffer)
		b.topics[topic] = ch
	}
	return ch
}

// Publish queues a copy of e on topic, blocking while the topic is full.
func (b *MemoryBus) Publish(ctx context.Context, topic string, e *Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	ch := b.channel(topic)
	msg := e.Clone()
	b.history[topic] = append(b.history[topic], msg.Clone())
	b.mu.Unlock()

	select {
	case ch <- msg:
		b.logger.Debug("event published",
			"topic", topic,
			"event_id", e.EventID,
			"event_type", e.Type)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers events on topic to h until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	ch := b.channel(topic)
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-ch:
			if err := h.HandleEvent(ctx, e); err != nil {
				b.logger.Error("handler failed to process event",
					"topic", topic,
					"event_id", e.EventID,
					"event_type", e.Type,
					"error", err)
			}
		}
	}
}

// Messages returns every event ever published on topic.
func (b *MemoryBus) Messages(topic string) []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Event, len(b.history[topic]))
	copy(out, b.history[topic])
	return out
}

// Close stops accepting new events.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
