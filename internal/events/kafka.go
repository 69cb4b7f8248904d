package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

// KafkaBus publishes and consumes events on Kafka. Offsets are committed
// only after the handler returned nil.
type KafkaBus struct {
	brokers []string
	groupID string
	writer  *kafka.Writer
	logger  *slog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaBus creates a bus for brokers; consumers join groupID.
func NewKafkaBus(brokers []string, groupID string, logger *slog.Logger) (*KafkaBus, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka bus requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka bus requires group id")
	}
	return &KafkaBus{
		brokers: brokers,
		groupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		logger: logger.With("component", "kafka_event_bus"),
	}, nil
}

// Publish writes e to topic keyed by artifact so one artifact's events
// stay ordered on a partition.
func (b *KafkaBus) Publish(ctx context.Context, topic string, e *Event) error {
	msg, err := toKafkaMessage(topic, e)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, msg)
}

// Subscribe reads topic until ctx is done. A handler error retries the same
// message with backoff and leaves its offset uncommitted.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  b.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	log := b.logger.With("topic", topic)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch on %s: %w", topic, err)
		}

		e, err := Unmarshal(msg.Value)
		if err != nil {
			if err := b.deadLetterRaw(ctx, topic, msg, err, log); err != nil {
				return err
			}
		} else if err := b.handle(ctx, h, e, log); err != nil {
			return err
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit on %s: %w", topic, err)
		}
	}
}

func (b *KafkaBus) handle(ctx context.Context, h Handler, e *Event, log *slog.Logger) error {
	backoff := retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h.HandleEvent(ctx, e); err != nil {
			log.Warn("handler failed, redelivering",
				"event_id", e.EventID,
				"event_type", e.Type,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// deadLetterRaw moves a message that is not an event to the dead-letter
// topic unchanged, with the decode error in a header. Messages already on a
// dead-letter topic are only logged.
func (b *KafkaBus) deadLetterRaw(ctx context.Context, topic string, msg kafka.Message, cause error, log *slog.Logger) error {
	dlq, ok := undecodableMessage(topic, msg, cause)
	if !ok {
		log.Error("dropping undecodable dead letter",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", cause)
		return nil
	}

	backoff := retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := b.writer.WriteMessages(ctx, dlq); err != nil {
			log.Warn("failed to dead-letter undecodable message", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Error("undecodable message moved to dead-letter topic",
		"dlq_topic", dlq.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", cause)
	return nil
}

// undecodableMessage builds the dead-letter copy of msg read from topic.
func undecodableMessage(topic string, msg kafka.Message, cause error) (kafka.Message, bool) {
	dlq, ok := undecodableTopic(topic)
	if !ok {
		return kafka.Message{}, false
	}

	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "failure_reason", Value: []byte("undecodable event: " + cause.Error())},
		kafka.Header{Key: "source_topic", Value: []byte(topic)},
	)
	return kafka.Message{
		Topic:   dlq,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now().UTC(),
		Headers: headers,
	}, true
}

// Close flushes the writer and closes every reader.
func (b *KafkaBus) Close() error {
	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func toKafkaMessage(topic string, e *Event) (kafka.Message, error) {
	payload, err := e.Marshal()
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(e.ArtifactID.String()),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.EventID.String())},
		},
	}, nil
}
