package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements a reliable queue per topic on Redis lists. A consumer
// moves each message to a processing list and removes it only after the
// handler succeeded; a failed message is pushed back for redelivery.
type RedisBus struct {
	client *redis.Client
	prefix string
	block  time.Duration
	logger *slog.Logger
}

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisBus creates a bus storing topics under prefix.
func NewRedisBus(client *redis.Client, prefix string, logger *slog.Logger) *RedisBus {
	if prefix == "" {
		prefix = "media:events"
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		block:  2 * time.Second,
		logger: logger.With("component", "redis_event_bus"),
	}
}

func (b *RedisBus) queueKey(topic string) string {
	return b.prefix + ":" + topic
}

func (b *RedisBus) processingKey(topic string) string {
	return b.prefix + ":" + topic + ":processing"
}

// Publish pushes e onto the topic list.
func (b *RedisBus) Publish(ctx context.Context, topic string, e *Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.LPush(ctx, b.queueKey(topic), payload).Err()
}

// Subscribe consumes topic until ctx is done. Messages left in the
// processing list by a previous consumer are requeued first.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	queue, processing := b.queueKey(topic), b.processingKey(topic)
	log := b.logger.With("topic", topic)

	if err := b.recover(ctx, queue, processing); err != nil {
		return err
	}

	for {
		payload, err := b.client.BLMove(ctx, queue, processing, "RIGHT", "LEFT", b.block).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("redis move on %s: %w", topic, err)
		}

		e, decodeErr := Unmarshal([]byte(payload))
		if decodeErr != nil {
			if err := b.parkUndecodable(ctx, topic, payload, decodeErr, log); err != nil {
				return err
			}
		} else if handleErr := h.HandleEvent(ctx, e); handleErr != nil {
			log.Warn("handler failed, redelivering",
				"event_id", e.EventID,
				"event_type", e.Type,
				"error", handleErr)
			if err := b.client.RPush(ctx, queue, payload).Err(); err != nil {
				return fmt.Errorf("redis requeue on %s: %w", topic, err)
			}
		}

		if err := b.client.LRem(ctx, processing, 1, payload).Err(); err != nil {
			return fmt.Errorf("redis ack on %s: %w", topic, err)
		}
	}
}

// parkUndecodable keeps a payload that is not an event on the undecodable
// list of the topic's dead-letter topic for inspection.
func (b *RedisBus) parkUndecodable(ctx context.Context, topic, payload string, cause error, log *slog.Logger) error {
	dlq, ok := undecodableTopic(topic)
	if !ok {
		log.Error("dropping undecodable dead letter", "error", cause)
		return nil
	}

	key := b.undecodableKey(dlq)
	if err := b.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redis park undecodable on %s: %w", topic, err)
	}
	log.Error("undecodable message parked", "key", key, "error", cause)
	return nil
}

func (b *RedisBus) undecodableKey(dlq string) string {
	return b.queueKey(dlq) + ":undecodable"
}

func (b *RedisBus) recover(ctx context.Context, queue, processing string) error {
	for {
		_, err := b.client.LMove(ctx, processing, queue, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis recover %s: %w", processing, err)
		}
	}
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
