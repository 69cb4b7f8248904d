package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type names what happened.
type Type string

// Event types
const (
	TypeUploadCompleted        Type = "UPLOAD_COMPLETED"
	TypeStatusChanged          Type = "STATUS_CHANGED"
	TypeProcessingRequested    Type = "PROCESSING_REQUESTED"
	TypeVoiceAnalysisRequested Type = "VOICE_ANALYSIS_REQUESTED"
	TypeRetryProcessing        Type = "RETRY_PROCESSING"
	TypeMovedToDLQ             Type = "MOVED_TO_DLQ"
)

// Event is a message about one artifact.
type Event struct {
	// EventID is unique per logical event and survives redelivery
	EventID uuid.UUID `json:"event_id"`

	Type   Type   `json:"event_type"`
	Source string `json:"source"`

	ArtifactID    uuid.UUID `json:"artifact_id"`
	CorrelationID uuid.UUID `json:"correlation_id,omitempty"`

	Status         string `json:"status,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`

	// RetryCount only grows across redeliveries
	RetryCount     int        `json:"retry_count"`
	FirstFailureAt *time.Time `json:"first_failure_at,omitempty"`
	LastRetryAt    *time.Time `json:"last_retry_at,omitempty"`

	// Set when the event is moved to the dead-letter topic
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// New creates an event for artifactID.
func New(t Type, source string, artifactID uuid.UUID) *Event {
	return &Event{
		EventID:       uuid.New(),
		Type:          t,
		Source:        source,
		ArtifactID:    artifactID,
		CorrelationID: artifactID,
		Timestamp:     time.Now().UTC(),
	}
}

// NewStatusChanged creates a STATUS_CHANGED event.
func NewStatusChanged(source string, artifactID uuid.UUID, previous, current string) *Event {
	e := New(TypeStatusChanged, source, artifactID)
	e.PreviousStatus = previous
	e.Status = current
	return e
}

// Clone returns a copy that can be mutated without affecting e.
func (e *Event) Clone() *Event {
	c := *e
	return &c
}

// Marshal encodes the event as JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

// RetryTopic returns the topic failed events of topic are retried on.
func RetryTopic(topic string) string {
	return topic + "-retry"
}

// DLQTopic returns the dead-letter topic of topic.
func DLQTopic(topic string) string {
	return topic + "-dlq"
}

// undecodableTopic returns the dead-letter topic for a message on topic that
// could not be decoded. Retry topics share the dead-letter topic of their
// source; a dead-letter topic has none.
func undecodableTopic(topic string) (string, bool) {
	if strings.HasSuffix(topic, DLQTopic("")) {
		return "", false
	}
	return DLQTopic(strings.TrimSuffix(topic, RetryTopic(""))), true
}

// Handler processes one event. A returned error asks for redelivery.
type Handler interface {
	HandleEvent(ctx context.Context, e *Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, e *Event) error {
	return f(ctx, e)
}

// Publisher sends events with at-least-once delivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, e *Event) error
}

// Subscriber delivers the events of topic to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

// Bus is both ends of a message broker.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
