package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToKafkaMessage(t *testing.T) {
	t.Parallel()

	e := NewStatusChanged("dispatcher", uuid.New(), "UPLOADED", "CONVERTING")
	msg, err := toKafkaMessage("uploads", e)
	require.NoError(t, err)

	assert.Equal(t, "uploads", msg.Topic)
	assert.Equal(t, e.ArtifactID.String(), string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "STATUS_CHANGED", string(msg.Headers[0].Value))

	decoded, err := Unmarshal(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, decoded.EventID)
}

func TestUndecodableMessage(t *testing.T) {
	t.Parallel()

	raw := kafka.Message{
		Topic:     "media.processing-retry",
		Key:       []byte("artifact"),
		Value:     []byte("{not json"),
		Partition: 2,
		Offset:    41,
	}
	_, cause := Unmarshal(raw.Value)
	require.Error(t, cause)

	msg, ok := undecodableMessage("media.processing-retry", raw, cause)
	require.True(t, ok)
	assert.Equal(t, "media.processing-dlq", msg.Topic)
	assert.Equal(t, raw.Value, msg.Value)
	assert.Equal(t, raw.Key, msg.Key)

	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Contains(t, headers["failure_reason"], "undecodable event")
	assert.Equal(t, "media.processing-retry", headers["source_topic"])

	msg, ok = undecodableMessage("media.processing", raw, cause)
	require.True(t, ok)
	assert.Equal(t, "media.processing-dlq", msg.Topic)

	_, ok = undecodableMessage("media.processing-dlq", raw, cause)
	assert.False(t, ok, "dead letters are not dead-lettered again")
}

func TestNewKafkaBus_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaBus(nil, "group", setupTestLogger())
	assert.Error(t, err)

	_, err = NewKafkaBus([]string{"localhost:9092"}, "", setupTestLogger())
	assert.Error(t, err)

	bus, err := NewKafkaBus([]string{"localhost:9092"}, "group", setupTestLogger())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())
}
