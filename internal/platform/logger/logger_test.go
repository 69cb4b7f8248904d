package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/phrazzld/media-pipeline/internal/config"
	"github.com/phrazzld/media-pipeline/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreDefault puts back the slog default replaced by logger.New.
func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNew_LevelsAndMetadata(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	l, err := logger.New(&buf, config.ServerConfig{LogLevel: "warn", InstanceID: "node-1"})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("dropped")
	l.Warn("kept", "artifact_id", "abc")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "abc", lines[0]["artifact_id"])
	assert.Equal(t, logger.ServiceName, lines[0]["service"])
	assert.Equal(t, "node-1", lines[0]["instance"])

	// New installs the logger as the package default
	assert.Same(t, l, slog.Default())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	restoreDefault(t)

	var buf bytes.Buffer
	l, err := logger.New(&buf, config.ServerConfig{LogLevel: "chatty", InstanceID: "x"})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := logger.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestMetadataHandler_WithAttrsKeepsMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := logger.NewMetadataHandler(&buf, nil, map[string]string{"service": "svc", "empty": ""})
	l := slog.New(h).With("component", "dispatcher")

	l.Info("tick")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "svc", lines[0]["service"])
	assert.Equal(t, "dispatcher", lines[0]["component"])
	assert.NotContains(t, lines[0], "empty")
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	scoped := slog.New(slog.NewJSONHandler(&buf, nil))
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := logger.WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, logger.FromContext(ctx))
	assert.Same(t, scoped, logger.FromContextOrDefault(ctx, fallback))

	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.NotNil(t, logger.FromContext(context.Background()))
}
