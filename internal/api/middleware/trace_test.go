package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/media-pipeline/internal/api/shared"
	"github.com/phrazzld/media-pipeline/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	base := slog.New(slog.NewTextHandler(io.Discard, nil))

	var traceID string
	var hasLogger bool
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		hasLogger = logger.FromContext(r.Context()) != slog.Default()
	})

	t.Run("generates an id", func(t *testing.T) {
		NewTraceMiddleware(base)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, traceID, 36)
		assert.True(t, hasLogger)
	})

	t.Run("reuses the request id", func(t *testing.T) {
		handler := chimw.RequestID(NewTraceMiddleware(base)(next))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(chimw.RequestIDHeader, "req-123")

		handler.ServeHTTP(httptest.NewRecorder(), req)
		require.NotEmpty(t, traceID)
		assert.Equal(t, "req-123", traceID)
	})
}
