package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetTraceID(context.Background()))

	ctx := SetTraceID(context.Background())
	first := GetTraceID(ctx)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, GetTraceID(SetTraceID(context.Background())))

	assert.Equal(t, "abc", GetTraceID(WithTraceID(context.Background(), "abc")))
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Size int `json:"size" validate:"gte=1"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"size": 3}`, false},
		{"unknown field", `{"size": 3, "x": 1}`, true},
		{"trailing data", `{"size": 3}{"size": 4}`, true},
		{"malformed", `{"size":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, p.Size)
			assert.NoError(t, ValidateRequest(&p))
		})
	}
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r = r.WithContext(WithTraceID(r.Context(), "trace-1"))
	rec := httptest.NewRecorder()

	RespondWithErrorAndLog(rec, r, http.StatusInternalServerError, "Something failed",
		errors.New("password=hunter2 rejected"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotContains(t, rec.Body.String(), "hunter2")

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Something failed", resp.Error)
	assert.Equal(t, "trace-1", resp.TraceID)
}

func TestRespondWithAck(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondWithAck(rec, httptest.NewRequest(http.MethodPost, "/", nil), http.StatusAccepted, "queued")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"success": true, "message": "queued"}`, rec.Body.String())
}
