package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/media-pipeline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockModels is a mock implementation of Models.
type MockModels struct {
	GenerateContentFn func(ctx context.Context, model string, contents []*genai.Content,
		cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContentFn func(ctx context.Context, model string, contents []*genai.Content,
		cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

	generateCalls int
	embedCalls    int
}

func (m *MockModels) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.generateCalls++
	return m.GenerateContentFn(ctx, model, contents, cfg)
}

func (m *MockModels) EmbedContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.EmbedContentConfig,
) (*genai.EmbedContentResponse, error) {
	m.embedCalls++
	return m.EmbedContentFn(ctx, model, contents, cfg)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func embedding(values ...float32) *genai.EmbedContentResponse {
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: values}},
	}
}

func testConfig() config.GeminiConfig {
	return config.GeminiConfig{
		APIKey:         "test-key",
		Model:          "gemini-test",
		EmbeddingModel: "embedding-test",
		MaxAudioBytes:  1 << 20,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func newTestAnalyzer(t *testing.T, m *MockModels) *Analyzer {
	t.Helper()
	a, err := NewAnalyzerWithModels(m, setupTestLogger(), testConfig())
	require.NoError(t, err)
	return a
}

func TestNewAnalyzer_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewAnalyzer(context.Background(), setupTestLogger(), config.GeminiConfig{Model: "m", EmbeddingModel: "e"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig()
	cfg.Model = ""
	_, err = NewAnalyzerWithModels(&MockModels{}, setupTestLogger(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewAnalyzerWithModels(nil, setupTestLogger(), testConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()

	m := &MockModels{
		GenerateContentFn: func(_ context.Context, model string, contents []*genai.Content,
			cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			assert.Equal(t, "gemini-test", model)
			require.Len(t, contents, 1)
			require.Len(t, contents[0].Parts, 2)
			require.NotNil(t, contents[0].Parts[1].InlineData)
			assert.Equal(t, "audio/wav", contents[0].Parts[1].InlineData.MIMEType)
			assert.Equal(t, "application/json", cfg.ResponseMIMEType)
			return textResponse("```json\n{\"description\": \"low, calm voice\", \"language\": \"en\"}\n```"), nil
		},
		EmbedContentFn: func(_ context.Context, model string, contents []*genai.Content,
			_ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
			assert.Equal(t, "embedding-test", model)
			assert.Equal(t, "low, calm voice", contents[0].Parts[0].Text)
			return embedding(0.1, 0.2, 0.3), nil
		},
	}

	result, err := newTestAnalyzer(t, m).Analyze(context.Background(), []byte("RIFF"), "audio/wav")
	require.NoError(t, err)

	assert.Equal(t, "low, calm voice", result.Description)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, result.Embedding)
	assert.Equal(t, "embedding-test", result.Model)
}

func TestAnalyze_EmptyAudio(t *testing.T) {
	t.Parallel()

	_, err := newTestAnalyzer(t, &MockModels{}).Analyze(context.Background(), nil, "audio/wav")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestAnalyze_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	failures := 2
	m := &MockModels{
		GenerateContentFn: func(context.Context, string, []*genai.Content,
			*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if failures > 0 {
				failures--
				return nil, errors.New("503 service unavailable")
			}
			return textResponse(`{"description": "bright voice"}`), nil
		},
		EmbedContentFn: func(context.Context, string, []*genai.Content,
			*genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
			return embedding(1), nil
		},
	}

	_, err := newTestAnalyzer(t, m).Analyze(context.Background(), []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, 3, m.generateCalls)
}

func TestAnalyze_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	m := &MockModels{
		GenerateContentFn: func(context.Context, string, []*genai.Content,
			*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("503 service unavailable")
		},
	}

	_, err := newTestAnalyzer(t, m).Analyze(context.Background(), []byte("RIFF"), "audio/wav")
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 3, m.generateCalls)
	assert.Equal(t, 0, m.embedCalls)
}

func TestAnalyze_InvalidResponsesAreNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"nil response", nil, ErrInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, ErrInvalidResponse},
		{"not json", textResponse("a calm voice"), ErrInvalidResponse},
		{"empty description", textResponse(`{"description": ""}`), ErrInvalidResponse},
		{
			"safety block",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			ErrContentBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &MockModels{
				GenerateContentFn: func(context.Context, string, []*genai.Content,
					*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					return tt.resp, nil
				},
			}

			_, err := newTestAnalyzer(t, m).Analyze(context.Background(), []byte("RIFF"), "audio/wav")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, m.generateCalls)
		})
	}
}

func TestAnalyze_EmptyEmbedding(t *testing.T) {
	t.Parallel()

	m := &MockModels{
		GenerateContentFn: func(context.Context, string, []*genai.Content,
			*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"description": "soft voice"}`), nil
		},
		EmbedContentFn: func(context.Context, string, []*genai.Content,
			*genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
			return &genai.EmbedContentResponse{}, nil
		},
	}

	_, err := newTestAnalyzer(t, m).Analyze(context.Background(), []byte("RIFF"), "audio/wav")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAnalyze_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := &MockModels{
		GenerateContentFn: func(context.Context, string, []*genai.Content,
			*genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			cancel()
			return nil, context.Canceled
		},
	}

	_, err := newTestAnalyzer(t, m).Analyze(ctx, []byte("RIFF"), "audio/wav")
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, 1, m.generateCalls)
}
