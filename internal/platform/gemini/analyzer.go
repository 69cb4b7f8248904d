package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/media-pipeline/internal/config"
	"github.com/phrazzld/media-pipeline/internal/job"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

const defaultRetryDelay = 2 * time.Second

// Models is the part of the genai client the analyzer uses. *genai.Models
// satisfies it.
type Models interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)

	EmbedContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.EmbedContentConfig,
	) (*genai.EmbedContentResponse, error)
}

// Analyzer describes recordings with a Gemini model and embeds the
// description with a Gemini embedding model.
type Analyzer struct {
	models         Models
	model          string
	embeddingModel string
	maxRetries     uint64
	retryDelay     time.Duration
	logger         *slog.Logger
}

var _ job.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer backed by the Gemini API.
func NewAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.GeminiConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return NewAnalyzerWithModels(client.Models, logger, cfg)
}

// NewAnalyzerWithModels creates an analyzer on top of an existing client.
func NewAnalyzerWithModels(models Models, logger *slog.Logger, cfg config.GeminiConfig) (*Analyzer, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: models cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Model == "" || cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: model names cannot be empty", ErrInvalidConfig)
	}

	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &Analyzer{
		models:         models,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     delay,
		logger:         logger.With("component", "gemini_analyzer"),
	}, nil
}

// Analyze describes the voice in audio and embeds the description.
func (a *Analyzer) Analyze(ctx context.Context, audio []byte, mimeType string) (*job.Analysis, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	described, err := a.describe(ctx, audio, mimeType)
	if err != nil {
		return nil, err
	}

	embedding, err := a.embed(ctx, described.Description)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "voice analysed",
		"audio_bytes", len(audio),
		"language", described.Language,
		"description_length", len(described.Description),
		"dimensions", len(embedding))

	return &job.Analysis{
		Description: described.Description,
		Embedding:   embedding,
		Model:       a.embeddingModel,
	}, nil
}

func (a *Analyzer) describe(ctx context.Context, audio []byte, mimeType string) (*responseSchema, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: analysisPrompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
		},
	}}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	var resp *genai.GenerateContentResponse
	err := a.withRetry(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = a.models.GenerateContent(ctx, a.model, contents, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	return parseDescription(resp)
}

func (a *Analyzer) embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}

	var resp *genai.EmbedContentResponse
	err := a.withRetry(ctx, "embed", func(ctx context.Context) error {
		var err error
		resp, err = a.models.EmbedContent(ctx, a.embeddingModel, contents, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrInvalidResponse)
	}
	return resp.Embeddings[0].Values, nil
}

// withRetry retries call errors with exponential backoff. Call errors are
// treated as transient; errors from the context are not retried.
func (a *Analyzer) withRetry(ctx context.Context, op string, call func(context.Context) error) error {
	b := retry.NewExponential(a.retryDelay)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(a.maxRetries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.WarnContext(ctx, "gemini call failed",
			"operation", op,
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrTransientFailure, op, attempt, err)
}

func parseDescription(resp *genai.GenerateContentResponse) (*responseSchema, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	raw := strings.TrimSpace(text.String())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var out responseSchema
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(out.Description) == "" {
		return nil, fmt.Errorf("%w: empty description", ErrInvalidResponse)
	}
	return &out, nil
}
