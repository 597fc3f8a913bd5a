package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/retry"
	"github.com/hyperjump/tanya/pkg/utils"
	"go.uber.org/zap"
)

// OpenAIConfig configures an OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Dimensions    int
	MaxInputChars int
	Timeout       time.Duration
}

// OpenAIEmbedder calls POST {BaseURL}/embeddings.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
	policy retry.Policy
	logger *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithRetryPolicy sets the retry policy for embedding calls.
func WithRetryPolicy(p retry.Policy) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.policy = p }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client = c }
}

// WithLogger sets a logger for request debugging.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder returns a client for an OpenAI-compatible embeddings endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api key is required", models.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	e := &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: retry.Once,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the embedding of text, truncated to MaxInputChars. Failures wrap models.ErrEmbedding.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: empty text: %w", models.ErrInvalidInput)
	}
	body, err := json.Marshal(embeddingsRequest{
		Model: e.cfg.Model,
		Input: utils.Clip(text, e.cfg.MaxInputChars),
	})
	if err != nil {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", err)
	}

	var vec []float32
	err = e.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = e.do(ctx, body)
		return err
	}, nil)
	if err != nil {
		return nil, err
	}
	if e.cfg.Dimensions > 0 && len(vec) != e.cfg.Dimensions {
		return nil, models.NewStageError(models.ErrEmbedding, "embed",
			fmt.Errorf("expected %d dimensions, got %d", e.cfg.Dimensions, len(vec)))
	}
	return vec, nil
}

func (e *OpenAIEmbedder) do(ctx context.Context, body []byte) ([]float32, error) {
	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", err)
	}
	if e.logger != nil {
		e.logger.Debug("embedding request",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &models.StageError{
			Kind:       models.ErrEmbedding,
			Op:         "embed",
			StatusCode: resp.StatusCode,
			Err:        apiError(resp.StatusCode, respBody),
		}
	}

	var out embeddingsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, models.NewStageError(models.ErrEmbedding, "embed", fmt.Errorf("response has no embedding"))
	}
	return out.Data[0].Embedding, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// apiError renders an OpenAI-style {"error":{"type","message"}} body, falling back to the raw body.
func apiError(status int, body []byte) error {
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.Type != "" {
			return fmt.Errorf("status %d: %s: %s", status, parsed.Error.Type, parsed.Error.Message)
		}
		return fmt.Errorf("status %d: %s", status, parsed.Error.Message)
	}
	raw := strings.TrimSpace(utils.Truncate(string(body), 200))
	if raw == "" {
		return fmt.Errorf("status %d", status)
	}
	return fmt.Errorf("status %d: %s", status, raw)
}
