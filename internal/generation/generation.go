// Package generation produces answers with an OpenAI-compatible chat-completions API.
package generation

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

// Generator turns a system instruction and a user message into text.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the chat client.
type Config struct {
	// APIKey is required.
	APIKey string
	// BaseURL can point at any OpenAI-compatible API.
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls POST {BaseURL}/chat/completions.
type Client struct {
	cfg    Config
	client *http.Client
	policy retry.Policy
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy sets the retry policy for completion calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets a logger for token usage.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a chat client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: chat api key is required", models.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: retry.Once,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate sends a system and a user message and returns the first choice. Failures wrap models.ErrGeneration.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("marshal request: %w", err))
	}
	var out string
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.complete(ctx, body)
		return err
	}, nil)
	return out, err
}

func (c *Client) complete(ctx context.Context, body []byte) (string, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("read response: %w", err))
	}

	var chat chatResponse
	decodeErr := json.Unmarshal(data, &chat)
	if resp.StatusCode != http.StatusOK {
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(utils.Truncate(string(data), 300)))
		if decodeErr == nil && chat.Error != nil {
			cause = fmt.Errorf("status %d: %s: %s", resp.StatusCode, chat.Error.Type, chat.Error.Message)
		}
		return "", &models.StageError{Kind: models.ErrGeneration, Op: "generate", StatusCode: resp.StatusCode, Err: cause}
	}
	if decodeErr != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("decode response: %w", decodeErr))
	}
	if chat.Error != nil {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("%s: %s", chat.Error.Type, chat.Error.Message))
	}
	if len(chat.Choices) == 0 {
		return "", models.NewStageError(models.ErrGeneration, "generate", fmt.Errorf("no choices in response"))
	}
	if c.logger != nil {
		c.logger.Debug("chat completion",
			zap.Int("prompt_tokens", chat.Usage.PromptTokens),
			zap.Int("completion_tokens", chat.Usage.CompletionTokens),
			zap.String("finish_reason", chat.Choices[0].FinishReason))
	}
	return chat.Choices[0].Message.Content, nil
}

// Unavailable is a Generator that always fails with a configuration error. It lets the server start
// and report the problem per request when no chat credentials are configured.
type Unavailable struct {
	Reason string
}

// Generate returns the configuration error.
func (u Unavailable) Generate(context.Context, string, string) (string, error) {
	if u.Reason != "" {
		return "", fmt.Errorf("%w: %s", models.ErrConfiguration, u.Reason)
	}
	return "", fmt.Errorf("%w: no chat model configured", models.ErrConfiguration)
}
