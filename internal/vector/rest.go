package vector

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

// Option configures a remote store.
type Option func(*restClient)

// WithRetryPolicy sets the retry policy for store requests.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *restClient) { c.policy = p }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *restClient) { c.client = hc }
}

// WithLogger sets a logger for request debugging.
func WithLogger(l *zap.Logger) Option {
	return func(c *restClient) { c.logger = l }
}

// restClient is the JSON-over-HTTP plumbing shared by the remote stores.
type restClient struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

func newRESTClient(baseURL string, headers map[string]string, timeout time.Duration, opts []Option) *restClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		policy:  retry.Once,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends body as JSON and decodes the response into out (when non-nil). Failures are *models.StageError of kind.
func (c *restClient) do(ctx context.Context, kind error, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return models.NewStageError(kind, op, err)
		}
		payload = data
	}
	return c.policy.Do(ctx, func(ctx context.Context) error {
		return c.doOnce(ctx, kind, op, method, path, payload, out)
	}, nil)
}

func (c *restClient) doOnce(ctx context.Context, kind error, op, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return models.NewStageError(kind, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return models.NewStageError(kind, op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewStageError(kind, op, err)
	}
	if c.logger != nil {
		c.logger.Debug("vector store request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(utils.Truncate(string(data), 300))
		return &models.StageError{
			Kind:       kind,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return models.NewStageError(kind, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// metadataFrom reads record metadata out of a loosely typed payload.
func metadataFrom(m map[string]any) models.RecordMetadata {
	md := models.RecordMetadata{
		Text:   payloadString(m, "text"),
		Source: payloadString(m, "source"),
		URL:    payloadString(m, "url"),
	}
	switch v := m["chunk_index"].(type) {
	case float64:
		md.ChunkIndex = int(v)
	case int:
		md.ChunkIndex = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			md.ChunkIndex = int(n)
		}
	}
	return md
}

func payloadString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func metadataMap(md models.RecordMetadata) map[string]any {
	m := map[string]any{
		"text":        md.Text,
		"source":      md.Source,
		"chunk_index": md.ChunkIndex,
	}
	if md.URL != "" {
		m["url"] = md.URL
	}
	return m
}
