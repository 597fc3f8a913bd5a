package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/retry"
)

func embeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got embeddingsRequest
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	})

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "text-embedding-3-small",
		Dimensions: 3, MaxInputChars: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "truncate me please")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
	if got.Input != "trunc" {
		t.Errorf("input should be truncated to 5 chars, got %q", got.Input)
	}
	if got.Model != "text-embedding-3-small" {
		t.Errorf("model = %q", got.Model)
	}
}

func TestOpenAIEmbedder_ErrorBody(t *testing.T) {
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Incorrect API key provided"}}`))
	})
	e, _ := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Dimensions: 3})
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, models.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	var se *models.StageError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected StageError with 401, got %v", err)
	}
	if want := "status 401: invalid_request_error: Incorrect API key provided"; se.Err.Error() != want {
		t.Errorf("cause = %q, want %q", se.Err.Error(), want)
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
	})
	e, _ := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Dimensions: 3})
	if _, err := e.Embed(context.Background(), "hello"); !errors.Is(err, models.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestOpenAIEmbedder_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[{"embedding":[1]}]}`))
	})
	e, _ := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Dimensions: 1},
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}))
	if _, err := e.Embed(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOpenAIEmbedder_SingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	e, _ := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIConfig{}); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpenAIEmbedder_EmptyText(t *testing.T) {
	e, _ := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k"})
	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
