package vector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/models"
)

// pineconeAPIVersion pins the data-plane API.
const pineconeAPIVersion = "2024-07"

// upsertBatch is the most vectors sent in one upsert request.
const upsertBatch = 100

// PineconeStore talks to a Pinecone index data plane.
type PineconeStore struct {
	rest      *restClient
	namespace string
}

// NewPineconeStore returns a store for the index at host ("my-index-abc123.svc.us-east1-gcp.pinecone.io",
// with or without scheme).
func NewPineconeStore(host, apiKey, namespace string, timeout time.Duration, opts ...Option) (*PineconeStore, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: pinecone api key is required", models.ErrConfiguration)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: pinecone index host is required", models.ErrConfiguration)
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	headers := map[string]string{
		"Api-Key":                apiKey,
		"X-Pinecone-API-Version": pineconeAPIVersion,
	}
	return &PineconeStore{rest: newRESTClient(host, headers, timeout, opts), namespace: namespace}, nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
	Namespace       string    `json:"namespace,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type pineconeStatsResponse struct {
	TotalVectorCount int `json:"totalVectorCount"`
	Namespaces       map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

// Upsert writes records in batches. Failures wrap models.ErrUpsert.
func (s *PineconeStore) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	for start := 0; start < len(records); start += upsertBatch {
		end := start + upsertBatch
		if end > len(records) {
			end = len(records)
		}
		req := pineconeUpsertRequest{Namespace: s.namespace}
		for _, r := range records[start:end] {
			req.Vectors = append(req.Vectors, pineconeVector{ID: r.ID, Values: r.Values, Metadata: metadataMap(r.Metadata)})
		}
		if err := s.rest.do(ctx, models.ErrUpsert, "pinecone upsert", http.MethodPost, "/vectors/upsert", req, nil); err != nil {
			return err
		}
	}
	return nil
}

// Query returns the k nearest records with metadata. Failures wrap models.ErrSearch.
func (s *PineconeStore) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	var resp pineconeQueryResponse
	req := pineconeQueryRequest{Vector: vector, TopK: k, IncludeMetadata: true, Namespace: s.namespace}
	if err := s.rest.do(ctx, models.ErrSearch, "pinecone query", http.MethodPost, "/query", req, &resp); err != nil {
		return nil, err
	}
	matches := make([]models.RetrievalMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, models.RetrievalMatch{ID: m.ID, Score: m.Score, Metadata: metadataFrom(m.Metadata)})
	}
	sortMatches(matches)
	return matches, nil
}

// Size returns the vector count of the namespace, or of the whole index when no namespace is set.
func (s *PineconeStore) Size(ctx context.Context) (int, error) {
	var resp pineconeStatsResponse
	if err := s.rest.do(ctx, models.ErrSearch, "pinecone stats", http.MethodPost, "/describe_index_stats", map[string]any{}, &resp); err != nil {
		return 0, err
	}
	if s.namespace != "" {
		return resp.Namespaces[s.namespace].VectorCount, nil
	}
	return resp.TotalVectorCount, nil
}

// Close is a no-op.
func (s *PineconeStore) Close() error {
	return nil
}
