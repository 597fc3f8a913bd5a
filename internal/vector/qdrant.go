package vector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hyperjump/tanya/internal/fileid"
	"github.com/hyperjump/tanya/internal/models"
)

// QdrantStore keeps records in a Qdrant collection. Point ids are UUIDs derived from record ids;
// the record id itself travels in the payload.
type QdrantStore struct {
	rest       *restClient
	collection string
	dimensions int

	mu      sync.Mutex
	ensured bool
}

// NewQdrantStore returns a store for collection at baseURL. The collection is created on first upsert
// with cosine distance and the given dimensions.
func NewQdrantStore(baseURL, apiKey, collection string, dimensions int, timeout time.Duration, opts ...Option) (*QdrantStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", models.ErrConfiguration)
	}
	if collection == "" {
		collection = "tanya"
	}
	headers := map[string]string{}
	if apiKey != "" {
		headers["api-key"] = apiKey
	}
	return &QdrantStore{
		rest:       newRESTClient(baseURL, headers, timeout, opts),
		collection: collection,
		dimensions: dimensions,
	}, nil
}

func (s *QdrantStore) collectionPath() string {
	return "/collections/" + url.PathEscape(s.collection)
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	err := s.rest.do(ctx, models.ErrUpsert, "qdrant get collection", http.MethodGet, s.collectionPath(), nil, nil)
	if err != nil {
		var se *models.StageError
		if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
			return err
		}
		req := map[string]any{
			"vectors": map[string]any{"size": s.dimensions, "distance": "Cosine"},
		}
		if err := s.rest.do(ctx, models.ErrUpsert, "qdrant create collection", http.MethodPut, s.collectionPath(), req, nil); err != nil {
			return err
		}
	}
	s.ensured = true
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes records as points. Failures wrap models.ErrUpsert.
func (s *QdrantStore) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	for start := 0; start < len(records); start += upsertBatch {
		end := start + upsertBatch
		if end > len(records) {
			end = len(records)
		}
		points := make([]qdrantPoint, 0, end-start)
		for _, r := range records[start:end] {
			payload := metadataMap(r.Metadata)
			payload["chunk_id"] = r.ID
			points = append(points, qdrantPoint{ID: fileid.PointUUID(r.ID), Vector: r.Values, Payload: payload})
		}
		req := map[string]any{"points": points}
		if err := s.rest.do(ctx, models.ErrUpsert, "qdrant upsert", http.MethodPut, s.collectionPath()+"/points?wait=true", req, nil); err != nil {
			return err
		}
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Query returns the k nearest points. Failures wrap models.ErrSearch.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{"vector": vector, "limit": k, "with_payload": true}
	var resp qdrantSearchResponse
	if err := s.rest.do(ctx, models.ErrSearch, "qdrant search", http.MethodPost, s.collectionPath()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	matches := make([]models.RetrievalMatch, 0, len(resp.Result))
	for _, p := range resp.Result {
		id := payloadString(p.Payload, "chunk_id")
		if id == "" {
			id = fmt.Sprintf("%v", p.ID)
		}
		matches = append(matches, models.RetrievalMatch{ID: id, Score: p.Score, Metadata: metadataFrom(p.Payload)})
	}
	sortMatches(matches)
	return matches, nil
}

type qdrantCollectionResponse struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

// Size returns the number of points, or 0 when the collection does not exist yet.
func (s *QdrantStore) Size(ctx context.Context) (int, error) {
	var resp qdrantCollectionResponse
	err := s.rest.do(ctx, models.ErrSearch, "qdrant get collection", http.MethodGet, s.collectionPath(), nil, &resp)
	if err != nil {
		var se *models.StageError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

// Close is a no-op.
func (s *QdrantStore) Close() error {
	return nil
}
