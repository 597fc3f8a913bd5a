// Package vector provides vector stores: Pinecone and Qdrant over REST, and an in-memory store.
package vector

import (
	"context"

	"github.com/hyperjump/tanya/internal/models"
)

// Store persists indexed records and answers nearest-neighbour queries.
// Upsert with an existing id overwrites the record. Query returns matches by descending score.
type Store interface {
	Upsert(ctx context.Context, records []models.IndexedRecord) error
	Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalMatch, error)
	Size(ctx context.Context) (int, error)
	Close() error
}
