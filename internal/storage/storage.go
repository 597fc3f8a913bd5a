// Package storage defines the ingestion ledger: runs, documents and chunks recorded by each ingest.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tanya/internal/models"
)

// ErrNotFound is returned when a ledger row does not exist.
var ErrNotFound = errors.New("not found")

// Ledger records what each ingestion run did. Rows are keyed by document name and chunk id,
// so re-ingesting the same documents overwrites them.
type Ledger interface {
	// Run operations
	StartRun(ctx context.Context) (string, error)
	FinishRun(ctx context.Context, id string, stats models.IngestStats) error
	LastRun(ctx context.Context) (*models.RunRecord, error)

	// Document operations
	UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error
	GetDocument(ctx context.Context, name string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *models.ChunkRecord) error
	ListChunks(ctx context.Context, document string) ([]*models.ChunkRecord, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context, status string) (int64, error)

	Close() error
}
