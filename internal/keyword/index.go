// Package keyword provides a local keyword (BM25) index over ingested chunk text.
package keyword

import (
	"context"

	"github.com/hyperjump/tanya/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Source restricts hits to one document name.
	Source string
	// FuzzyEnabled matches terms within Fuzziness edits, for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2). Default 1 when fuzzy is enabled.
	Fuzziness int
}

// ChunkIndex stores chunk text for operator keyword lookups.
type ChunkIndex interface {
	Index(ctx context.Context, id string, meta models.RecordMetadata) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.KeywordHit, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}
