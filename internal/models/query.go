package models

import (
	"fmt"
	"strings"
)

// QueryRequest is the body of a question request.
type QueryRequest struct {
	Query string `json:"query"`
}

// Validate trims the query and rejects an empty one with ErrInvalidInput.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty: %w", ErrInvalidInput)
	}
	return nil
}

// KeywordHit is a local keyword lookup result over ingested chunks.
type KeywordHit struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}
