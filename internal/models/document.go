// Package models defines core data structures for documents, chunks, indexed records, and answers.
package models

import "time"

// DocumentRef locates a source document before it is downloaded.
type DocumentRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Document is a source document on local disk. Name is the source identity (filename).
type Document struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Path    string `json:"path"`
	Content []byte `json:"-"`
}

// Chunk is a contiguous piece of a document's extracted text.
// Start and End are rune offsets of the untrimmed window in the chunker input; Text is trimmed.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// RecordMetadata is stored with every vector in the index.
type RecordMetadata struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	URL        string `json:"url,omitempty"`
}

// IndexedRecord is the durable unit in the vector index. Upserts with the same ID overwrite.
type IndexedRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

// DocumentRecord is the ledger entry for an ingested document.
type DocumentRecord struct {
	Name           string    `json:"name"`
	URL            string    `json:"url,omitempty"`
	Path           string    `json:"path"`
	SHA256         string    `json:"sha256"`
	Pages          int       `json:"pages"`
	ExtractedChars int       `json:"extracted_chars"`
	Stub           bool      `json:"stub"`
	Chunks         int       `json:"chunks"`
	Status         string    `json:"status"`
	RunID          string    `json:"run_id"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// ChunkRecord is the ledger entry for a single chunk.
type ChunkRecord struct {
	ID         string    `json:"id"`
	Document   string    `json:"document"`
	ChunkIndex int       `json:"chunk_index"`
	Chars      int       `json:"chars"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"run_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger status values for documents and chunks.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)
