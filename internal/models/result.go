package models

import "time"

// RetrievalMatch is a single similarity search hit, ranked by descending Score.
type RetrievalMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata RecordMetadata `json:"metadata"`
}

// SourceRef cites a retrieved chunk. Index is the 1-based citation number used in the answer text.
type SourceRef struct {
	Index    int     `json:"index"`
	Document string  `json:"document"`
	Score    float64 `json:"score"`
	URL      string  `json:"url,omitempty"`
}

// Answer is the response to a question.
type Answer struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// IngestStats summarizes an ingestion run. Counts are reported, never thrown.
type IngestStats struct {
	RunID            string        `json:"run_id"`
	Documents        int           `json:"documents"`
	SkippedDocuments int           `json:"skipped_documents"`
	ProcessedChunks  int           `json:"processed_chunks"`
	FailedChunks     int           `json:"failed_chunks"`
	SkippedChunks    int           `json:"skipped_chunks"`
	Duration         time.Duration `json:"duration"`
}

// RunRecord is the ledger entry for an ingestion run.
type RunRecord struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Stats      IngestStats `json:"stats"`
}
