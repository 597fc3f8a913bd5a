// Package cli renders answers, keyword hits, ingest summaries and status for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// ChunkCounts is the number of ledger chunks per status.
type ChunkCounts struct {
	OK      int64 `json:"ok"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
}

// Status is the shape of GET /api/v1/status and of `tanya status`.
type Status struct {
	Documents      int64                  `json:"documents"`
	Chunks         ChunkCounts            `json:"chunks"`
	VectorCount    *int                   `json:"vector_count,omitempty"`
	VectorError    string                 `json:"vector_error,omitempty"`
	KeywordChunks  *uint64                `json:"keyword_chunks,omitempty"`
	LastRun        *models.RunRecord      `json:"last_run,omitempty"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its numbered sources.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(answer.Answer))
	if len(answer.Sources) == 0 {
		fmt.Fprintln(w)
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range answer.Sources {
		line := fmt.Sprintf("  [%d] %s (score %.3f)", s.Index, s.Document, s.Score)
		if s.URL != "" {
			line += " " + s.URL
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteKeywordHits writes keyword lookup results, one block per chunk.
func WriteKeywordHits(w io.Writer, query string, hits []models.KeywordHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "hits": hits})
	}
	fmt.Fprintf(w, "\n%d chunk(s) match %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(w, "%2d. %s #%d  (score %.3f)  %s\n", i+1, h.Source, h.ChunkIndex, h.Score, h.ID)
		if h.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", utils.Truncate(h.Snippet, 200))
		}
	}
	if len(hits) > 0 {
		fmt.Fprintln(w)
	}
	return nil
}

// WriteIngestStats writes the summary of an ingestion run.
func WriteIngestStats(w io.Writer, stats models.IngestStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "run:                %s\n", stats.RunID)
	fmt.Fprintf(w, "documents:          %d   # ingested\n", stats.Documents)
	fmt.Fprintf(w, "skipped_documents:  %d   # too short, unreadable or unchanged\n", stats.SkippedDocuments)
	fmt.Fprintf(w, "processed_chunks:   %d\n", stats.ProcessedChunks)
	fmt.Fprintf(w, "failed_chunks:      %d\n", stats.FailedChunks)
	fmt.Fprintf(w, "skipped_chunks:     %d\n", stats.SkippedChunks)
	fmt.Fprintf(w, "duration:           %s\n", stats.Duration.Round(time.Millisecond))
	return nil
}

// WriteStatus writes ledger, index and configuration status.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the ingestion ledger\n", status.Documents)
	fmt.Fprintf(w, "chunks:             %d ok, %d failed, %d skipped\n", status.Chunks.OK, status.Chunks.Failed, status.Chunks.Skipped)
	if status.VectorCount != nil {
		fmt.Fprintf(w, "vector_count:       %d   # records in the vector index\n", *status.VectorCount)
	}
	if status.VectorError != "" {
		fmt.Fprintf(w, "vector_error:       %s\n", status.VectorError)
	}
	if status.KeywordChunks != nil {
		fmt.Fprintf(w, "keyword_chunks:     %d   # chunks in the local keyword index\n", *status.KeywordChunks)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage:         %s\n", FormatBytes(*status.DiskUsageBytes))
	}
	if run := status.LastRun; run != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# last run")
		fmt.Fprintf(w, "id:                 %s\n", run.ID)
		fmt.Fprintf(w, "started_at:         %s\n", run.StartedAt.Local().Format(time.RFC3339))
		if !run.FinishedAt.IsZero() {
			fmt.Fprintf(w, "finished_at:        %s\n", run.FinishedAt.Local().Format(time.RFC3339))
		}
		fmt.Fprintf(w, "chunks:             %d processed, %d failed, %d skipped\n",
			run.Stats.ProcessedChunks, run.Stats.FailedChunks, run.Stats.SkippedChunks)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-20s%v\n", k+":", status.Config[k])
		}
	}
	return nil
}

// FormatBytes renders n with a binary unit, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
