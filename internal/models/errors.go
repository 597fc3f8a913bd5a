package models

import (
	"errors"
	"fmt"
)

// Error categories. Every failure surfaced by the pipeline wraps exactly one of these.
var (
	// ErrConfiguration indicates a required credential or setting is absent or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrDownload indicates a document could not be fetched.
	ErrDownload = errors.New("download failed")

	// ErrExtraction indicates text could not be extracted. It is recovered by a metadata stub.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding indicates the embedding service failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrSearch indicates the vector index query failed.
	ErrSearch = errors.New("search failed")

	// ErrUpsert indicates the vector index rejected a write.
	ErrUpsert = errors.New("upsert failed")

	// ErrGeneration indicates the chat-completion call failed.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// DownloadError carries the URL and HTTP status of a failed fetch. StatusCode is 0 for transport failures.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

// Unwrap exposes both the category and the cause.
func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownload}
	}
	return []error{ErrDownload, e.Err}
}

// StageError is a categorized failure of a remote call. Kind is one of the category sentinels.
type StageError struct {
	Kind error
	Op   string
	// StatusCode is the HTTP status when the remote answered; 0 otherwise.
	StatusCode int
	Err        error
}

// NewStageError wraps err under kind for operation op.
func NewStageError(kind error, op string, err error) *StageError {
	return &StageError{Kind: kind, Op: op, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the category and the cause.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrConfiguration, "configuration"},
	{ErrDownload, "download"},
	{ErrExtraction, "extraction"},
	{ErrEmbedding, "embedding"},
	{ErrSearch, "search"},
	{ErrUpsert, "upsert"},
	{ErrGeneration, "generation"},
}

// KindOf returns the category name of err ("embedding", "search", ...) or "internal" when uncategorized.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// KindMessage returns the user-facing message for err's category, without the cause chain.
func KindMessage(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return "internal error"
}
