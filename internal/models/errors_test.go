package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "internal"},
		{"wrapped sentinel", fmt.Errorf("load: %w", ErrConfiguration), "configuration"},
		{"stage error", NewStageError(ErrEmbedding, "embed", errors.New("503")), "embedding"},
		{"download error", &DownloadError{URL: "http://x/a.pdf", StatusCode: 404}, "download"},
		{"double wrapped", fmt.Errorf("answer: %w", NewStageError(ErrGeneration, "chat", nil)), "generation"},
		{"invalid input", fmt.Errorf("query: %w", ErrInvalidInput), "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStageError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStageError(ErrSearch, "query index", cause)
	if !errors.Is(err, ErrSearch) {
		t.Error("expected errors.Is(ErrSearch)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(cause)")
	}
	var se *StageError
	if !errors.As(fmt.Errorf("wrap: %w", err), &se) || se.Op != "query index" {
		t.Errorf("errors.As failed: %+v", se)
	}
}

func TestDownloadError_Message(t *testing.T) {
	err := &DownloadError{URL: "http://x/a.pdf", StatusCode: 500}
	if err.Error() != "download http://x/a.pdf: unexpected status 500" {
		t.Errorf("got %q", err.Error())
	}
	transport := &DownloadError{URL: "http://x/b.pdf", Err: errors.New("dial tcp: refused")}
	if !errors.Is(transport, ErrDownload) {
		t.Error("transport failure should still be a download error")
	}
}

func TestKindMessage_HidesCause(t *testing.T) {
	err := NewStageError(ErrEmbedding, "embed", errors.New("secret upstream detail"))
	if got := KindMessage(err); got != "embedding failed" {
		t.Errorf("KindMessage() = %q", got)
	}
	if got := KindMessage(errors.New("x")); got != "internal error" {
		t.Errorf("KindMessage(plain) = %q", got)
	}
}
