// Package extract provides text extraction from PDF and plain-text documents.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/tanya/internal/models"
	"go.uber.org/zap"
)

// Result is the text of a document plus what is known about it.
type Result struct {
	Text  string
	Pages int
	// Stub is set when Text starts with a metadata stub because little or no text could be extracted.
	Stub bool
}

// Extractor extracts plain text from document bytes. It never fails: unreadable input yields a stub.
type Extractor struct {
	minChars     int
	stubOnSparse bool
	logger       *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinChars sets the extracted length below which a document is treated as image-only.
func WithMinChars(n int) Option {
	return func(e *Extractor) { e.minChars = n }
}

// WithStubOnSparse controls whether sparse documents get a metadata stub prepended.
// When false, their (possibly empty) text is returned as is.
func WithStubOnSparse(v bool) Option {
	return func(e *Extractor) { e.stubOnSparse = v }
}

// WithLogger sets a logger for extraction failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{minChars: 100, stubOnSparse: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFile reads the file at path and extracts it. source is the URL the file came from, if any.
func (e *Extractor) ExtractFile(path, source string) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	return e.Extract(filepath.Base(path), source, content), nil
}

// Extract returns the text of content. The format is chosen by the extension of name.
func (e *Extractor) Extract(name, source string, content []byte) Result {
	var (
		text  string
		pages int
		err   error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, pages, err = extractPDF(content)
	default:
		text = extractPlain(content)
		pages = 1
	}

	if err != nil {
		xerr := models.NewStageError(models.ErrExtraction, "extract "+name, err)
		if e.logger != nil {
			e.logger.Warn("text extraction failed; indexing metadata stub",
				zap.String("document", name),
				zap.Error(xerr))
		}
		return Result{Text: stub(name, source, pages, "The file could not be parsed."), Pages: pages, Stub: true}
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < e.minChars && e.stubOnSparse {
		if e.logger != nil {
			e.logger.Info("little extractable text; indexing metadata stub",
				zap.String("document", name),
				zap.Int("pages", pages))
		}
		note := "Little or no text could be extracted; the document is probably scanned or image-based."
		body := strings.TrimSpace(text)
		out := stub(name, source, pages, note)
		if body != "" {
			out += "\n\n" + body
		}
		return Result{Text: out, Pages: pages, Stub: true}
	}
	return Result{Text: text, Pages: pages}
}

func stub(name, source string, pages int, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", name)
	if source != "" {
		fmt.Fprintf(&b, "Source: %s\n", source)
	}
	if pages > 0 {
		fmt.Fprintf(&b, "Pages: %d\n", pages)
	}
	fmt.Fprintf(&b, "Note: %s Answers drawing on this document have low confidence.", note)
	return b.String()
}
