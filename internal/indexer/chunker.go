// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"strings"

	"github.com/hyperjump/tanya/internal/models"
)

// Default boundary search distances, in characters.
const (
	DefaultSentenceLookback = 100
	DefaultWordLookback     = 50
	DefaultTerminators      = ".!?"
)

// Chunker splits text into overlapping character windows, preferring to end on sentence or word boundaries.
type Chunker struct {
	chunkSize        int
	chunkOverlap     int
	sentenceLookback int
	wordLookback     int
	terminators      string
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithLookback sets how far back from a window end to search for a sentence terminator and for whitespace.
func WithLookback(sentence, word int) ChunkerOption {
	return func(c *Chunker) {
		if sentence >= 0 {
			c.sentenceLookback = sentence
		}
		if word >= 0 {
			c.wordLookback = word
		}
	}
}

// WithTerminators sets the characters that end a sentence.
func WithTerminators(terminators string) ChunkerOption {
	return func(c *Chunker) {
		if terminators != "" {
			c.terminators = terminators
		}
	}
}

// NewChunker creates a chunker with the given size and overlap (in characters).
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	c := &Chunker{
		chunkSize:        chunkSize,
		chunkOverlap:     chunkOverlap,
		sentenceLookback: DefaultSentenceLookback,
		wordLookback:     DefaultWordLookback,
		terminators:      DefaultTerminators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text into ordered chunks. Each chunk's Start/End is its untrimmed rune span in text,
// so the spans together cover the whole input. Text that is empty after trimming yields no chunks.
func (c *Chunker) Chunk(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n <= c.chunkSize {
		return []models.Chunk{{Text: strings.TrimSpace(text), Index: 0, Start: 0, End: n}}
	}

	var chunks []models.Chunk
	start := 0
	for {
		end := start + c.chunkSize
		if end > n {
			end = n
		}
		if end < n {
			end = c.boundary(runes, start, end)
		}
		chunks = append(chunks, models.Chunk{
			Text:  strings.TrimSpace(string(runes[start:end])),
			Index: len(chunks),
			Start: start,
			End:   end,
		})
		if end == n {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// boundary moves end back to just past the last sentence terminator within the sentence lookback,
// else to just past the last whitespace within the word lookback. The result is always > start.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	if i := lastIndex(runes, start, end, c.sentenceLookback, c.isTerminator); i >= 0 {
		return i + 1
	}
	if i := lastIndex(runes, start, end, c.wordLookback, isBreak); i >= 0 {
		return i + 1
	}
	return end
}

func (c *Chunker) isTerminator(r rune) bool {
	return strings.ContainsRune(c.terminators, r)
}

func isBreak(r rune) bool {
	return r == ' ' || r == '\n'
}

// lastIndex returns the position of the last rune matching fn in [max(start+1, end-lookback), end), or -1.
func lastIndex(runes []rune, start, end, lookback int, fn func(rune) bool) int {
	lo := end - lookback
	if lo <= start {
		lo = start + 1
	}
	for i := end - 1; i >= lo; i-- {
		if fn(runes[i]) {
			return i
		}
	}
	return -1
}
