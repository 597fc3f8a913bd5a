// Package search answers questions from the indexed chunks: embed, retrieve, prompt, cite.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/generation"
	"github.com/hyperjump/tanya/internal/metrics"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/pkg/utils"
	"go.uber.org/zap"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// InsufficientInformation is the answer returned when retrieval finds nothing.
const InsufficientInformation = "I could not find enough information in the indexed documents to answer that question."

// SystemPrompt instructs the model to answer from the numbered context only.
const SystemPrompt = `You answer questions using only the numbered context passages provided by the user.
If the context does not contain enough information to answer, reply "I don't know."
Cite the passages you rely on with their numbers in square brackets, for example [1] or [2][3].
Do not use outside knowledge.`

// Engine answers questions by retrieval-augmented generation.
type Engine struct {
	embedder  embedding.Embedder
	store     vector.Store
	generator generation.Generator
	topK      int
	minScore  float64
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMinScore drops matches scoring below min. Zero keeps every match.
func WithMinScore(min float64) EngineOption {
	return func(e *Engine) { e.minScore = min }
}

// WithMetrics counts questions by outcome.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine. topK <= 0 uses DefaultTopK.
func NewEngine(embedder embedding.Embedder, store vector.Store, generator generation.Generator, topK int, opts ...EngineOption) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	e := &Engine{
		embedder:  embedder,
		store:     store,
		generator: generator,
		topK:      topK,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Retrieve embeds query and returns the top matches by descending score, after the min-score filter.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]models.RetrievalMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty: %w", models.ErrInvalidInput)
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, categorize(models.ErrEmbedding, "embed query", err)
	}
	matches, err := e.store.Query(ctx, vec, e.topK)
	if err != nil {
		return nil, categorize(models.ErrSearch, "query index", err)
	}
	if e.minScore > 0 {
		kept := matches[:0]
		for _, m := range matches {
			if m.Score >= e.minScore {
				kept = append(kept, m)
			}
		}
		matches = kept
	}
	return matches, nil
}

// Answer retrieves context for query and asks the generator to answer from it.
// With no matches it returns InsufficientInformation and no sources without calling the generator.
// On generation failure no partial answer or sources are returned.
func (e *Engine) Answer(ctx context.Context, query string) (answer *models.Answer, err error) {
	started := time.Now()
	outcome := metrics.OutcomeAnswered
	defer func() {
		if err != nil {
			outcome = models.KindOf(err)
		}
		e.metrics.ObserveQuery(outcome, time.Since(started))
	}()

	query = strings.TrimSpace(query)
	matches, err := e.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		outcome = metrics.OutcomeNoMatches
		e.logger.Info("no matches for query", zap.String("query", utils.Truncate(query, 80)))
		return &models.Answer{Answer: InsufficientInformation, Sources: []models.SourceRef{}}, nil
	}

	contextText, sources := BuildContext(matches)
	user := "Context:\n" + contextText + "\n\nQuestion: " + query
	text, err := e.generator.Generate(ctx, SystemPrompt, user)
	if err != nil {
		return nil, categorize(models.ErrGeneration, "generate answer", err)
	}
	e.logger.Debug("answered query",
		zap.String("query", utils.Truncate(query, 80)),
		zap.Int("sources", len(sources)),
		zap.Duration("elapsed", time.Since(started)))
	return &models.Answer{Answer: text, Sources: sources}, nil
}

// BuildContext numbers matches from 1 in rank order. Each passage is prefixed "[n] (source)".
func BuildContext(matches []models.RetrievalMatch) (string, []models.SourceRef) {
	var b strings.Builder
	sources := make([]models.SourceRef, 0, len(matches))
	for i, m := range matches {
		n := i + 1
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s", n, m.Metadata.Source, strings.TrimSpace(m.Metadata.Text))
		sources = append(sources, models.SourceRef{
			Index:    n,
			Document: m.Metadata.Source,
			Score:    m.Score,
			URL:      m.Metadata.URL,
		})
	}
	return b.String(), sources
}

// categorize wraps err under kind unless it already carries a category.
func categorize(kind error, op string, err error) error {
	if models.KindOf(err) != "internal" {
		return err
	}
	return models.NewStageError(kind, op, err)
}
