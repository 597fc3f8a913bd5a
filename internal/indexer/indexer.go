// Package indexer turns documents into indexed chunks: extract, preprocess, chunk, embed and upsert.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/fileid"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/metrics"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/retry"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/pkg/utils"
	"go.uber.org/zap"
)

// Defaults for the skip thresholds, in characters.
const (
	DefaultMinDocumentChars = 50
	DefaultMinChunkChars    = 10
)

// Progress reports how far an ingestion run has got.
type Progress struct {
	Document  string
	Documents int // documents finished so far
	Total     int
	Chunk     int // chunks finished in the current document
	Chunks    int
}

// ProgressFunc receives progress after every chunk and every finished document.
type ProgressFunc func(Progress)

// Indexer ingests documents into the vector store. Documents and chunks are processed one at a time.
// The ledger, keyword index, pacer, metrics and progress callback are optional.
type Indexer struct {
	extractor        *extract.Extractor
	chunker          *Chunker
	embedder         embedding.Embedder
	store            vector.Store
	ledger           storage.Ledger
	keywordIndex     keyword.ChunkIndex
	pacer            *retry.Pacer
	metrics          *metrics.Metrics
	progress         ProgressFunc
	minDocumentChars int
	minChunkChars    int
	skipUnchanged    bool
	logger           *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-document and per-chunk events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithLedger records runs, documents and chunks in l.
func WithLedger(l storage.Ledger) IndexerOption {
	return func(idx *Indexer) { idx.ledger = l }
}

// WithKeywordIndex also indexes every upserted chunk in k.
func WithKeywordIndex(k keyword.ChunkIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithPacer spaces out embed/upsert pairs.
func WithPacer(p *retry.Pacer) IndexerOption {
	return func(idx *Indexer) { idx.pacer = p }
}

// WithMetrics counts documents and chunks by status.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithProgress sets a progress callback.
func WithProgress(fn ProgressFunc) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// WithMinChars sets the document and chunk lengths below which they are skipped. Zero keeps the default.
func WithMinChars(document, chunk int) IndexerOption {
	return func(idx *Indexer) {
		if document > 0 {
			idx.minDocumentChars = document
		}
		if chunk > 0 {
			idx.minChunkChars = chunk
		}
	}
}

// WithSkipUnchanged skips documents whose content hash matches a fully successful ledger entry.
// It needs a ledger.
func WithSkipUnchanged(v bool) IndexerOption {
	return func(idx *Indexer) { idx.skipUnchanged = v }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(extractor *extract.Extractor, chunker *Chunker, embedder embedding.Embedder, store vector.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		extractor:        extractor,
		chunker:          chunker,
		embedder:         embedder,
		store:            store,
		minDocumentChars: DefaultMinDocumentChars,
		minChunkChars:    DefaultMinChunkChars,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Ingest processes docs in order. A failing document or chunk is logged, counted and skipped;
// only context cancellation stops the run early, in which case the stats so far and ctx.Err() are returned.
func (idx *Indexer) Ingest(ctx context.Context, docs []models.Document) (models.IngestStats, error) {
	started := time.Now()
	stats := models.IngestStats{RunID: idx.startRun(ctx)}

	idx.logger.Info("ingest started", zap.String("run", stats.RunID), zap.Int("documents", len(docs)))
	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		idx.ingestDocument(ctx, stats.RunID, doc, Progress{Document: doc.Name, Documents: i, Total: len(docs)}, &stats)
		idx.report(Progress{Document: doc.Name, Documents: i + 1, Total: len(docs)})
	}
	stats.Duration = time.Since(started)

	if idx.ledger != nil {
		// The run is recorded even when cancelled, with what was done.
		if err := idx.ledger.FinishRun(context.WithoutCancel(ctx), stats.RunID, stats); err != nil {
			idx.logger.Warn("ledger finish run failed", zap.String("run", stats.RunID), zap.Error(err))
		}
	}
	idx.logger.Info("ingest finished",
		zap.String("run", stats.RunID),
		zap.Int("documents", stats.Documents),
		zap.Int("skipped_documents", stats.SkippedDocuments),
		zap.Int("processed_chunks", stats.ProcessedChunks),
		zap.Int("failed_chunks", stats.FailedChunks),
		zap.Int("skipped_chunks", stats.SkippedChunks),
		zap.Duration("duration", stats.Duration))
	return stats, ctx.Err()
}

// IngestFile ingests the file at path, named by its base name.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (models.IngestStats, error) {
	return idx.Ingest(ctx, []models.Document{{Name: filepath.Base(path), Path: path}})
}

func (idx *Indexer) startRun(ctx context.Context) string {
	if idx.ledger != nil {
		id, err := idx.ledger.StartRun(ctx)
		if err == nil {
			return id
		}
		idx.logger.Warn("ledger start run failed", zap.Error(err))
	}
	return uuid.New().String()
}

func (idx *Indexer) ingestDocument(ctx context.Context, runID string, doc models.Document, pos Progress, stats *models.IngestStats) {
	log := idx.logger.With(zap.String("document", doc.Name))

	content := doc.Content
	if content == nil {
		var err error
		content, err = os.ReadFile(doc.Path)
		if err != nil {
			log.Warn("document unreadable, skipping", zap.String("path", doc.Path), zap.Error(err))
			stats.SkippedDocuments++
			idx.metrics.ObserveDocument(models.StatusFailed)
			idx.recordDocument(ctx, &models.DocumentRecord{Name: doc.Name, URL: doc.URL, Path: doc.Path, Status: models.StatusFailed, RunID: runID})
			return
		}
	}
	hash := fileid.ContentHash(content)

	if idx.unchanged(ctx, doc.Name, hash) {
		log.Info("document unchanged, skipping")
		stats.SkippedDocuments++
		idx.metrics.ObserveDocument(models.StatusSkipped)
		return
	}

	res := idx.extractor.Extract(doc.Name, doc.URL, content)
	text := Preprocess(res.Text)
	record := &models.DocumentRecord{
		Name:           doc.Name,
		URL:            doc.URL,
		Path:           doc.Path,
		SHA256:         hash,
		Pages:          res.Pages,
		ExtractedChars: utf8.RuneCountInString(text),
		Stub:           res.Stub,
		RunID:          runID,
	}

	if record.ExtractedChars < idx.minDocumentChars {
		log.Info("document text too short, skipping", zap.Int("chars", record.ExtractedChars), zap.Int("min", idx.minDocumentChars))
		stats.SkippedDocuments++
		idx.metrics.ObserveDocument(models.StatusSkipped)
		record.Status = models.StatusSkipped
		idx.recordDocument(ctx, record)
		return
	}
	stats.Documents++

	chunks := idx.chunker.Chunk(text)
	log.Debug("document chunked", zap.Int("chunks", len(chunks)), zap.Int("pages", res.Pages), zap.Bool("stub", res.Stub))

	for _, ch := range chunks {
		if ctx.Err() != nil {
			return
		}
		id := fileid.ChunkID(doc.Name, ch.Index)
		chunkRec := &models.ChunkRecord{
			ID:         id,
			Document:   doc.Name,
			ChunkIndex: ch.Index,
			Chars:      utf8.RuneCountInString(ch.Text),
			RunID:      runID,
		}

		switch {
		case chunkRec.Chars < idx.minChunkChars:
			log.Debug("chunk too short, skipping", zap.Int("chunk", ch.Index), zap.Int("chars", chunkRec.Chars))
			stats.SkippedChunks++
			chunkRec.Status = models.StatusSkipped
		default:
			err := idx.processChunk(ctx, id, doc, ch)
			if err != nil && ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Warn("chunk failed", zap.Int("chunk", ch.Index), zap.String("kind", models.KindOf(err)), zap.Error(err))
				stats.FailedChunks++
				chunkRec.Status = models.StatusFailed
				chunkRec.Error = err.Error()
			} else {
				stats.ProcessedChunks++
				record.Chunks++
				chunkRec.Status = models.StatusOK
			}
		}
		idx.metrics.ObserveChunk(chunkRec.Status)
		idx.recordChunk(ctx, chunkRec)
		pos.Chunk, pos.Chunks = ch.Index+1, len(chunks)
		idx.report(pos)
	}

	record.Status = models.StatusOK
	idx.metrics.ObserveDocument(models.StatusOK)
	idx.recordDocument(ctx, record)
	log.Info("document ingested", zap.Int("chunks", record.Chunks), zap.Int("pages", res.Pages))
}

// processChunk embeds and upserts one chunk, paced.
func (idx *Indexer) processChunk(ctx context.Context, id string, doc models.Document, ch models.Chunk) (err error) {
	if idx.pacer != nil {
		if err := idx.pacer.Wait(ctx); err != nil {
			return err
		}
		defer func() { idx.pacer.Done(err) }()
	}

	values, err := idx.embedder.Embed(ctx, ch.Text)
	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", id, err)
	}
	meta := models.RecordMetadata{
		Text:       ch.Text,
		Source:     doc.Name,
		ChunkIndex: ch.Index,
		URL:        doc.URL,
	}
	if err := idx.store.Upsert(ctx, []models.IndexedRecord{{ID: id, Values: values, Metadata: meta}}); err != nil {
		if !errors.Is(err, models.ErrUpsert) {
			err = models.NewStageError(models.ErrUpsert, "upsert", err)
		}
		return fmt.Errorf("upsert chunk %s: %w", id, err)
	}

	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, id, meta); err != nil {
			idx.logger.Warn("keyword index failed", zap.String("chunk", id), zap.Error(err))
		}
	}
	return nil
}

// unchanged reports whether name was last ingested from the same bytes with every chunk succeeding.
func (idx *Indexer) unchanged(ctx context.Context, name, hash string) bool {
	if !idx.skipUnchanged || idx.ledger == nil {
		return false
	}
	prev, err := idx.ledger.GetDocument(ctx, name)
	if err != nil || prev.SHA256 != hash || prev.Status != models.StatusOK {
		return false
	}
	chunks, err := idx.ledger.ListChunks(ctx, name)
	if err != nil {
		return false
	}
	for _, c := range chunks {
		if c.Status == models.StatusFailed {
			return false
		}
	}
	return true
}

func (idx *Indexer) recordDocument(ctx context.Context, rec *models.DocumentRecord) {
	if idx.ledger == nil {
		return
	}
	rec.IngestedAt = time.Now().UTC()
	if err := idx.ledger.UpsertDocument(ctx, rec); err != nil {
		idx.logger.Warn("ledger document write failed", zap.String("document", rec.Name), zap.Error(err))
	}
}

func (idx *Indexer) recordChunk(ctx context.Context, rec *models.ChunkRecord) {
	if idx.ledger == nil {
		return
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := idx.ledger.UpsertChunk(ctx, rec); err != nil {
		idx.logger.Warn("ledger chunk write failed", zap.String("chunk", rec.ID), zap.Error(err))
	}
}

func (idx *Indexer) report(p Progress) {
	if idx.progress != nil {
		idx.progress(p)
	}
}
