package main

import (
	"errors"
	"fmt"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/embedding"
	"github.com/hyperjump/tanya/internal/extract"
	"github.com/hyperjump/tanya/internal/fetch"
	"github.com/hyperjump/tanya/internal/generation"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/metrics"
	"github.com/hyperjump/tanya/internal/retry"
	"github.com/hyperjump/tanya/internal/search"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Ledger       *storage.SQLiteLedger
	Embedder     embedding.Embedder
	Store        vector.Store
	KeywordIndex *keyword.BleveIndex
	Generator    generation.Generator
	Engine       *search.Engine
	Indexer      *indexer.Indexer
	Fetcher      *fetch.Fetcher
	Metrics      *metrics.Metrics
}

// Close releases the ledger and indices. The memory vector store is saved to disk here.
func (c *Components) Close() error {
	var firstErr error
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			firstErr = fmt.Errorf("close vector store: %w", err)
		}
	}
	if c.KeywordIndex != nil {
		if err := c.KeywordIndex.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close keyword index: %w", err)
		}
	}
	if c.Ledger != nil {
		if err := c.Ledger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ledger: %w", err)
		}
	}
	return firstErr
}

func retryPolicy(cfg config.RetryConfig, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		Logger:          logger,
	}
}

func newEmbedder(cfg config.EmbeddingConfig, policy retry.Policy, logger *zap.Logger) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch cfg.Provider {
	case config.EmbeddingProviderHash:
		embedder = embedding.NewHashEmbedder(cfg.Dimensions)
	case config.EmbeddingProviderOpenAI, "":
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:       cfg.BaseURL,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Dimensions:    cfg.Dimensions,
			MaxInputChars: cfg.MaxInputChars,
			Timeout:       cfg.Timeout,
		}, embedding.WithRetryPolicy(policy), embedding.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

func newGenerator(cfg config.GenerationConfig, policy retry.Policy, logger *zap.Logger) generation.Generator {
	client, err := generation.New(generation.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}, generation.WithRetryPolicy(policy), generation.WithLogger(logger))
	if err != nil {
		logger.Warn("answer generation disabled", zap.Error(err))
		return generation.Unavailable{Reason: err.Error()}
	}
	return client
}

func newFetcher(cfg config.FetchConfig, policy retry.Policy, logger *zap.Logger) *fetch.Fetcher {
	return fetch.New(fetch.Options{
		Mode:         cfg.Mode,
		ListingURL:   cfg.ListingURL,
		Suffix:       cfg.Suffix,
		PathPrefix:   cfg.PathPrefix,
		MaxDocuments: cfg.MaxDocuments,
		MaxRedirects: cfg.MaxRedirects,
		BackupURLs:   cfg.BackupURLs,
		IncludeLocal: cfg.IncludeLocalOrDefault(),
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Timeout,
	}, fetch.WithRetryPolicy(policy), fetch.WithLogger(logger))
}

// initializeComponents builds every client once from cfg. Extra indexer options (progress, skip rules) are appended.
func initializeComponents(cfg *config.Config, logger *zap.Logger, idxOpts ...indexer.IndexerOption) (*Components, error) {
	c := &Components{Metrics: metrics.New()}
	fail := func(err error) (*Components, error) {
		_ = c.Close()
		return nil, err
	}

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize ledger: %w", err))
	}
	c.Ledger = ledger

	policy := retryPolicy(cfg.Retry, logger)

	c.Embedder, err = newEmbedder(cfg.Embedding, policy, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedder: %w", err))
	}

	store, err := vector.NewStore(cfg.Vector, c.Embedder.Dimensions(), cfg.Storage.VectorPath,
		vector.WithRetryPolicy(policy), vector.WithLogger(logger))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize vector store: %w", err))
	}
	c.Store = store
	logger.Info("vector store initialized",
		zap.String("provider", cfg.Vector.Provider),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	// The keyword index is optional. A running server holds its lock, so ingestion continues without it.
	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	switch {
	case errors.Is(err, keyword.ErrIndexLocked):
		logger.Warn("keyword index in use by another process; continuing without it",
			zap.String("path", cfg.Storage.BleveIndexPath))
	case err != nil:
		return fail(fmt.Errorf("failed to initialize keyword index: %w", err))
	default:
		c.KeywordIndex = keywordIndex
	}

	c.Generator = newGenerator(cfg.Generation, policy, logger)
	c.Fetcher = newFetcher(cfg.Fetch, policy, logger)

	c.Engine = search.NewEngine(c.Embedder, c.Store, c.Generator, cfg.Query.TopK,
		search.WithMinScore(cfg.Query.MinScore),
		search.WithMetrics(c.Metrics),
		search.WithLogger(logger),
	)

	extractor := extract.NewExtractor(
		extract.WithMinChars(cfg.Extract.MinChars),
		extract.WithStubOnSparse(cfg.Extract.StubOnSparseOrDefault()),
		extract.WithLogger(logger),
	)
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault(),
		indexer.WithLookback(cfg.Chunking.SentenceLookbackOrDefault(), cfg.Chunking.WordLookbackOrDefault()),
		indexer.WithTerminators(cfg.Chunking.Terminators),
	)
	opts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithLedger(c.Ledger),
		indexer.WithMetrics(c.Metrics),
		indexer.WithPacer(retry.NewPacer(cfg.Ingest.Delay, cfg.Ingest.ErrorDelay)),
		indexer.WithMinChars(cfg.Ingest.MinDocumentChars, cfg.Ingest.MinChunkChars),
	}
	if c.KeywordIndex != nil {
		opts = append(opts, indexer.WithKeywordIndex(c.KeywordIndex))
	}
	c.Indexer = indexer.NewIndexer(extractor, chunker, c.Embedder, c.Store, append(opts, idxOpts...)...)
	return c, nil
}
