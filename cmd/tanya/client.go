package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 3 * time.Minute}

type grepOptions struct {
	Limit  int
	Fuzzy  bool
	Source string
}

// serverError reads the {error, kind} body the server sends with non-2xx responses.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		if body.Kind != "" {
			return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode, body.Error, body.Kind)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
}

func getJSON(ctx context.Context, rawURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func askViaHTTP(ctx context.Context, serverURL, query string) (*models.Answer, error) {
	body, err := json.Marshal(models.QueryRequest{Query: query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func grepViaHTTP(ctx context.Context, serverURL, query string, opts grepOptions) ([]models.KeywordHit, error) {
	params := url.Values{}
	params.Set("q", query)
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Fuzzy {
		params.Set("fuzzy", "true")
	}
	if opts.Source != "" {
		params.Set("source", opts.Source)
	}
	var out struct {
		Hits []models.KeywordHit `json:"hits"`
	}
	if err := getJSON(ctx, serverURL+"/api/v1/chunks/search?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (*cli.Status, error) {
	var st cli.Status
	if err := getJSON(ctx, serverURL+"/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// grepDirect opens only the keyword index, so it works without embedding or vector credentials.
func grepDirect(configPath, query string, opts grepOptions) ([]models.KeywordHit, error) {
	cfg, _, logger, err := setup(configPath, false)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if errors.Is(err, keyword.ErrIndexLocked) {
		return nil, fmt.Errorf("%w; a server is running, query it with --server", err)
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	defer idx.Close()
	return idx.Search(context.Background(), query, opts.Limit, &keyword.SearchOptions{
		Source:       opts.Source,
		FuzzyEnabled: opts.Fuzzy,
	})
}

// statusDirect reads the ledger and local indices. The vector store is sized when it can be reached.
func statusDirect(configPath string) (*cli.Status, error) {
	cfg, _, logger, err := setup(configPath, false)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	ctx := context.Background()

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	st := &cli.Status{}
	if st.Documents, err = ledger.CountDocuments(ctx); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	for status, dst := range map[string]*int64{
		models.StatusOK:      &st.Chunks.OK,
		models.StatusFailed:  &st.Chunks.Failed,
		models.StatusSkipped: &st.Chunks.Skipped,
	} {
		if *dst, err = ledger.CountChunks(ctx, status); err != nil {
			return nil, fmt.Errorf("count %s chunks: %w", status, err)
		}
	}
	if run, err := ledger.LastRun(ctx); err == nil {
		st.LastRun = run
	}

	policy := retryPolicy(cfg.Retry, logger)
	if store, err := vector.NewStore(cfg.Vector, cfg.Embedding.Dimensions, cfg.Storage.VectorPath,
		vector.WithRetryPolicy(policy), vector.WithLogger(logger)); err != nil {
		st.VectorError = models.KindMessage(err)
	} else {
		if n, err := store.Size(ctx); err == nil {
			st.VectorCount = &n
		} else {
			st.VectorError = models.KindMessage(err)
			logger.Debug("vector store size failed", zap.Error(err))
		}
		// Closing would rewrite the memory store file unchanged.
		if cfg.Vector.Provider != config.VectorProviderMemory {
			_ = store.Close()
		}
	}
	if idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath); err == nil {
		if n, err := idx.DocCount(); err == nil {
			st.KeywordChunks = &n
		}
		_ = idx.Close()
	}
	if disk, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorPath); err == nil {
		st.DiskUsageBytes = &disk
	}
	st.Config = map[string]interface{}{
		"vector_provider":      cfg.Vector.Provider,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.Embedding.Model,
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"chat_model":           cfg.Generation.Model,
		"chunk_size":           cfg.Chunking.ChunkSize,
		"chunk_overlap":        cfg.Chunking.OverlapOrDefault(),
		"top_k":                cfg.Query.TopK,
		"fetch_mode":           cfg.Fetch.Mode,
		"database_path":        cfg.Storage.DatabasePath,
	}
	return st, nil
}
