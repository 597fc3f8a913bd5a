package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultChunkSearchLimit = 10
	maxChunkSearchLimit     = 100
	maxRequestBodyBytes     = 64 << 10
)

// errorResponse is the body of every failed request. Kind is set for downstream failures.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("query request", zap.Int("chars", len(req.Query)))
	answer, err := s.engine.Answer(r.Context(), req.Query)
	if err != nil {
		s.respondFailure(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chunkCounts struct {
	OK      int64 `json:"ok"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{}

	if s.ledger != nil {
		docCount, err := s.ledger.CountDocuments(ctx)
		if err != nil {
			s.logger.Error("status: count documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "ledger unavailable")
			return
		}
		var counts chunkCounts
		for status, dst := range map[string]*int64{
			models.StatusOK:      &counts.OK,
			models.StatusFailed:  &counts.Failed,
			models.StatusSkipped: &counts.Skipped,
		} {
			n, err := s.ledger.CountChunks(ctx, status)
			if err != nil {
				s.logger.Error("status: count chunks failed", zap.String("status", status), zap.Error(err))
				s.respondError(w, http.StatusInternalServerError, "ledger unavailable")
				return
			}
			*dst = n
		}
		resp["documents"] = docCount
		resp["chunks"] = counts
		if run, err := s.ledger.LastRun(ctx); err == nil {
			resp["last_run"] = run
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("status: last run failed", zap.Error(err))
		}
	}

	if s.store != nil {
		if n, err := s.store.Size(ctx); err == nil {
			resp["vector_count"] = n
		} else {
			s.logger.Warn("status: vector store size failed", zap.String("kind", models.KindOf(err)), zap.Error(err))
			resp["vector_error"] = models.KindMessage(err)
		}
	}
	if s.keywordIndex != nil {
		if n, err := s.keywordIndex.DocCount(); err == nil {
			resp["keyword_chunks"] = n
		}
	}

	if s.config != nil {
		s.configMu.Lock()
		resp["config"] = map[string]interface{}{
			"vector_provider":      s.config.Vector.Provider,
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chat_model":           s.config.Generation.Model,
			"chunk_size":           s.config.Chunking.ChunkSize,
			"chunk_overlap":        s.config.Chunking.OverlapOrDefault(),
			"top_k":                s.config.Query.TopK,
			"fetch_mode":           s.config.Fetch.Mode,
			"database_path":        s.config.Storage.DatabasePath,
		}
		paths := []string{s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath, s.config.Storage.VectorPath}
		s.configMu.Unlock()
		if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChunkSearch(w http.ResponseWriter, r *http.Request) {
	if s.keywordIndex == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword index not enabled")
		return
	}
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultChunkSearchLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxChunkSearchLimit)
	}
	opts := &keyword.SearchOptions{Source: q.Get("source")}
	if v := q.Get("fuzzy"); v != "" {
		fuzzy, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "fuzzy must be a boolean")
			return
		}
		opts.FuzzyEnabled = fuzzy
	}

	hits, err := s.keywordIndex.Search(r.Context(), query, limit, opts)
	if err != nil {
		s.respondFailure(w, "chunk search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": query, "hits": hits})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.logger.Error("watch add: stat failed", zap.String("path", abs), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "cannot read directory")
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "cannot watch directory")
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "cannot unwatch directory")
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories saves the current watch roots to the config file, when there is one.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	s.config.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.config)
	s.configMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

// respondFailure maps err to a status: 400 for invalid input, 500 otherwise.
// The body carries the category message only, never the cause chain.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	kind := models.KindOf(err)
	if errors.Is(err, models.ErrInvalidInput) {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: models.KindMessage(err), Kind: kind})
		return
	}
	s.logger.Error(msg, zap.String("kind", kind), zap.Error(err))
	s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: models.KindMessage(err), Kind: kind})
}
