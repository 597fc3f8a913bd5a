// Package server provides the HTTP API for tanya.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/keyword"
	"github.com/hyperjump/tanya/internal/metrics"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/storage"
	"github.com/hyperjump/tanya/internal/vector"
	"github.com/hyperjump/tanya/pkg/utils"
	"go.uber.org/zap"
)

// requestTimeout bounds a request, generation included.
const requestTimeout = 3 * time.Minute

// Answerer answers a question with cited sources.
type Answerer interface {
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

// WatchService manages the drop-folder directories. Implemented by *watcher.Watcher.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the tanya API.
type Server struct {
	engine       Answerer
	ledger       storage.Ledger
	store        vector.Store
	keywordIndex keyword.ChunkIndex
	metrics      *metrics.Metrics
	watch        WatchService
	config       *config.Config
	configPath   string
	configMu     sync.Mutex
	logger       *zap.Logger
	server       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables ledger counts in /api/v1/status.
func WithLedger(l storage.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithVectorStore enables the vector count in /api/v1/status.
func WithVectorStore(v vector.Store) Option {
	return func(s *Server) { s.store = v }
}

// WithKeywordIndex enables /api/v1/chunks/search.
func WithKeywordIndex(k keyword.ChunkIndex) Option {
	return func(s *Server) { s.keywordIndex = k }
}

// WithMetrics enables /metrics and request counting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch enables the watch directory endpoints. Changes are saved to configPath when it is set.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server that answers questions with engine.
func NewServer(engine Answerer, cfg *config.Config, opts ...Option) *Server {
	s := &Server{engine: engine, config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/chunks/search", s.handleChunkSearch)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
