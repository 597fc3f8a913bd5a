// Package metrics exposes Prometheus counters for ingestion and queries on a dedicated registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tanya"

// Query outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoMatches = "no_matches"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingestChunks    *prometheus.CounterVec
	ingestDocuments *prometheus.CounterVec
	queries         *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	httpRequests    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them, plus Go and process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ingestChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks handled by ingestion, by status",
		},
		[]string{"status"},
	)
	m.ingestDocuments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents handled by ingestion, by status",
		},
		[]string{"status"},
	)
	m.queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Questions answered, by outcome or error kind",
		},
		[]string{"outcome"},
	)
	m.queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time to answer a question, including embedding, search and generation",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status",
		},
		[]string{"method", "route", "status"},
	)

	m.registry.MustRegister(
		m.ingestChunks,
		m.ingestDocuments,
		m.queries,
		m.queryDuration,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveChunk counts a chunk with status ok, failed or skipped.
func (m *Metrics) ObserveChunk(status string) {
	if m == nil {
		return
	}
	m.ingestChunks.WithLabelValues(status).Inc()
}

// ObserveDocument counts a document with status ok or skipped.
func (m *Metrics) ObserveDocument(status string) {
	if m == nil {
		return
	}
	m.ingestDocuments.WithLabelValues(status).Inc()
}

// ObserveQuery counts a question and records how long it took.
func (m *Metrics) ObserveQuery(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(elapsed.Seconds())
}

// Middleware counts requests by chi route pattern, so path parameters do not explode the label set.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}
