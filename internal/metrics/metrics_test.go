package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveChunk("ok")
	m.ObserveChunk("ok")
	m.ObserveChunk("failed")
	m.ObserveDocument("skipped")
	m.ObserveQuery(OutcomeAnswered, 120*time.Millisecond)

	if got := testutil.ToFloat64(m.ingestChunks.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok chunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ingestChunks.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed chunks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ingestDocuments.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped documents = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queries.WithLabelValues(OutcomeAnswered)); got != 1 {
		t.Errorf("answered queries = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveChunk("ok")
	m.ObserveDocument("ok")
	m.ObserveQuery(OutcomeNoMatches, time.Second)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/items/{id}", "404")); got != 2 {
		t.Errorf("route counter = %v, want 2", got)
	}

	m.ObserveChunk("ok")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"tanya_ingest_chunks_total", "tanya_http_requests_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
