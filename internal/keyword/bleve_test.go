package keyword

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tanya/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsChunkText(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := map[string]models.RecordMetadata{
		"grants_chunk_0": {Text: "Applicants must submit the Omnisyan form before the deadline.", Source: "grants.pdf", ChunkIndex: 0},
		"grants_chunk_1": {Text: "Funding is paid in two installments.", Source: "grants.pdf", ChunkIndex: 1},
		"policy_chunk_0": {Text: "The Bayes committee reviews every application.", Source: "policy.pdf", ChunkIndex: 0},
	}
	for id, meta := range chunks {
		if err := idx.Index(ctx, id, meta); err != nil {
			t.Fatalf("Index(%s): %v", id, err)
		}
	}

	hits, err := idx.Search(ctx, "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "grants_chunk_0" || hits[0].Source != "grants.pdf" || hits[0].ChunkIndex != 0 {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if hits[0].Snippet == "" {
		t.Error("expected a snippet")
	}

	// Standard analyzer lowercases, so "bayes" matches "Bayes".
	hits, err = idx.Search(ctx, "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "policy_chunk_0" {
		t.Errorf("expected policy_chunk_0, got %+v", hits)
	}
}

func TestBleveIndex_SourceFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "a_chunk_0", models.RecordMetadata{Text: "deadline for the grant", Source: "a.pdf"})
	_ = idx.Index(ctx, "b_chunk_0", models.RecordMetadata{Text: "deadline for the report", Source: "b.pdf"})

	hits, err := idx.Search(ctx, "deadline", 10, &SearchOptions{Source: "b.pdf"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "b_chunk_0" {
		t.Errorf("expected only b_chunk_0, got %+v", hits)
	}
}

func TestBleveIndex_FuzzyMatchesTypo(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "doc_chunk_0", models.RecordMetadata{Text: "eligibility requirements for applicants", Source: "doc.pdf"})

	exact, err := idx.Search(ctx, "applicents", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(exact) != 0 {
		t.Fatalf("expected no exact hit for a typo, got %d", len(exact))
	}

	fuzzy, err := idx.Search(ctx, "applicents", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatalf("fuzzy Search: %v", err)
	}
	if len(fuzzy) != 1 {
		t.Errorf("expected fuzzy hit, got %d", len(fuzzy))
	}
}

func TestBleveIndex_ReindexReplaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "doc_chunk_0", models.RecordMetadata{Text: "first version", Source: "doc.pdf"})
	_ = idx.Index(ctx, "doc_chunk_0", models.RecordMetadata{Text: "second version", Source: "doc.pdf"})

	n, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, _ := idx.Search(ctx, "first", 10, nil)
	if len(hits) != 0 {
		t.Errorf("stale text still searchable: %+v", hits)
	}

	if err := idx.Delete(ctx, "doc_chunk_0"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount after delete = %d", n)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Search(context.Background(), "   ", 10, nil)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewBleveIndex_ReopensOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Index(context.Background(), "doc_chunk_0", models.RecordMetadata{Text: "persisted text", Source: "doc.pdf"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	hits, err := reopened.Search(context.Background(), "persisted", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit after reopen, got %d", len(hits))
	}
}

func TestNewBleveIndex_LockedByAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	first, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer first.Close()

	done := make(chan error, 1)
	go func() {
		second, err := NewBleveIndex(path, WithOpenTimeout(200*time.Millisecond))
		if err == nil {
			_ = second.Close()
		}
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrIndexLocked) {
			t.Fatalf("err = %v, want ErrIndexLocked", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second open still blocked")
	}
}
