package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tanya/internal/models"
)

func rec(id string, values ...float32) models.IndexedRecord {
	return models.IndexedRecord{ID: id, Values: values, Metadata: models.RecordMetadata{Text: "text " + id, Source: id + ".pdf"}}
}

func TestMemoryStore_UpsertQuery(t *testing.T) {
	s, err := NewMemoryStore(3, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Upsert(ctx, []models.IndexedRecord{rec("a", 1, 0, 0), rec("b", 0.9, 0.1, 0), rec("c", 0, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Size(ctx); n != 3 {
		t.Errorf("Size=%d", n)
	}

	results, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be in descending score order")
	}
	if results[0].Metadata.Source != "a.pdf" {
		t.Errorf("metadata not returned: %+v", results[0].Metadata)
	}
}

func TestMemoryStore_UpsertOverwrites(t *testing.T) {
	s, _ := NewMemoryStore(2, "")
	ctx := context.Background()
	_ = s.Upsert(ctx, []models.IndexedRecord{rec("x", 1, 0)})
	updated := rec("x", 0, 1)
	updated.Metadata.Text = "new text"
	if err := s.Upsert(ctx, []models.IndexedRecord{updated}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Size(ctx); n != 1 {
		t.Fatalf("upsert with same id should overwrite, size=%d", n)
	}
	results, _ := s.Query(ctx, []float32{0, 1}, 1)
	if results[0].Metadata.Text != "new text" {
		t.Errorf("metadata = %+v", results[0].Metadata)
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s, _ := NewMemoryStore(3, "")
	ctx := context.Background()
	if err := s.Upsert(ctx, []models.IndexedRecord{rec("x", 1, 0)}); !errors.Is(err, models.ErrUpsert) {
		t.Errorf("expected ErrUpsert, got %v", err)
	}
	if _, err := s.Query(ctx, []float32{1}, 1); !errors.Is(err, models.ErrSearch) {
		t.Errorf("expected ErrSearch, got %v", err)
	}
}

func TestMemoryStore_EmptyQuery(t *testing.T) {
	s, _ := NewMemoryStore(2, "")
	results, err := s.Query(context.Background(), []float32{1, 0}, 5)
	if err != nil || len(results) != 0 {
		t.Errorf("empty store should return no matches, got %v, %v", results, err)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indices", "vectors.bin")
	ctx := context.Background()

	s, err := NewMemoryStore(2, path)
	if err != nil {
		t.Fatal(err)
	}
	r := rec("report_chunk_0", 0.6, 0.8)
	r.Metadata.URL = "https://example.org/report.pdf"
	r.Metadata.ChunkIndex = 4
	_ = s.Upsert(ctx, []models.IndexedRecord{r, rec("other_chunk_0", 1, 0)})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	loaded, err := NewMemoryStore(2, path)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := loaded.Size(ctx); n != 2 {
		t.Fatalf("loaded size = %d", n)
	}
	results, _ := loaded.Query(ctx, []float32{0.6, 0.8}, 1)
	if results[0].ID != "report_chunk_0" || results[0].Metadata != r.Metadata {
		t.Errorf("loaded record = %+v", results[0])
	}

	if _, err := NewMemoryStore(3, path); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("dimension mismatch on load should be a configuration error, got %v", err)
	}
}

func TestMemoryStore_ReloadsWhenFileReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()

	reader, err := NewMemoryStore(2, path)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := reader.Size(ctx); n != 0 {
		t.Fatalf("fresh store size = %d", n)
	}

	writer, err := NewMemoryStore(2, path)
	if err != nil {
		t.Fatal(err)
	}
	_ = writer.Upsert(ctx, []models.IndexedRecord{rec("a", 1, 0)})
	if err := writer.Save(); err != nil {
		t.Fatal(err)
	}
	if n, err := reader.Size(ctx); err != nil || n != 1 {
		t.Fatalf("reader size after first save = %d, %v; want 1", n, err)
	}

	_ = writer.Upsert(ctx, []models.IndexedRecord{rec("b", 0, 1)})
	if err := writer.Save(); err != nil {
		t.Fatal(err)
	}
	results, err := reader.Query(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("reader did not pick up new record: %+v", results)
	}

	// Closing a store without its own upserts must not overwrite the newer file.
	if err := reader.Close(); err != nil {
		t.Fatal(err)
	}
	_ = writer.Upsert(ctx, []models.IndexedRecord{rec("c", 1, 1)})
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	final, err := NewMemoryStore(2, path)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := final.Size(ctx); n != 3 {
		t.Errorf("final size = %d, want 3", n)
	}
}

func TestMemoryStore_UnsavedUpsertsSurviveOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	ctx := context.Background()

	local, _ := NewMemoryStore(2, path)
	_ = local.Upsert(ctx, []models.IndexedRecord{rec("mine", 1, 0)})

	other, _ := NewMemoryStore(2, path)
	_ = other.Upsert(ctx, []models.IndexedRecord{rec("theirs", 0, 1), rec("theirs2", 1, 1)})
	if err := other.Save(); err != nil {
		t.Fatal(err)
	}

	results, err := local.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "mine" {
		t.Errorf("unsaved upserts were replaced by the other file: %+v", results)
	}
}

func TestNewMemoryStore_InvalidDimensions(t *testing.T) {
	if _, err := NewMemoryStore(0, ""); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
