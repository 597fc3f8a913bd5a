package fileid

import (
	"testing"

	"github.com/google/uuid"
)

func TestChunkID(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  string
	}{
		{"annual-report-2023.pdf", 0, "annual-report-2023_chunk_0"},
		{"annual-report-2023.pdf", 12, "annual-report-2023_chunk_12"},
		{"/work/docs/minutes.PDF", 3, "minutes_chunk_3"},
		{"notes", 1, "notes_chunk_1"},
	}
	for _, tt := range tests {
		if got := ChunkID(tt.name, tt.index); got != tt.want {
			t.Errorf("ChunkID(%q, %d) = %q, want %q", tt.name, tt.index, got, tt.want)
		}
	}
}

func TestPointUUID(t *testing.T) {
	a := PointUUID("report_chunk_0")
	if a != PointUUID("report_chunk_0") {
		t.Error("same chunk id should give the same uuid")
	}
	if a == PointUUID("report_chunk_1") {
		t.Error("different chunk ids should give different uuids")
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("not a uuid: %q", a)
	}
	if u.Version() != 5 {
		t.Errorf("version = %d, want 5", u.Version())
	}
}

func TestContentHash(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := ContentHash([]byte("abc")); got != want {
		t.Errorf("ContentHash = %s", got)
	}
}
