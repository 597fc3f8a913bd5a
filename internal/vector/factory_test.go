package vector

import (
	"errors"
	"testing"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VectorConfig
		want    string
		wantErr error
	}{
		{"memory", config.VectorConfig{Provider: "memory"}, "*vector.MemoryStore", nil},
		{"pinecone", config.VectorConfig{Provider: "pinecone", Pinecone: config.PineconeConfig{APIKey: "k", Host: "idx.pinecone.io"}}, "*vector.PineconeStore", nil},
		{"pinecone default", config.VectorConfig{Pinecone: config.PineconeConfig{APIKey: "k", Host: "idx"}}, "*vector.PineconeStore", nil},
		{"pinecone missing key", config.VectorConfig{Provider: "pinecone", Pinecone: config.PineconeConfig{Host: "idx"}}, "", models.ErrConfiguration},
		{"qdrant", config.VectorConfig{Provider: "qdrant", Qdrant: config.QdrantConfig{URL: "http://localhost:6333"}}, "*vector.QdrantStore", nil},
		{"qdrant missing url", config.VectorConfig{Provider: "qdrant"}, "", models.ErrConfiguration},
		{"unknown", config.VectorConfig{Provider: "faiss"}, "", models.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(tt.cfg, 3, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if got := typeName(s); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "*vector.MemoryStore"
	case *PineconeStore:
		return "*vector.PineconeStore"
	case *QdrantStore:
		return "*vector.QdrantStore"
	}
	return "unknown"
}
