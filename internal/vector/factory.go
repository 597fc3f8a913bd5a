package vector

import (
	"fmt"

	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
)

// Provider names.
const (
	ProviderPinecone = config.VectorProviderPinecone
	ProviderQdrant   = config.VectorProviderQdrant
	ProviderMemory   = config.VectorProviderMemory
)

// NewStore creates the store selected by cfg.Provider. memoryPath is used by the memory provider only.
// Supported providers: "pinecone" (default), "qdrant", "memory".
func NewStore(cfg config.VectorConfig, dimensions int, memoryPath string, opts ...Option) (Store, error) {
	switch cfg.Provider {
	case ProviderPinecone, "":
		return NewPineconeStore(cfg.Pinecone.Host, cfg.Pinecone.APIKey, cfg.Pinecone.Namespace, cfg.Timeout, opts...)
	case ProviderQdrant:
		return NewQdrantStore(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, dimensions, cfg.Timeout, opts...)
	case ProviderMemory:
		return NewMemoryStore(dimensions, memoryPath)
	default:
		return nil, fmt.Errorf("%w: unknown vector provider %q (supported: pinecone, qdrant, memory)", models.ErrConfiguration, cfg.Provider)
	}
}
