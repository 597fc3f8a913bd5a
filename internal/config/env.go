package config

import (
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables on cfg. Call before ApplyDefaults so unset keys still get defaults.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
				*dst = d
			}
		}
	}

	if v, ok := lookup("TANYA_DEBUG"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = b
		}
	}
	str("TANYA_HOST", &cfg.Server.Host)
	num("TANYA_PORT", &cfg.Server.Port)
	str("TANYA_DATABASE_PATH", &cfg.Storage.DatabasePath)

	str("TANYA_FETCH_MODE", &cfg.Fetch.Mode)
	str("TANYA_LISTING_URL", &cfg.Fetch.ListingURL)
	str("TANYA_PATH_PREFIX", &cfg.Fetch.PathPrefix)
	num("TANYA_MAX_DOCUMENTS", &cfg.Fetch.MaxDocuments)
	str("TANYA_WORK_DIR", &cfg.Fetch.WorkDir)
	if v, ok := lookup("TANYA_BACKUP_URLS"); ok && strings.TrimSpace(v) != "" {
		cfg.Fetch.BackupURLs = splitList(v)
	}

	num("TANYA_CHUNK_SIZE", &cfg.Chunking.ChunkSize)
	if v, ok := lookup("TANYA_CHUNK_OVERLAP"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Chunking.ChunkOverlap = &n
		}
	}
	dur("TANYA_INGEST_DELAY", &cfg.Ingest.Delay)
	dur("TANYA_INGEST_ERROR_DELAY", &cfg.Ingest.ErrorDelay)

	str("EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("OPENAI_BASE_URL", &cfg.Embedding.BaseURL)
	str("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	num("EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)

	str("VECTOR_PROVIDER", &cfg.Vector.Provider)
	str("PINECONE_API_KEY", &cfg.Vector.Pinecone.APIKey)
	str("PINECONE_INDEX_HOST", &cfg.Vector.Pinecone.Host)
	str("PINECONE_INDEX_NAME", &cfg.Vector.Pinecone.IndexName)
	str("PINECONE_NAMESPACE", &cfg.Vector.Pinecone.Namespace)
	str("QDRANT_URL", &cfg.Vector.Qdrant.URL)
	str("QDRANT_API_KEY", &cfg.Vector.Qdrant.APIKey)
	str("QDRANT_COLLECTION", &cfg.Vector.Qdrant.Collection)

	str("CHAT_BASE_URL", &cfg.Generation.BaseURL)
	str("CHAT_API_KEY", &cfg.Generation.APIKey)
	str("CHAT_MODEL", &cfg.Generation.Model)

	num("TANYA_TOP_K", &cfg.Query.TopK)
	num("TANYA_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
