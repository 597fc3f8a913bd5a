package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/tanya.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/indices/bleve"
	}
	if cfg.Storage.VectorPath == "" {
		cfg.Storage.VectorPath = "./data/indices/vectors.bin"
	}

	if cfg.Fetch.Mode == "" {
		cfg.Fetch.Mode = FetchModeScrape
	}
	if cfg.Fetch.Suffix == "" {
		cfg.Fetch.Suffix = ".pdf"
	}
	if cfg.Fetch.MaxDocuments == 0 {
		cfg.Fetch.MaxDocuments = 20
	}
	if cfg.Fetch.MaxRedirects == 0 {
		cfg.Fetch.MaxRedirects = 5
	}
	if cfg.Fetch.WorkDir == "" {
		cfg.Fetch.WorkDir = "./documents"
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 60 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "tanya-ingest/1.0"
	}

	if cfg.Extract.MinChars == 0 {
		cfg.Extract.MinChars = 100
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
	}
	if cfg.Chunking.ChunkOverlap == nil {
		cfg.Chunking.ChunkOverlap = intPtr(DefaultChunkOverlap)
	}
	if cfg.Chunking.SentenceLookback == nil {
		cfg.Chunking.SentenceLookback = intPtr(DefaultSentenceLookback)
	}
	if cfg.Chunking.WordLookback == nil {
		cfg.Chunking.WordLookback = intPtr(DefaultWordLookback)
	}
	if cfg.Chunking.Terminators == "" {
		cfg.Chunking.Terminators = ".!?"
	}

	if cfg.Ingest.MinDocumentChars == 0 {
		cfg.Ingest.MinDocumentChars = 50
	}
	if cfg.Ingest.MinChunkChars == 0 {
		cfg.Ingest.MinChunkChars = 10
	}
	if cfg.Ingest.Delay == 0 {
		cfg.Ingest.Delay = 200 * time.Millisecond
	}
	if cfg.Ingest.ErrorDelay == 0 {
		cfg.Ingest.ErrorDelay = time.Second
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingProviderOpenAI
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 8000
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}

	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = VectorProviderPinecone
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "tanya"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 15 * time.Second
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = cfg.Embedding.APIKey
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 800
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 120 * time.Second
	}

	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.InitialInterval == 0 {
		cfg.Retry.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Retry.MaxInterval == 0 {
		cfg.Retry.MaxInterval = 10 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".txt", ".md"}
	}
}

func intPtr(n int) *int {
	return &n
}
