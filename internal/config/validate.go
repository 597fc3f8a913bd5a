package config

import (
	"fmt"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
)

// ValidateIngest checks the settings the ingestion pipeline needs. Missing credentials return ErrConfiguration.
func (c *Config) ValidateIngest() error {
	var problems []string
	problems = append(problems, c.embeddingProblems()...)
	problems = append(problems, c.vectorProblems()...)
	if overlap := c.Chunking.OverlapOrDefault(); overlap >= c.Chunking.ChunkSize {
		problems = append(problems, fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, c.Chunking.ChunkSize))
	}
	switch c.Fetch.Mode {
	case FetchModeScrape:
		if c.Fetch.ListingURL == "" && len(c.Fetch.BackupURLs) == 0 && !c.Fetch.IncludeLocalOrDefault() {
			problems = append(problems, "fetch: listing_url or backup_urls is required in scrape mode")
		}
	case FetchModeFixed:
		if len(c.Fetch.BackupURLs) == 0 {
			problems = append(problems, "fetch: backup_urls is required in fixed mode")
		}
	case FetchModeLocal:
	default:
		problems = append(problems, fmt.Sprintf("fetch: unknown mode %q (supported: scrape, fixed, local)", c.Fetch.Mode))
	}
	return asConfigError(problems)
}

// ValidateQuery checks the settings the question-answering path needs, generation included.
func (c *Config) ValidateQuery() error {
	problems := c.retrievalProblems()
	if c.Generation.APIKey == "" {
		problems = append(problems, "generation: api key is required (CHAT_API_KEY or OPENAI_API_KEY)")
	}
	return asConfigError(problems)
}

// ValidateRetrieval checks the settings needed to embed a question and search the index.
// The server starts with these alone and reports a missing chat key per request.
func (c *Config) ValidateRetrieval() error {
	return asConfigError(c.retrievalProblems())
}

func (c *Config) retrievalProblems() []string {
	var problems []string
	problems = append(problems, c.embeddingProblems()...)
	problems = append(problems, c.vectorProblems()...)
	if c.Query.TopK <= 0 {
		problems = append(problems, "query: top_k must be positive")
	}
	return problems
}

func (c *Config) embeddingProblems() []string {
	var problems []string
	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI:
		if c.Embedding.APIKey == "" {
			problems = append(problems, "embedding: OPENAI_API_KEY is required")
		}
	case EmbeddingProviderHash:
	default:
		problems = append(problems, fmt.Sprintf("embedding: unknown provider %q (supported: openai, hash)", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding: dimensions must be positive")
	}
	return problems
}

func (c *Config) vectorProblems() []string {
	var problems []string
	switch c.Vector.Provider {
	case VectorProviderPinecone:
		if c.Vector.Pinecone.APIKey == "" {
			problems = append(problems, "vector: PINECONE_API_KEY is required")
		}
		if c.Vector.Pinecone.Host == "" {
			problems = append(problems, "vector: PINECONE_INDEX_HOST is required")
		}
	case VectorProviderQdrant:
		if c.Vector.Qdrant.URL == "" {
			problems = append(problems, "vector: QDRANT_URL is required")
		}
	case VectorProviderMemory:
	default:
		problems = append(problems, fmt.Sprintf("vector: unknown provider %q (supported: pinecone, qdrant, memory)", c.Vector.Provider))
	}
	return problems
}

func asConfigError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(problems, "; "))
}
