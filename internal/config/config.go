// Package config provides configuration loading and structs for the tanya server and ingestion CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Extract    ExtractConfig    `yaml:"extract"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Generation GenerationConfig `yaml:"generation"`
	Query      QueryConfig      `yaml:"query"`
	Retry      RetryConfig      `yaml:"retry"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the ingestion ledger and local indices.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// VectorPath is where the memory vector store is persisted. Unused by remote providers.
	VectorPath string `yaml:"vector_path"`
}

// Fetch modes.
const (
	FetchModeScrape = "scrape" // listing page, then backup list
	FetchModeFixed  = "fixed"  // backup list only
	FetchModeLocal  = "local"  // files already in the work directory
)

// FetchConfig controls where documents come from.
type FetchConfig struct {
	Mode         string        `yaml:"mode"`
	ListingURL   string        `yaml:"listing_url"`
	Suffix       string        `yaml:"suffix"`
	PathPrefix   string        `yaml:"path_prefix"`
	MaxDocuments int           `yaml:"max_documents"`
	MaxRedirects int           `yaml:"max_redirects"`
	BackupURLs   []string      `yaml:"backup_urls"`
	WorkDir      string        `yaml:"work_dir"`
	IncludeLocal *bool         `yaml:"include_local"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// IncludeLocalOrDefault reports whether manually placed files are ingested; defaults to true when unset.
func (f *FetchConfig) IncludeLocalOrDefault() bool {
	if f.IncludeLocal != nil {
		return *f.IncludeLocal
	}
	return true
}

// ExtractConfig controls text extraction.
type ExtractConfig struct {
	MinChars int `yaml:"min_chars"`
	// StubOnSparse prepends a metadata stub to image-only documents instead of dropping them.
	StubOnSparse *bool `yaml:"stub_on_sparse"`
}

// StubOnSparseOrDefault defaults to true when unset.
func (e *ExtractConfig) StubOnSparseOrDefault() bool {
	if e.StubOnSparse != nil {
		return *e.StubOnSparse
	}
	return true
}

// Chunking defaults, in characters.
const (
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultSentenceLookback = 100
	DefaultWordLookback     = 50
)

// ChunkingConfig holds chunk window and boundary search settings (in characters).
// Overlap and lookbacks are pointers so an explicit 0 disables them instead of selecting the default.
type ChunkingConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     *int   `yaml:"chunk_overlap"`
	SentenceLookback *int   `yaml:"sentence_lookback"`
	WordLookback     *int   `yaml:"word_lookback"`
	Terminators      string `yaml:"terminators"`
}

// OverlapOrDefault returns chunk_overlap, or DefaultChunkOverlap when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	return intOr(c.ChunkOverlap, DefaultChunkOverlap)
}

// SentenceLookbackOrDefault returns sentence_lookback, or DefaultSentenceLookback when unset.
func (c *ChunkingConfig) SentenceLookbackOrDefault() int {
	return intOr(c.SentenceLookback, DefaultSentenceLookback)
}

// WordLookbackOrDefault returns word_lookback, or DefaultWordLookback when unset.
func (c *ChunkingConfig) WordLookbackOrDefault() int {
	return intOr(c.WordLookback, DefaultWordLookback)
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

// IngestConfig holds ingestion thresholds and pacing.
type IngestConfig struct {
	MinDocumentChars int           `yaml:"min_document_chars"`
	MinChunkChars    int           `yaml:"min_chunk_chars"`
	Delay            time.Duration `yaml:"delay"`
	ErrorDelay       time.Duration `yaml:"error_delay"`
}

// Embedding providers.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderHash   = "hash"
)

// EmbeddingConfig holds embedding client settings.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	MaxInputChars int           `yaml:"max_input_chars"`
	CacheSize     int           `yaml:"cache_size"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Vector store providers.
const (
	VectorProviderPinecone = "pinecone"
	VectorProviderQdrant   = "qdrant"
	VectorProviderMemory   = "memory"
)

// VectorConfig selects and configures the vector store.
type VectorConfig struct {
	Provider string         `yaml:"provider"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Timeout  time.Duration  `yaml:"timeout"`
}

// PineconeConfig holds Pinecone data-plane settings. Host is the index host (https://<index>-<project>.svc...).
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	IndexName string `yaml:"index_name"`
	Namespace string `yaml:"namespace"`
}

// QdrantConfig holds Qdrant REST settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// GenerationConfig holds chat-completion client settings.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// QueryConfig holds retrieval settings.
type QueryConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// RetryConfig is the retry policy shared by all remote clients.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// WatchConfig holds drop-folder watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults and environment overrides,
// and expands paths. An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup LookupFunc) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	ApplyEnv(&cfg, lookup)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorPath = expandPath(cfg.Storage.VectorPath, configDir)
	cfg.Fetch.WorkDir = expandPath(cfg.Fetch.WorkDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" or "../" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
			return abs
		}
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
