package config

import (
	"fmt"
	"strings"
)

// Config is the full application configuration.
type Config struct {
	Storage    StorageConfig    `koanf:"storage"`
	Logging    LoggingConfig    `koanf:"logging"`
	Chunker    ChunkerConfig    `koanf:"chunker"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Namespace  NamespaceConfig  `koanf:"namespace"`
}

// StorageConfig configures the on-disk case store.
type StorageConfig struct {
	// BasePath is the root directory under which case namespaces live.
	BasePath string `koanf:"base_path"`
	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
}

// ChunkerConfig configures document segmentation.
type ChunkerConfig struct {
	MaxChunkSize int  `koanf:"max_chunk_size"`
	OverlapSize  int  `koanf:"overlap_size"`
	MinChunkSize int  `koanf:"min_chunk_size"`
	MergeRelated bool `koanf:"merge_related"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of fastembed, tei, hash.
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is the TEI server address, used only when Provider is tei.
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	// Dimension overrides the dimension detected from the model name.
	Dimension int `koanf:"dimension"`
	// HashFallback degrades to deterministic hash vectors when the
	// primary provider is unavailable instead of failing the call.
	HashFallback bool `koanf:"hash_fallback"`
}

// RetrievalConfig configures query ranking.
type RetrievalConfig struct {
	TopK           int     `koanf:"top_k"`
	MinRelevance   float64 `koanf:"min_relevance"`
	MaxPerCategory int     `koanf:"max_per_category"`
	// CacheSize is the number of chunk sets kept warm between queries.
	CacheSize int `koanf:"cache_size"`
}

// NamespaceConfig configures case namespace lifecycle.
type NamespaceConfig struct {
	// RetentionDays is how long a namespace is protected from reclaim.
	RetentionDays int `koanf:"retention_days"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProviders = map[string]bool{
	"fastembed": true,
	"tei":       true,
	"hash":      true,
}

// Validate checks the configuration for invalid values. Defaults must be
// applied first.
func (c *Config) Validate() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q (expected debug, info, warn or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging.format %q (expected json or console)", c.Logging.Format)
	}

	if !validProviders[c.Embeddings.Provider] {
		return fmt.Errorf("invalid embeddings.provider %q (expected fastembed, tei or hash)", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "tei" && !strings.HasPrefix(c.Embeddings.BaseURL, "http") {
		return fmt.Errorf("embeddings.base_url must be an http(s) URL when using the tei provider, got %q", c.Embeddings.BaseURL)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings.dimension must be non-negative, got %d", c.Embeddings.Dimension)
	}

	if c.Chunker.MaxChunkSize < c.Chunker.MinChunkSize {
		return fmt.Errorf("chunker.max_chunk_size (%d) must be at least chunker.min_chunk_size (%d)",
			c.Chunker.MaxChunkSize, c.Chunker.MinChunkSize)
	}
	if c.Chunker.OverlapSize >= c.Chunker.MaxChunkSize {
		return fmt.Errorf("chunker.overlap_size (%d) must be smaller than chunker.max_chunk_size (%d)",
			c.Chunker.OverlapSize, c.Chunker.MaxChunkSize)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinRelevance < 0 || c.Retrieval.MinRelevance > 1 {
		return fmt.Errorf("retrieval.min_relevance must be in [0, 1], got %f", c.Retrieval.MinRelevance)
	}
	if c.Retrieval.MaxPerCategory <= 0 {
		return fmt.Errorf("retrieval.max_per_category must be positive, got %d", c.Retrieval.MaxPerCategory)
	}

	if c.Namespace.RetentionDays < 0 {
		return fmt.Errorf("namespace.retention_days must be non-negative, got %d", c.Namespace.RetentionDays)
	}

	return nil
}
