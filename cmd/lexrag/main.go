// Package main implements the lexrag CLI for ingesting labor court case
// documents and querying them semantically.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
	"github.com/fyrsmithlabs/lexrag/internal/config"
	"github.com/fyrsmithlabs/lexrag/internal/embeddings"
	"github.com/fyrsmithlabs/lexrag/internal/engine"
	"github.com/fyrsmithlabs/lexrag/internal/logging"
	"github.com/fyrsmithlabs/lexrag/internal/namespace"
	"github.com/fyrsmithlabs/lexrag/internal/retriever"
)

var (
	// configPath overrides the default config file location
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lexrag",
	Short: "Semantic retrieval over labor court case documents",
	Long: `lexrag ingests case documents (decisions, pleadings, testimony) into
per-case isolated namespaces and answers semantic queries over them,
ranked by similarity, legal concept overlap and document structure.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/lexrag/config.yaml)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(namespaceCmd)
}

// buildEngine assembles the engine and its collaborators from config.
// The caller must Close the returned engine.
func buildEngine() (*engine.Engine, *zap.Logger, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if queryMinRelevance > 0 {
		cfg.Retrieval.MinRelevance = queryMinRelevance
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embeddings.NewService(provider, logger)
	if err != nil {
		return nil, nil, err
	}

	manager, err := namespace.NewManager(namespace.Config{
		BasePath:      cfg.Storage.BasePath,
		RetentionDays: cfg.Namespace.RetentionDays,
		VectorSize:    provider.Dimension(),
		Compress:      cfg.Storage.Compress,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(
		engine.Config{CacheSize: cfg.Retrieval.CacheSize},
		manager,
		embedder,
		chunker.New(chunker.Config{
			MaxChunkSize: cfg.Chunker.MaxChunkSize,
			OverlapSize:  cfg.Chunker.OverlapSize,
			MinChunkSize: cfg.Chunker.MinChunkSize,
			MergeRelated: cfg.Chunker.MergeRelated,
		}, logger),
		retriever.New(retriever.Config{
			TopK:           cfg.Retrieval.TopK,
			MinRelevance:   cfg.Retrieval.MinRelevance,
			MaxPerCategory: cfg.Retrieval.MaxPerCategory,
		}, logger),
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	return eng, logger, nil
}

// buildProvider creates the embedding provider, optionally wrapped with
// the deterministic hash fallback.
func buildProvider(cfg *config.Config, logger *zap.Logger) (embeddings.Provider, error) {
	primary, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	if cfg.Embeddings.HashFallback && cfg.Embeddings.Provider != "hash" {
		fallback := embeddings.NewHashProvider(primary.Dimension())
		return embeddings.NewFallbackProvider(primary, fallback, logger), nil
	}
	return primary, nil
}
