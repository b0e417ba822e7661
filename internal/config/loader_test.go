package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig points HOME at a temp dir and writes a config file
// there so the allowed-directory check passes.
func writeTestConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "lexrag")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "~/.config/lexrag/cases", cfg.Storage.BasePath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 800, cfg.Chunker.MaxChunkSize)
	assert.Equal(t, 100, cfg.Chunker.OverlapSize)
	assert.Equal(t, 20, cfg.Chunker.MinChunkSize)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.15, cfg.Retrieval.MinRelevance, 1e-9)
	assert.Equal(t, 4, cfg.Retrieval.MaxPerCategory)
	assert.Equal(t, 30, cfg.Namespace.RetentionDays)
}

func TestLoadFromFile(t *testing.T) {
	path := writeTestConfig(t, `
storage:
  base_path: /data/cases
logging:
  level: debug
  format: console
retrieval:
  top_k: 10
embeddings:
  provider: hash
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/cases", cfg.Storage.BasePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	// Unset fields still get defaults.
	assert.Equal(t, 800, cfg.Chunker.MaxChunkSize)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTestConfig(t, `
retrieval:
  top_k: 10
`, 0600)

	t.Setenv("RETRIEVAL_TOP_K", "7")
	t.Setenv("STORAGE_BASE_PATH", "/env/cases")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, "/env/cases", cfg.Storage.BasePath)
}

func TestLoadRejectsWorldReadableFile(t *testing.T) {
	path := writeTestConfig(t, "logging:\n  level: info\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadRejectsPathOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0600))

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad log level",
			yaml:    "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad provider",
			yaml:    "embeddings:\n  provider: openai\n",
			wantErr: "embeddings.provider",
		},
		{
			name:    "negative relevance",
			yaml:    "retrieval:\n  min_relevance: -0.5\n",
			wantErr: "retrieval.min_relevance",
		},
		{
			name:    "overlap too large",
			yaml:    "chunker:\n  max_chunk_size: 100\n  overlap_size: 200\n",
			wantErr: "chunker.overlap_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestConfig(t, tt.yaml, 0600)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTEIRequiresURL(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Embeddings.Provider = "tei"
	cfg.Embeddings.BaseURL = "not-a-url"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embeddings.base_url")
}
