// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, automatic persistence to
// gob files, exact (brute-force) cosine search. One ChromemStore is
// opened per case namespace so case data never shares an index.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore opens (or creates) a persistent store at config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Debug("chromem store opened",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedFunc is passed wherever chromem wants an embedding function.
// All vectors are precomputed by the caller, so it must never run.
// IMPORTANT: passing nil would make chromem-go fall back to its default
// OpenAI embedder for persisted collections.
func noEmbedFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("store holds precomputed vectors only, refusing to embed %q", text)
}

func (s *ChromemStore) getOrCreateCollection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, noEmbedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return collection, nil
}

func (s *ChromemStore) getCollection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	collection := s.db.GetCollection(name, noEmbedFunc)
	if collection == nil {
		return nil, ErrCollectionNotFound
	}
	return collection, nil
}

// Upsert writes records into a collection, creating it if needed.
func (s *ChromemStore) Upsert(ctx context.Context, collectionName string, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, ErrEmptyRecords
	}

	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("record at index %d has no ID", i)
		}
		if len(rec.Vector) != s.config.VectorSize {
			return nil, fmt.Errorf("%w: record %s has dimension %d, store expects %d",
				ErrDimensionMismatch, rec.ID, len(rec.Vector), s.config.VectorSize)
		}
	}

	collection, err := s.getOrCreateCollection(collectionName)
	if err != nil {
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		chromemDocs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Metadata:  convertMetadataToString(rec.Metadata),
			Embedding: rec.Vector,
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, fmt.Errorf("adding records to %s: %w", collectionName, err)
	}

	s.logger.Debug("upserted records",
		zap.String("collection", collectionName),
		zap.Int("count", len(records)),
	)

	return ids, nil
}

// ReplaceCollection swaps a collection's contents for the given records.
// An empty batch leaves an existing empty collection behind.
func (s *ChromemStore) ReplaceCollection(ctx context.Context, collectionName string, records []Record) error {
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	if s.db.GetCollection(collectionName, noEmbedFunc) != nil {
		if err := s.db.DeleteCollection(collectionName); err != nil {
			return fmt.Errorf("deleting collection %s: %w", collectionName, err)
		}
	}

	if _, err := s.getOrCreateCollection(collectionName); err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	if _, err := s.Upsert(ctx, collectionName, records); err != nil {
		return err
	}

	s.logger.Debug("replaced collection",
		zap.String("collection", collectionName),
		zap.Int("count", len(records)),
	)
	return nil
}

// GetAll returns every record in a collection.
//
// chromem has no scan API, so this queries with a fixed unit vector and
// k equal to the collection size. chromem search is exact, so every
// record comes back, vectors included.
func (s *ChromemStore) GetAll(ctx context.Context, collectionName string) ([]Record, error) {
	collection, err := s.getCollection(collectionName)
	if err != nil {
		return nil, err
	}

	count := collection.Count()
	if count == 0 {
		return []Record{}, nil
	}

	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", collectionName, err)
	}

	records := make([]Record, len(results))
	for i, r := range results {
		records[i] = Record{
			ID:       r.ID,
			Content:  r.Content,
			Vector:   r.Embedding,
			Metadata: convertMetadataFromString(r.Metadata),
		}
	}
	return records, nil
}

// Search returns up to k records nearest to the query vector.
func (s *ChromemStore) Search(ctx context.Context, collectionName string, vector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection, err := s.getCollection(collectionName)
	if err != nil {
		return nil, err
	}

	// chromem requires nResults <= record count.
	count := collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Vector:   r.Embedding,
			Metadata: convertMetadataFromString(r.Metadata),
		}
	}

	s.logger.Debug("searched collection",
		zap.String("collection", collectionName),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}
	return s.db.GetCollection(collectionName, noEmbedFunc) != nil, nil
}

// DeleteCollection deletes a collection and all its records.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collectionName string) error {
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	s.logger.Debug("deleted collection", zap.String("collection", collectionName))
	return nil
}

// ListCollections returns all collection names in this store.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	collectionsMap := s.db.ListCollections()
	names := make([]string, 0, len(collectionsMap))
	for name := range collectionsMap {
		names = append(names, name)
	}
	return names, nil
}

// Count returns the number of records in a collection.
func (s *ChromemStore) Count(ctx context.Context, collectionName string) (int, error) {
	collection, err := s.getCollection(collectionName)
	if err != nil {
		return 0, err
	}
	return collection.Count(), nil
}

// Close closes the store.
// chromem-go persists on write, so there is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// convertMetadataToString converts map[string]interface{} to map[string]string.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts map[string]string back to map[string]interface{}.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
