// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates an empty or nil record batch.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch indicates a vector of unexpected dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidateCollectionName checks that a collection name is non-empty,
// starts alphanumeric and contains only alphanumerics, underscores and
// hyphens, at most 64 characters.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}

// Store is the interface for vector storage operations.
//
// Vectors are computed by the caller and stored alongside content; the
// store never embeds text itself. One Store instance backs one case
// namespace, with a collection per ingested source.
//
// Collection naming convention: case_{id}_{source}
// (e.g. case_0001234_peticao_inicial).
type Store interface {
	// Upsert writes records into a collection, creating it if needed.
	// Records carry precomputed vectors; writing a record with an ID that
	// already exists replaces it. Returns the stored IDs.
	Upsert(ctx context.Context, collection string, records []Record) ([]string, error)

	// ReplaceCollection atomically swaps a collection's contents for the
	// given records. Used on re-ingest so stale chunks never survive.
	ReplaceCollection(ctx context.Context, collection string, records []Record) error

	// GetAll returns every record in a collection, vectors included.
	// An existing empty collection yields an empty slice, not an error.
	GetAll(ctx context.Context, collection string) ([]Record, error)

	// Search returns up to k records nearest to the query vector, ordered
	// by cosine similarity descending. Retrieval loads whole collections
	// via GetAll and ranks candidates in-process; Search serves direct
	// nearest-neighbour lookups against a single collection.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]SearchResult, error)

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// DeleteCollection deletes a collection and all its records.
	DeleteCollection(ctx context.Context, collection string) error

	// ListCollections returns all collection names in this store.
	ListCollections(ctx context.Context) ([]string, error)

	// Count returns the number of records in a collection.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases store resources.
	Close() error
}
