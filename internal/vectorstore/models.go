package vectorstore

// Record is a stored unit: content, its precomputed vector and metadata.
type Record struct {
	// ID is the unique identifier within the collection.
	ID string

	// Content is the text the vector was computed from.
	Content string

	// Vector is the precomputed embedding. Length must match the store's
	// configured vector size.
	Vector []float32

	// Metadata contains additional key-value pairs.
	// Common fields: category, priority, source, confidence.
	Metadata map[string]interface{}
}

// SearchResult is a record returned from similarity search.
type SearchResult struct {
	// ID is the record identifier.
	ID string

	// Content is the record text content.
	Content string

	// Score is the cosine similarity to the query vector (higher = closer).
	Score float32

	// Vector is the stored embedding.
	Vector []float32

	// Metadata contains the record metadata.
	Metadata map[string]interface{}
}
