package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// HashProvider is a deterministic, model-free embedding provider.
//
// It hashes word unigrams and bigrams into a fixed-size vector and
// normalizes the result to unit length. Vectors have no semantic
// understanding, but identical texts map to identical vectors and
// token overlap yields higher cosine similarity, which is enough to
// keep retrieval functioning when no real model is reachable. It also
// backs tests that need embeddings without model downloads.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash provider. dimension defaults to 384
// so vectors stay interchangeable with the default FastEmbed model.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vectors[i] = p.vectorize(text)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.vectorize(text), nil
}

// Dimension returns the embedding dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

func (p *HashProvider) vectorize(text string) []float32 {
	vec := make([]float32, p.dimension)

	tokens := strings.Fields(strings.ToLower(text))
	for i, tok := range tokens {
		p.accumulate(vec, tok)
		if i+1 < len(tokens) {
			p.accumulate(vec, tok+" "+tokens[i+1])
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		// Whitespace-only text still gets a valid unit vector.
		vec[0] = 1
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (p *HashProvider) accumulate(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(p.dimension))
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

var _ Provider = (*HashProvider)(nil)
