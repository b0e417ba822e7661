package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
)

// Record pairs a text with its vector and derived metadata.
type Record struct {
	// Text is the preprocessed text the vector was computed from.
	Text string

	// Vector is the unit-length embedding. Nil when embedding failed for
	// this item in a batch.
	Vector []float32

	// Category is the semantic category detected in the text.
	Category chunker.Category

	// Concepts are the domain concepts detected in the text.
	Concepts []string

	// Confidence is an advisory trust score in [0.1, 1]. It adjusts
	// downstream ranking but never gates inclusion.
	Confidence float64
}

// batchParallelism bounds per-item embedding when a batch call degrades.
const batchParallelism = 4

// Service turns text into Records: it preprocesses, delegates vector
// computation to a Provider, normalizes the result and attaches derived
// metadata.
type Service struct {
	provider Provider
	logger   *zap.Logger
}

// NewService creates a Service on top of the given provider.
func NewService(provider Provider, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, logger: logger}, nil
}

// Dimension returns the provider's embedding dimension.
func (s *Service) Dimension() int {
	return s.provider.Dimension()
}

// Close releases the underlying provider.
func (s *Service) Close() error {
	return s.provider.Close()
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	artAbbrevRe  = regexp.MustCompile(`(?i)\bart\s*\.\s*(\d)`)
	ordinalRe    = regexp.MustCompile(`(\d)\s*(?:[º°]|o\b)`)
	structureRe  = regexp.MustCompile(`(?m)^\s*(?:[A-ZÀ-Þ][A-ZÀ-Þ\s]{5,}$|\d+[.)]\s+\S|[IVXLC]+\s*[-–.)]\s+\S)`)
)

// Preprocess collapses whitespace and canonicalizes statute markers so
// formatting variants of the same text map to the same vector.
func Preprocess(text string) string {
	// Structural cues are detected before line breaks collapse.
	text = artAbbrevRe.ReplaceAllString(text, "artigo $1")
	text = ordinalRe.ReplaceAllString(text, "${1}º")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Embed produces a Record for a single text, typically a query.
func (s *Service) Embed(ctx context.Context, text string) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return Record{}, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	hasStructure := structureRe.MatchString(text)
	processed := Preprocess(text)

	vector, err := s.provider.EmbedQuery(ctx, processed)
	if err != nil {
		return Record{}, err
	}

	return s.buildRecord(processed, vector, hasStructure), nil
}

// EmbedBatch produces Records for a batch of texts, order-preserving.
//
// It first attempts one provider batch call. If that fails, it degrades
// to bounded-parallel per-item embedding so one poisoned text cannot sink
// the batch. Items that still fail come back with a nil Vector, and the
// joined per-item errors are returned alongside the partial results.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]Record, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	hasStructure := make([]bool, len(texts))
	processed := make([]string, len(texts))
	for i, text := range texts {
		hasStructure[i] = structureRe.MatchString(text)
		processed[i] = Preprocess(text)
	}

	records := make([]Record, len(texts))

	vectors, err := s.provider.EmbedDocuments(ctx, processed)
	if err == nil && len(vectors) == len(texts) {
		for i := range texts {
			records[i] = s.buildRecord(processed[i], vectors[i], hasStructure[i])
		}
		return records, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.Warn("batch embedding failed, degrading to per-item",
		zap.Int("texts", len(texts)),
		zap.Error(err),
	)

	itemErrs := make([]error, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i := range texts {
		i := i
		g.Go(func() error {
			vector, itemErr := s.provider.EmbedQuery(gctx, processed[i])
			if itemErr != nil {
				// Scoped to this item; siblings keep going.
				itemErrs[i] = fmt.Errorf("text %d: %w", i, itemErr)
				records[i] = Record{Text: processed[i]}
				return nil
			}
			records[i] = s.buildRecord(processed[i], vector, hasStructure[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return records, ctx.Err()
	}

	return records, errors.Join(itemErrs...)
}

// buildRecord normalizes the vector and derives metadata for a text.
func (s *Service) buildRecord(text string, vector []float32, hasStructure bool) Record {
	rawMagnitude := magnitude(vector)
	normalize(vector, rawMagnitude)

	concepts := chunker.ExtractConcepts(text)

	return Record{
		Text:       text,
		Vector:     vector,
		Category:   chunker.Classify(text),
		Concepts:   concepts,
		Confidence: confidence(text, concepts, hasStructure, rawMagnitude),
	}
}

// confidence is the advisory trust heuristic: base 0.5, up to +0.3 for
// concept density, +0.1 for structural cues, -0.2 for very short text,
// +0.1 when the raw vector magnitude is sane. Clamped to [0.1, 1].
func confidence(text string, concepts []string, hasStructure bool, rawMagnitude float64) float64 {
	c := 0.5

	conceptBoost := 0.1 * float64(len(concepts))
	if conceptBoost > 0.3 {
		conceptBoost = 0.3
	}
	c += conceptBoost

	if hasStructure {
		c += 0.1
	}

	if len(text) < 50 {
		c -= 0.2
	}

	if math.Abs(rawMagnitude-1) < 0.1 {
		c += 0.1
	}

	if c > 1 {
		c = 1
	}
	if c < 0.1 {
		c = 0.1
	}
	return c
}

// Similarity returns cosine similarity in [-1, 1] with a small upward
// adjustment when both vectors are near unit magnitude.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, sumA, sumB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		sumA += float64(a[i]) * float64(a[i])
		sumB += float64(b[i]) * float64(b[i])
	}
	if sumA == 0 || sumB == 0 {
		return 0
	}

	magA, magB := math.Sqrt(sumA), math.Sqrt(sumB)
	sim := dot / (magA * magB)

	if math.Abs(magA-1) < 0.05 && math.Abs(magB-1) < 0.05 {
		sim += 0.05
	}

	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normalize scales v to unit length in place. Zero vectors are left as-is.
func normalize(v []float32, mag float64) {
	if mag == 0 || mag == 1 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
}
