// Package retriever classifies queries and ranks candidate chunks with a
// weighted multi-factor score, then diversifies the top results.
package retriever

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
	"github.com/fyrsmithlabs/lexrag/internal/embeddings"
)

// Scoring weights. Similarity dominates; the type boost is additive on
// top of the weighted sum and may push a score past 1 before clamping.
const (
	weightSimilarity = 0.40
	weightConcept    = 0.25
	weightCategory   = 0.20
	weightContext    = 0.10

	// completeMatchBonus rewards a chunk covering every required concept.
	completeMatchBonus = 0.2
)

// Config holds configuration for the Retriever.
type Config struct {
	// TopK is the default number of results. Default: 5
	TopK int

	// MinRelevance excludes chunks scoring below it. Default: 0.15
	MinRelevance float64

	// MaxPerCategory caps results per category before backfill. Default: 4
	MaxPerCategory int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MinRelevance == 0 {
		c.MinRelevance = 0.15
	}
	if c.MaxPerCategory == 0 {
		c.MaxPerCategory = 4
	}
}

// QueryContext is the classified, concept-annotated form of a query.
// It exists for the duration of one retrieval call.
type QueryContext struct {
	// Query is the raw query text.
	Query string

	// Type is the classified query intent.
	Type QueryType

	// RequiredConcepts are domain concepts extracted from the query.
	RequiredConcepts []string

	// PreferredCategories, most preferred first, come from the type table.
	PreferredCategories []chunker.Category

	// CaseConcepts are concepts already known for the case, used for the
	// context-overlap bonus.
	CaseConcepts []string
}

// Candidate is a chunk under consideration, with its stored vector.
type Candidate struct {
	Chunk      chunker.Chunk
	Vector     []float32
	Confidence float64
}

// SubScores are the components behind a result's total score.
type SubScores struct {
	Similarity float64 `json:"similarity"`
	Concept    float64 `json:"concept"`
	Category   float64 `json:"category"`
	Context    float64 `json:"context"`
	TypeBoost  float64 `json:"type_boost"`
}

// Result is a scored candidate with its final rank.
type Result struct {
	Candidate Candidate
	Score     float64
	SubScores SubScores
	Rank      int
}

// Retriever scores and ranks candidates for classified queries.
type Retriever struct {
	config Config
	logger *zap.Logger
}

// New creates a Retriever.
func New(config Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Retriever{config: config, logger: logger}
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config {
	return r.config
}

// Classify builds the QueryContext for a query. caseConcepts may be nil.
func (r *Retriever) Classify(query string, caseConcepts []string) QueryContext {
	qtype := classifyQuery(query)
	return QueryContext{
		Query:               query,
		Type:                qtype,
		RequiredConcepts:    chunker.ExtractConcepts(query),
		PreferredCategories: preferredCategories[qtype],
		CaseConcepts:        caseConcepts,
	}
}

// Score computes the weighted relevance of a candidate for a query.
func (r *Retriever) Score(qctx QueryContext, queryVec []float32, cand Candidate) (float64, SubScores) {
	sub := SubScores{
		Similarity: similarityScore(queryVec, cand.Vector),
		Concept:    conceptScore(qctx.RequiredConcepts, cand.Chunk.Concepts),
		Category:   categoryScore(qctx.Type, cand.Chunk.Category),
		Context:    contextScore(qctx, cand.Chunk),
		TypeBoost:  categoryBoost(qctx.Type, cand.Chunk.Category),
	}

	total := weightSimilarity*sub.Similarity +
		weightConcept*sub.Concept +
		weightCategory*sub.Category +
		weightContext*sub.Context +
		sub.TypeBoost

	if total > 1 {
		total = 1
	}
	if total < 0 {
		total = 0
	}
	return total, sub
}

// Retrieve scores all candidates, drops those below minRelevance, ranks
// the rest by score (ties keep input order) and returns the diversified
// top-K. minRelevance <= 0 uses the configured default; topK <= 0 uses
// the configured default.
func (r *Retriever) Retrieve(qctx QueryContext, queryVec []float32, candidates []Candidate, topK int, minRelevance float64) []Result {
	if topK <= 0 {
		topK = r.config.TopK
	}
	if minRelevance <= 0 {
		minRelevance = r.config.MinRelevance
	}

	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		score, sub := r.Score(qctx, queryVec, cand)
		if score < minRelevance {
			continue
		}
		results = append(results, Result{Candidate: cand, Score: score, SubScores: sub})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	results = r.Diversify(results, topK)

	for i := range results {
		results[i].Rank = i + 1
	}

	r.logger.Debug("retrieved results",
		zap.String("query_type", string(qctx.Type)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results
}

// Diversify caps the number of results per category by walking the
// ranked list, then backfills with the best-scoring held-back results if
// the capped set falls short of topK. The final set is ordered by score
// descending regardless of which pass admitted each result.
func (r *Retriever) Diversify(ranked []Result, topK int) []Result {
	if topK <= 0 {
		topK = r.config.TopK
	}

	perCategory := make(map[chunker.Category]int)
	kept := make([]Result, 0, topK)
	var heldBack []Result

	for _, res := range ranked {
		if len(kept) == topK {
			break
		}
		cat := res.Candidate.Chunk.Category
		if perCategory[cat] >= r.config.MaxPerCategory {
			heldBack = append(heldBack, res)
			continue
		}
		perCategory[cat]++
		kept = append(kept, res)
	}

	// heldBack is already score-ordered since ranked was.
	for _, res := range heldBack {
		if len(kept) == topK {
			break
		}
		kept = append(kept, res)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	return kept
}

// similarityScore maps cosine similarity to [0, 1]; negative similarity
// contributes nothing rather than subtracting from other factors.
func similarityScore(queryVec, vec []float32) float64 {
	sim := embeddings.Similarity(queryVec, vec)
	if sim < 0 {
		return 0
	}
	return sim
}

// conceptScore is the matched/required ratio plus a complete-match
// bonus, capped at 1 so the factor stays inside its weight budget. No
// required concepts means this factor cannot discriminate; it scores 0
// for every candidate alike.
func conceptScore(required, have []string) float64 {
	if len(required) == 0 {
		return 0
	}

	haveSet := make(map[string]struct{}, len(have))
	for _, c := range have {
		haveSet[c] = struct{}{}
	}

	matched := 0
	for _, c := range required {
		if _, ok := haveSet[c]; ok {
			matched++
		}
	}

	score := float64(matched) / float64(len(required))
	if matched == len(required) {
		score += completeMatchBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// contextScore combines chunk priority, citation density and case-concept
// overlap into a 0..0.7 bonus.
func contextScore(qctx QueryContext, chunk chunker.Chunk) float64 {
	score := float64(chunk.Priority) / 10 * 0.3

	citations := 0.05 * float64(len(chunk.References))
	if citations > 0.2 {
		citations = 0.2
	}
	score += citations

	if len(qctx.CaseConcepts) > 0 {
		caseSet := make(map[string]struct{}, len(qctx.CaseConcepts))
		for _, c := range qctx.CaseConcepts {
			caseSet[c] = struct{}{}
		}
		for _, c := range chunk.Concepts {
			if _, ok := caseSet[c]; ok {
				score += 0.2
				break
			}
		}
	}
	return score
}
