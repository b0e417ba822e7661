package retriever

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	return New(Config{}, zap.NewNop())
}

func TestClassifyQueryTypes(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"qual a jurisprudência aplicável às horas extras?", QueryCaselaw},
		{"há súmula sobre intervalo intrajornada?", QueryCaselaw},
		{"o que as testemunhas disseram sobre a jornada?", QueryFacts},
		{"qual o fundamento legal do adicional noturno?", QueryLegalBasis},
		{"qual a estrutura de uma sentença trabalhista?", QueryStructure},
		{"qual o estilo de redação da fundamentação?", QueryStyle},
		{"qual o prazo para recurso ordinário?", QueryProcedure},
		{"me fale sobre o caso", QueryGeneral},
		{"", QueryGeneral},
	}

	r := newTestRetriever(t)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qctx := r.Classify(tt.query, nil)
			assert.Equal(t, tt.want, qctx.Type)
			assert.Equal(t, preferredCategories[tt.want], qctx.PreferredCategories)
		})
	}
}

func TestClassifyExtractsConcepts(t *testing.T) {
	r := newTestRetriever(t)

	qctx := r.Classify("como ficam as horas extras e o fgts?", []string{"dano moral"})
	assert.Contains(t, qctx.RequiredConcepts, "horas extras")
	assert.Contains(t, qctx.RequiredConcepts, "fgts")
	assert.Equal(t, []string{"dano moral"}, qctx.CaseConcepts)
}

func TestCategoryBoostMatrix(t *testing.T) {
	assert.Equal(t, 0.3, categoryBoost(QueryCaselaw, chunker.CategoryJurisprudencia))
	assert.Equal(t, 0.2, categoryBoost(QueryCaselaw, chunker.CategoryCitacao))
	assert.Equal(t, 0.1, categoryBoost(QueryCaselaw, chunker.CategoryFundamentacao))
	assert.Equal(t, 0.0, categoryBoost(QueryCaselaw, chunker.CategoryContexto))

	// Fourth position still gets the smallest boost.
	assert.Equal(t, 0.1, categoryBoost(QueryFacts, chunker.CategoryDefesa))

	// Style weighs its two preferred categories equally.
	assert.Equal(t, 0.2, categoryBoost(QueryStyle, chunker.CategoryFundamentacao))
	assert.Equal(t, 0.2, categoryBoost(QueryStyle, chunker.CategoryDispositivo))
}

func TestConceptScore(t *testing.T) {
	assert.Equal(t, 0.0, conceptScore(nil, []string{"fgts"}))
	assert.Equal(t, 0.5, conceptScore([]string{"a", "b"}, []string{"a"}))
	assert.InDelta(t, 0.8, conceptScore([]string{"a", "b", "c", "d", "e"}, []string{"a", "b", "c", "d"}), 1e-9)
	assert.Equal(t, 0.0, conceptScore([]string{"a"}, nil))

	// The complete-match bonus never pushes the score past 1.
	assert.Equal(t, 1.0, conceptScore([]string{"a", "b"}, []string{"a", "b", "c"}))
}

func TestContextScore(t *testing.T) {
	chunk := chunker.Chunk{
		Priority:   10,
		References: []string{"art. 59 da CLT", "súmula 85", "art. 71", "art. 7", "oj 342"},
		Concepts:   []string{"horas extras"},
	}

	t.Run("citation bonus caps", func(t *testing.T) {
		score := contextScore(QueryContext{}, chunk)
		assert.InDelta(t, 0.3+0.2, score, 1e-9)
	})

	t.Run("case concept overlap", func(t *testing.T) {
		qctx := QueryContext{CaseConcepts: []string{"horas extras"}}
		score := contextScore(qctx, chunk)
		assert.InDelta(t, 0.3+0.2+0.2, score, 1e-9)
	})
}

// makeCandidate builds a candidate with an axis-aligned unit vector so
// similarity is controlled by which axis the query points at.
func makeCandidate(content string, category chunker.Category, concepts []string, axisIdx int) Candidate {
	vec := make([]float32, 8)
	vec[axisIdx%8] = 1
	return Candidate{
		Chunk: chunker.Chunk{
			Content:  content,
			Category: category,
			Concepts: concepts,
			Priority: 5,
		},
		Vector:     vec,
		Confidence: 0.8,
	}
}

func queryVec(axisIdx int) []float32 {
	vec := make([]float32, 8)
	vec[axisIdx%8] = 1
	return vec
}

func TestRetrieveRanksConceptMatchFirst(t *testing.T) {
	r := newTestRetriever(t)

	// Three chunks; only the second carries the queried concept. The
	// query vector points at the third chunk's axis, so pure similarity
	// alone would rank chunk 3 first.
	candidates := []Candidate{
		makeCandidate("o reclamante ajuizou a presente ação", chunker.CategoryRelatorio, nil, 0),
		makeCandidate("as horas extras são devidas pela jornada comprovada", chunker.CategoryFundamentacao, []string{"horas extras"}, 1),
		makeCandidate("custas pela reclamada no importe fixado", chunker.CategoryDispositivo, nil, 2),
	}

	qctx := r.Classify("horas extras", nil)
	results := r.Retrieve(qctx, queryVec(2), candidates, 3, 0.1)

	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Candidate.Chunk.Concepts, "horas extras")
	assert.Equal(t, 1, results[0].Rank)
}

func TestRetrieveRespectsMinRelevance(t *testing.T) {
	r := newTestRetriever(t)

	candidates := []Candidate{
		makeCandidate("conteúdo irrelevante qualquer", chunker.CategoryContexto, nil, 3),
	}

	qctx := QueryContext{Query: "x", Type: QueryGeneral}
	results := r.Retrieve(qctx, queryVec(0), candidates, 5, 0.9)
	assert.Empty(t, results)

	for _, res := range r.Retrieve(qctx, queryVec(0), candidates, 5, 0.01) {
		assert.GreaterOrEqual(t, res.Score, 0.01)
	}
}

func TestRetrieveRespectsTopK(t *testing.T) {
	r := newTestRetriever(t)

	var candidates []Candidate
	for i := 0; i < 20; i++ {
		candidates = append(candidates,
			makeCandidate(fmt.Sprintf("fundamento %d", i), chunker.CategoryFundamentacao, nil, i))
	}

	qctx := QueryContext{Query: "x", Type: QueryGeneral}
	results := r.Retrieve(qctx, queryVec(0), candidates, 3, 0.01)
	assert.LessOrEqual(t, len(results), 3)
}

func TestRetrieveTieBreakIsStable(t *testing.T) {
	r := newTestRetriever(t)

	// Identical candidates score identically; input order must survive.
	candidates := []Candidate{
		makeCandidate("primeiro", chunker.CategoryFundamentacao, nil, 0),
		makeCandidate("segundo", chunker.CategoryFundamentacao, nil, 0),
		makeCandidate("terceiro", chunker.CategoryFundamentacao, nil, 0),
	}

	qctx := QueryContext{Query: "x", Type: QueryGeneral}
	results := r.Retrieve(qctx, queryVec(0), candidates, 3, 0.01)

	require.Len(t, results, 3)
	assert.Equal(t, "primeiro", results[0].Candidate.Chunk.Content)
	assert.Equal(t, "segundo", results[1].Candidate.Chunk.Content)
	assert.Equal(t, "terceiro", results[2].Candidate.Chunk.Content)
}

func TestDiversifyCapsPerCategory(t *testing.T) {
	r := New(Config{MaxPerCategory: 2}, zap.NewNop())

	ranked := []Result{
		{Candidate: makeCandidate("f1", chunker.CategoryFundamentacao, nil, 0), Score: 0.9},
		{Candidate: makeCandidate("f2", chunker.CategoryFundamentacao, nil, 0), Score: 0.8},
		{Candidate: makeCandidate("f3", chunker.CategoryFundamentacao, nil, 0), Score: 0.7},
		{Candidate: makeCandidate("p1", chunker.CategoryProva, nil, 0), Score: 0.6},
		{Candidate: makeCandidate("d1", chunker.CategoryDispositivo, nil, 0), Score: 0.5},
	}

	kept := r.Diversify(ranked, 4)
	require.Len(t, kept, 4)

	counts := make(map[chunker.Category]int)
	for _, res := range kept {
		counts[res.Candidate.Chunk.Category]++
	}
	assert.Equal(t, 2, counts[chunker.CategoryFundamentacao])
	assert.Equal(t, 1, counts[chunker.CategoryProva])
	assert.Equal(t, 1, counts[chunker.CategoryDispositivo])
}

func TestDiversifyBackfills(t *testing.T) {
	r := New(Config{MaxPerCategory: 2}, zap.NewNop())

	// Only one category available: the cap would leave the set short of
	// topK, so held-back results return, best first.
	ranked := []Result{
		{Candidate: makeCandidate("f1", chunker.CategoryFundamentacao, nil, 0), Score: 0.9},
		{Candidate: makeCandidate("f2", chunker.CategoryFundamentacao, nil, 0), Score: 0.8},
		{Candidate: makeCandidate("f3", chunker.CategoryFundamentacao, nil, 0), Score: 0.7},
		{Candidate: makeCandidate("f4", chunker.CategoryFundamentacao, nil, 0), Score: 0.6},
	}

	kept := r.Diversify(ranked, 3)
	require.Len(t, kept, 3)
	assert.Equal(t, "f1", kept[0].Candidate.Chunk.Content)
	assert.Equal(t, "f2", kept[1].Candidate.Chunk.Content)
	assert.Equal(t, "f3", kept[2].Candidate.Chunk.Content)
}

func TestExplain(t *testing.T) {
	r := newTestRetriever(t)

	candidates := []Candidate{
		makeCandidate("as horas extras são devidas pela jornada comprovada em audiência", chunker.CategoryFundamentacao, []string{"horas extras"}, 0),
	}
	qctx := r.Classify("horas extras", nil)
	results := r.Retrieve(qctx, queryVec(0), candidates, 1, 0.01)
	require.Len(t, results, 1)

	out := Explain(qctx, results)
	assert.Contains(t, out, "type: general")
	assert.Contains(t, out, "fundamentacao")
	assert.Contains(t, out, "similarity=")
	assert.Contains(t, out, "preview: as horas extras")
	assert.Contains(t, out, "concepts: horas extras")
}
