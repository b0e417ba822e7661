package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
	"github.com/fyrsmithlabs/lexrag/internal/embeddings"
	"github.com/fyrsmithlabs/lexrag/internal/namespace"
	"github.com/fyrsmithlabs/lexrag/internal/retriever"
)

const testDim = 64

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return newTestEngineWith(t, embeddings.NewHashProvider(testDim))
}

func newTestEngineWith(t *testing.T, provider embeddings.Provider) *Engine {
	t.Helper()

	logger := zap.NewNop()

	manager, err := namespace.NewManager(namespace.Config{
		BasePath:   t.TempDir(),
		VectorSize: testDim,
	}, logger)
	require.NoError(t, err)

	embedder, err := embeddings.NewService(provider, logger)
	require.NoError(t, err)

	eng, err := New(Config{},
		manager,
		embedder,
		chunker.New(chunker.Config{}, logger),
		retriever.New(retriever.Config{}, logger),
		logger,
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

const sampleDecision = `Trata-se de reclamação trabalhista ajuizada pelo reclamante em face da reclamada, distribuída a esta Vara do Trabalho.

O autor postula o pagamento de horas extras decorrentes da jornada de trabalho cumprida além do limite legal, conforme os cartões de ponto juntados.

Ante o exposto, julgo procedente em parte o pedido e condeno a reclamada ao pagamento das parcelas deferidas, nos termos do art. 59 da CLT.`

func TestIngestAndQueryRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	report, err := eng.Ingest(ctx, "0001234", "sentenca", sampleDecision)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, report.Stored)
	assert.Empty(t, report.Failed)
	assert.Equal(t, "case_0001234_sentenca", report.Collection)

	result, err := eng.Query(ctx, "0001234", "horas extras", nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, 3, result.Candidates)

	// The chunk carrying the queried concept ranks first.
	top := result.Results[0].Candidate.Chunk
	assert.Contains(t, top.Content, "horas extras")
	assert.Contains(t, top.Concepts, "horas extras")
	assert.Equal(t, 1, result.Results[0].Rank)
}

func TestQueryReconstructsChunkMetadata(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	result, err := eng.Query(ctx, "caso1", "horas extras", []string{"sentenca"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)

	top := result.Results[0].Candidate
	assert.NotEqual(t, chunker.Category(""), top.Chunk.Category)
	assert.Greater(t, top.Chunk.Priority, 0)
	assert.Greater(t, top.Confidence, 0.0)
	assert.Len(t, top.Vector, testDim)
}

func TestReingestReplacesWholesale(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	oldText := "A testemunha relatou o uso de crachá magnético para registro da jornada de trabalho diária na sede."
	_, err := eng.Ingest(ctx, "caso1", "depoimentos", oldText)
	require.NoError(t, err)

	// Warm the cache so invalidation is exercised too.
	result, err := eng.Query(ctx, "caso1", "jornada de trabalho", []string{"depoimentos"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)

	newText := "O perito constatou insalubridade em grau médio no ambiente fabril, conforme laudo pericial anexado."
	_, err = eng.Ingest(ctx, "caso1", "depoimentos", newText)
	require.NoError(t, err)

	result, err = eng.Query(ctx, "caso1", "jornada de trabalho", []string{"depoimentos"}, 5)
	require.NoError(t, err)
	for _, res := range result.Results {
		assert.NotContains(t, res.Candidate.Chunk.Content, "crachá")
	}
	assert.Equal(t, 1, result.Candidates)
}

func TestQueryUnknownCase(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Query(context.Background(), "nunca_visto", "qualquer consulta", nil, 5)
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindInput, engErr.Kind)
	assert.Equal(t, "nunca_visto", engErr.CaseID)
	assert.ErrorIs(t, err, namespace.ErrNotFound)
}

func TestQueryEmptyNamespace(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	// Ingesting empty text creates the namespace without any collection.
	report, err := eng.Ingest(ctx, "caso1", "sentenca", "   ")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Stored)

	result, err := eng.Query(ctx, "caso1", "horas extras", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, 0, result.Candidates)
}

func TestQueryEmptyText(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	result, err := eng.Query(ctx, "caso1", "   ", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestIngestInvalidIdentifiers(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var engErr *Error

	_, err := eng.Ingest(ctx, "../escape", "sentenca", "texto")
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindInput, engErr.Kind)

	_, err = eng.Ingest(ctx, "caso1", "fonte invalida!", "texto")
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindInput, engErr.Kind)
}

func TestQueryRespectsTopK(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	result, err := eng.Query(ctx, "caso1", "pedido formulado pelo autor", nil, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Results), 1)
}

func TestQuerySourceFailureIsolation(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	// One unreadable source must not sink the others.
	result, err := eng.Query(ctx, "caso1", "horas extras", []string{"sentenca", "fonte ruim"}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Results)
	assert.Contains(t, result.SourceFailures, "fonte ruim")
}

func TestQueryUnknownSourceSkipped(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	result, err := eng.Query(ctx, "caso1", "horas extras", []string{"sentenca", "inexistente"}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Results)
	assert.Empty(t, result.SourceFailures)
}

// brokenBatchProvider fails batch embedding and one specific text.
type brokenBatchProvider struct {
	inner  embeddings.Provider
	poison string
}

func (b *brokenBatchProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("batch unavailable")
}

func (b *brokenBatchProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if b.poison != "" && text == b.poison {
		return nil, errors.New("poisoned text")
	}
	return b.inner.EmbedQuery(ctx, text)
}

func (b *brokenBatchProvider) Dimension() int { return b.inner.Dimension() }
func (b *brokenBatchProvider) Close() error   { return b.inner.Close() }

func TestIngestReportsPartialEmbeddingFailure(t *testing.T) {
	poison := embeddings.Preprocess("O autor postula o pagamento de horas extras decorrentes da jornada de trabalho cumprida além do limite legal, conforme os cartões de ponto juntados.")
	provider := &brokenBatchProvider{inner: embeddings.NewHashProvider(testDim), poison: poison}
	eng := newTestEngineWith(t, provider)
	ctx := context.Background()

	report, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 2, report.Stored)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Index)
}

func TestIngestAllChunksFailIsModelError(t *testing.T) {
	provider := &brokenBatchProvider{inner: failAllProvider{}, poison: ""}
	eng := newTestEngineWith(t, provider)

	_, err := eng.Ingest(context.Background(), "caso1", "sentenca", sampleDecision)
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindModel, engErr.Kind)
}

type failAllProvider struct{}

func (failAllProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model down")
}
func (failAllProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("model down")
}
func (failAllProvider) Dimension() int { return testDim }
func (failAllProvider) Close() error   { return nil }

func TestExplainOutput(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	result, err := eng.Query(ctx, "caso1", "horas extras", nil, 5)
	require.NoError(t, err)

	out := result.Explain()
	assert.Contains(t, out, "query: horas extras")
	assert.Contains(t, out, "#1")
}

func TestValidateNamespacePassthrough(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	report, err := eng.ValidateNamespace("caso1")
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestReclaimNamespace(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Ingest(ctx, "caso1", "sentenca", sampleDecision)
	require.NoError(t, err)

	target, err := eng.ReclaimNamespace("caso1", true)
	require.NoError(t, err)
	assert.DirExists(t, target)

	_, err = eng.Query(ctx, "caso1", "horas extras", nil, 5)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindInput, engErr.Kind)
}
