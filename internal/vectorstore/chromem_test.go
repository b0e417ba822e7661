package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testVectorSize = 4

// newTestChromemStore creates a store backed by a temp directory.
func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()

	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// axis returns a unit vector along the i-th axis.
func axis(i int) []float32 {
	v := make([]float32, testVectorSize)
	v[i%testVectorSize] = 1
	return v
}

func testRecords() []Record {
	return []Record{
		{ID: "chunk_0", Content: "julgo procedente o pedido", Vector: axis(0), Metadata: map[string]interface{}{"category": "dispositivo", "priority": 9}},
		{ID: "chunk_1", Content: "a testemunha confirmou a jornada", Vector: axis(1), Metadata: map[string]interface{}{"category": "prova", "priority": 6}},
		{ID: "chunk_2", Content: "trata-se de reclamacao trabalhista", Vector: axis(2), Metadata: map[string]interface{}{"category": "relatorio", "priority": 4}},
	}
}

func TestChromemStoreUpsertAndCount(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	ids, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_0", "chunk_1", "chunk_2"}, ids)

	count, err := store.Count(ctx, "case_001_sentenca")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChromemStoreUpsertValidation(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	t.Run("empty batch", func(t *testing.T) {
		_, err := store.Upsert(ctx, "case_001_docs", nil)
		assert.ErrorIs(t, err, ErrEmptyRecords)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := store.Upsert(ctx, "case_001_docs", []Record{{Content: "x", Vector: axis(0)}})
		assert.Error(t, err)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := store.Upsert(ctx, "case_001_docs", []Record{
			{ID: "bad", Content: "x", Vector: []float32{1, 0}},
		})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("invalid collection name", func(t *testing.T) {
		_, err := store.Upsert(ctx, "no spaces allowed", testRecords())
		assert.ErrorIs(t, err, ErrInvalidCollectionName)
	})
}

func TestChromemStoreGetAll(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)

	records, err := store.GetAll(ctx, "case_001_sentenca")
	require.NoError(t, err)
	require.Len(t, records, 3)

	byID := make(map[string]Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	got, ok := byID["chunk_1"]
	require.True(t, ok)
	assert.Equal(t, "a testemunha confirmou a jornada", got.Content)
	assert.Equal(t, axis(1), got.Vector)
	assert.Equal(t, "prova", got.Metadata["category"])
	assert.Equal(t, "6", got.Metadata["priority"])
}

func TestChromemStoreGetAllMissingCollection(t *testing.T) {
	store := newTestChromemStore(t)

	_, err := store.GetAll(context.Background(), "case_999_nada")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromemStoreSearch(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)

	results, err := store.Search(ctx, "case_001_sentenca", axis(1), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "chunk_1", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemStoreSearchCapsK(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)

	results, err := store.Search(ctx, "case_001_sentenca", axis(0), 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestChromemStoreSearchErrors(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	t.Run("missing collection", func(t *testing.T) {
		_, err := store.Search(ctx, "case_999_nada", axis(0), 5)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	t.Run("bad k", func(t *testing.T) {
		_, err := store.Search(ctx, "case_001_sentenca", axis(0), 0)
		assert.Error(t, err)
	})

	t.Run("bad dimension", func(t *testing.T) {
		_, err := store.Search(ctx, "case_001_sentenca", []float32{1}, 5)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestChromemStoreReplaceCollection(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)

	replacement := []Record{
		{ID: "fresh_0", Content: "novo conteudo", Vector: axis(3)},
	}
	require.NoError(t, store.ReplaceCollection(ctx, "case_001_sentenca", replacement))

	records, err := store.GetAll(ctx, "case_001_sentenca")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh_0", records[0].ID)
}

func TestChromemStoreReplaceCollectionEmpty(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)

	require.NoError(t, store.ReplaceCollection(ctx, "case_001_sentenca", nil))

	exists, err := store.CollectionExists(ctx, "case_001_sentenca")
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := store.GetAll(ctx, "case_001_sentenca")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChromemStoreCollectionLifecycle(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	exists, err := store.CollectionExists(ctx, "case_001_docs")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Upsert(ctx, "case_001_docs", testRecords())
	require.NoError(t, err)

	exists, err = store.CollectionExists(ctx, "case_001_docs")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "case_001_docs")

	require.NoError(t, store.DeleteCollection(ctx, "case_001_docs"))

	exists, err = store.CollectionExists(ctx, "case_001_docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: testVectorSize}, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Upsert(ctx, "case_001_sentenca", testRecords())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(ChromemConfig{Path: dir, VectorSize: testVectorSize}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx, "case_001_sentenca")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("case_0001234_peticao_inicial"))
	assert.NoError(t, ValidateCollectionName("a"))

	for _, name := range []string{"", "_leading", "has space", "emoji🙂", string(make([]byte, 80))} {
		assert.ErrorIs(t, ValidateCollectionName(name), ErrInvalidCollectionName, name)
	}
}
