package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
	"github.com/fyrsmithlabs/lexrag/internal/embeddings"
	"github.com/fyrsmithlabs/lexrag/internal/namespace"
	"github.com/fyrsmithlabs/lexrag/internal/retriever"
	"github.com/fyrsmithlabs/lexrag/internal/vectorstore"
)

// Config holds configuration for the Engine.
type Config struct {
	// CacheSize is the number of (case, collection) candidate sets kept
	// in memory between queries. Default: 128
	CacheSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 128
	}
}

// ChunkFailure records one chunk that could not be embedded.
type ChunkFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion call. Partial failures are
// reported here, never silently swallowed.
type IngestReport struct {
	CaseID     string         `json:"case_id"`
	Source     string         `json:"source"`
	Chunks     int            `json:"chunks"`
	Stored     int            `json:"stored"`
	Failed     []ChunkFailure `json:"failed,omitempty"`
	Collection string         `json:"collection"`
}

// QueryResult is the outcome of one query call.
type QueryResult struct {
	CaseID    string             `json:"case_id"`
	QueryType retriever.QueryType `json:"query_type"`
	Results   []retriever.Result `json:"results"`
	// Candidates is the number of chunks considered before ranking.
	Candidates int `json:"candidates"`
	// SourceFailures maps a requested source to its read failure. The
	// remaining sources were still attempted.
	SourceFailures map[string]string `json:"source_failures,omitempty"`

	qctx retriever.QueryContext
}

// Explain renders the human-readable ranking trace for this result.
func (r *QueryResult) Explain() string {
	return retriever.Explain(r.qctx, r.Results)
}

// Engine is the retrieval orchestrator: it ingests case text into
// isolated namespaces and serves diversified retrieval queries.
type Engine struct {
	config    Config
	manager   *namespace.Manager
	embedder  *embeddings.Service
	segmenter *chunker.Chunker
	ranker    *retriever.Retriever
	logger    *zap.Logger

	cache *lru.Cache[string, []retriever.Candidate]

	// locks serializes writers per case; readers share.
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates an Engine from its collaborators.
func New(config Config, manager *namespace.Manager, embedder *embeddings.Service, segmenter *chunker.Chunker, ranker *retriever.Retriever, logger *zap.Logger) (*Engine, error) {
	if manager == nil || embedder == nil || segmenter == nil || ranker == nil {
		return nil, errors.New("engine: all collaborators are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	cache, err := lru.New[string, []retriever.Candidate](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating chunk cache: %w", err)
	}

	return &Engine{
		config:    config,
		manager:   manager,
		embedder:  embedder,
		segmenter: segmenter,
		ranker:    ranker,
		logger:    logger,
		cache:     cache,
		locks:     make(map[string]*sync.RWMutex),
	}, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	err := e.manager.Close()
	if cerr := e.embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

func (e *Engine) lockFor(caseID string) *sync.RWMutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[caseID]
	if !ok {
		lock = &sync.RWMutex{}
		e.locks[caseID] = lock
	}
	return lock
}

func cacheKey(caseID, collection string) string {
	return caseID + "|" + collection
}

// Ingest segments, embeds and indexes text into the case's namespace
// under the given source label. Re-ingesting the same (case, source)
// pair replaces the prior collection contents wholesale.
//
// Empty or whitespace-only text yields an empty report, not an error.
// Chunks whose embedding fails (both providers) are reported in
// IngestReport.Failed; the rest are still stored.
func (e *Engine) Ingest(ctx context.Context, caseID, source, text string) (*IngestReport, error) {
	if err := namespace.ValidateCaseID(caseID); err != nil {
		return nil, newError(KindInput, caseID, source, err)
	}
	if err := namespace.ValidateSourceLabel(source); err != nil {
		return nil, newError(KindInput, caseID, source, err)
	}

	lock := e.lockFor(caseID)
	lock.Lock()
	defer lock.Unlock()

	collection := namespace.CollectionName(caseID, source)
	report := &IngestReport{CaseID: caseID, Source: source, Collection: collection}

	ns, err := e.manager.Open(caseID)
	if err != nil {
		return nil, e.wrapNamespaceErr(caseID, source, err)
	}

	if strings.TrimSpace(text) == "" {
		return report, nil
	}

	chunks := e.segmenter.Segment(text, source)
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	embedded, embErr := e.embedder.EmbedBatch(ctx, texts)
	if embErr != nil && ctx.Err() != nil {
		return report, newError(KindModel, caseID, source, ctx.Err())
	}
	if embedded == nil {
		return report, newError(KindModel, caseID, source, embErr)
	}

	records := make([]vectorstore.Record, 0, len(chunks))
	for i, rec := range embedded {
		if rec.Vector == nil {
			report.Failed = append(report.Failed, ChunkFailure{
				Index:  i,
				Reason: "embedding failed for both providers",
			})
			continue
		}
		records = append(records, vectorstore.Record{
			ID:       fmt.Sprintf("chunk_%04d", i),
			Content:  chunks[i].Content,
			Vector:   rec.Vector,
			Metadata: chunkMetadata(caseID, source, i, chunks[i], rec.Confidence),
		})
	}

	if len(records) == 0 {
		return report, newError(KindModel, caseID, source, embErr)
	}

	if err := ns.Store().ReplaceCollection(ctx, collection, records); err != nil {
		// Nothing from this ingest may stay partially visible.
		if delErr := ns.Store().DeleteCollection(ctx, collection); delErr != nil &&
			!errors.Is(delErr, vectorstore.ErrCollectionNotFound) {
			e.logger.Error("failed to drop collection after aborted ingest",
				zap.String("collection", collection),
				zap.Error(delErr),
			)
		}
		e.cache.Remove(cacheKey(caseID, collection))
		return report, newError(KindIndex, caseID, source, err)
	}
	report.Stored = len(records)

	e.writeBackup(ns, source, records)
	e.cache.Remove(cacheKey(caseID, collection))

	e.logger.Info("ingested source",
		zap.String("case_id", caseID),
		zap.String("source", source),
		zap.Int("chunks", report.Chunks),
		zap.Int("stored", report.Stored),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// Query classifies the query, scores the case's chunks from the
// requested source collections and returns the diversified top-K.
//
// sources may be empty, meaning every collection the case has. topK <= 0
// uses the retriever default. A case that was never ingested yields a
// KindInput error wrapping namespace.ErrNotFound. An empty query or an
// empty namespace yields zero results, not an error.
func (e *Engine) Query(ctx context.Context, caseID, query string, sources []string, topK int) (*QueryResult, error) {
	if err := namespace.ValidateCaseID(caseID); err != nil {
		return nil, newError(KindInput, caseID, "", err)
	}

	exists, err := e.manager.Exists(caseID)
	if err != nil {
		return nil, newError(KindIndex, caseID, "", err)
	}
	if !exists {
		return nil, newError(KindInput, caseID, "",
			fmt.Errorf("%w: case %s", namespace.ErrNotFound, caseID))
	}

	lock := e.lockFor(caseID)
	lock.RLock()
	defer lock.RUnlock()

	qctx := e.ranker.Classify(query, nil)
	result := &QueryResult{CaseID: caseID, QueryType: qctx.Type, qctx: qctx}

	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	ns, err := e.manager.Open(caseID)
	if err != nil {
		return nil, e.wrapNamespaceErr(caseID, "", err)
	}

	queryRec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, newError(KindModel, caseID, "", err)
	}
	qctx.RequiredConcepts = queryRec.Concepts
	result.qctx = qctx

	if len(sources) == 0 {
		sources, err = e.allSources(ctx, ns, caseID)
		if err != nil {
			return nil, newError(KindIndex, caseID, "", err)
		}
	}

	var candidates []retriever.Candidate
	for _, source := range sources {
		if ctx.Err() != nil {
			return nil, newError(KindIndex, caseID, source, ctx.Err())
		}

		collection := namespace.CollectionName(caseID, source)
		cands, err := e.loadCandidates(ctx, ns, caseID, collection)
		if err != nil {
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				continue
			}
			// This source failed; the others are still attempted.
			if result.SourceFailures == nil {
				result.SourceFailures = make(map[string]string)
			}
			result.SourceFailures[source] = err.Error()
			continue
		}
		candidates = append(candidates, cands...)
	}
	result.Candidates = len(candidates)

	result.Results = e.ranker.Retrieve(qctx, queryRec.Vector, candidates, topK, 0)

	e.logger.Debug("query served",
		zap.String("case_id", caseID),
		zap.String("query_type", string(qctx.Type)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(result.Results)),
	)
	return result, nil
}

// ValidateNamespace runs the namespace health checks for a case.
// Contamination surfaces as a KindIsolation error.
func (e *Engine) ValidateNamespace(caseID string) (*namespace.Report, error) {
	report, err := e.manager.Validate(caseID)
	if err != nil {
		if errors.Is(err, namespace.ErrIsolationViolation) {
			return report, newError(KindIsolation, caseID, "", err)
		}
		return report, newError(KindInput, caseID, "", err)
	}
	return report, nil
}

// ReclaimNamespace moves a case's storage to the backup area.
func (e *Engine) ReclaimNamespace(caseID string, force bool) (string, error) {
	lock := e.lockFor(caseID)
	lock.Lock()
	defer lock.Unlock()

	e.invalidateCase(caseID)
	return e.manager.Reclaim(caseID, force)
}

// ListNamespaces returns metadata for every active case.
func (e *Engine) ListNamespaces() ([]namespace.Metadata, error) {
	return e.manager.List()
}

func (e *Engine) wrapNamespaceErr(caseID, source string, err error) error {
	switch {
	case errors.Is(err, namespace.ErrIsolationViolation):
		return newError(KindIsolation, caseID, source, err)
	case errors.Is(err, namespace.ErrInvalidCaseID):
		return newError(KindInput, caseID, source, err)
	default:
		return newError(KindIndex, caseID, source, err)
	}
}

// allSources derives source labels from the namespace's collections.
func (e *Engine) allSources(ctx context.Context, ns *namespace.Namespace, caseID string) ([]string, error) {
	collections, err := ns.Store().ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	prefix := namespace.CollectionName(caseID, "")
	sources := make([]string, 0, len(collections))
	for _, coll := range collections {
		if strings.HasPrefix(coll, prefix) {
			sources = append(sources, strings.TrimPrefix(coll, prefix))
		}
	}
	return sources, nil
}

// loadCandidates returns a collection's chunks, from cache when warm.
func (e *Engine) loadCandidates(ctx context.Context, ns *namespace.Namespace, caseID, collection string) ([]retriever.Candidate, error) {
	key := cacheKey(caseID, collection)
	if cands, ok := e.cache.Get(key); ok {
		return cands, nil
	}

	records, err := ns.Store().GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	cands := make([]retriever.Candidate, 0, len(records))
	for _, rec := range records {
		cands = append(cands, candidateFromRecord(rec))
	}
	e.cache.Add(key, cands)
	return cands, nil
}

func (e *Engine) invalidateCase(caseID string) {
	prefix := caseID + "|"
	for _, key := range e.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Remove(key)
		}
	}
}

// chunkMetadata flattens a chunk for vector store storage.
func chunkMetadata(caseID, source string, index int, ch chunker.Chunk, confidence float64) map[string]interface{} {
	meta := map[string]interface{}{
		"case_id":     caseID,
		"source":      source,
		"chunk_index": index,
		"category":    string(ch.Category),
		"priority":    ch.Priority,
		"confidence":  confidence,
		"span_start":  ch.Span.Start,
		"span_end":    ch.Span.End,
	}
	if ch.Title != "" {
		meta["title"] = ch.Title
	}
	if len(ch.Concepts) > 0 {
		meta["concepts"] = strings.Join(ch.Concepts, "|")
	}
	if len(ch.References) > 0 {
		meta["references"] = strings.Join(ch.References, "|")
	}
	return meta
}

// candidateFromRecord reconstructs a chunk from stored metadata.
func candidateFromRecord(rec vectorstore.Record) retriever.Candidate {
	ch := chunker.Chunk{Content: rec.Content, Category: chunker.CategoryContexto}
	var confidence float64

	if v, ok := rec.Metadata["category"].(string); ok && v != "" {
		ch.Category = chunker.Category(v)
	}
	if v, ok := rec.Metadata["priority"].(string); ok {
		if p, err := strconv.Atoi(v); err == nil {
			ch.Priority = p
		}
	}
	if v, ok := rec.Metadata["confidence"].(string); ok {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			confidence = c
		}
	}
	if v, ok := rec.Metadata["title"].(string); ok {
		ch.Title = v
	}
	if v, ok := rec.Metadata["concepts"].(string); ok && v != "" {
		ch.Concepts = strings.Split(v, "|")
	}
	if v, ok := rec.Metadata["references"].(string); ok && v != "" {
		ch.References = strings.Split(v, "|")
	}
	if v, ok := rec.Metadata["span_start"].(string); ok {
		if s, err := strconv.Atoi(v); err == nil {
			ch.Span.Start = s
		}
	}
	if v, ok := rec.Metadata["span_end"].(string); ok {
		if s, err := strconv.Atoi(v); err == nil {
			ch.Span.End = s
		}
	}

	return retriever.Candidate{Chunk: ch, Vector: rec.Vector, Confidence: confidence}
}
