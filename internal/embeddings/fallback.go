package embeddings

import (
	"context"

	"go.uber.org/zap"
)

// FallbackProvider tries a primary provider and, if it fails, retries the
// call once against a fallback provider. The fallback engages per call,
// not permanently, so a transiently failing primary keeps being tried.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	logger   *zap.Logger
}

// NewFallbackProvider wraps primary with fallback. fallback may be nil,
// in which case failures surface directly.
func NewFallbackProvider(primary, fallback Provider, logger *zap.Logger) *FallbackProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackProvider{primary: primary, fallback: fallback, logger: logger}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *FallbackProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.primary.EmbedDocuments(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if p.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	p.logger.Warn("primary embedding provider failed, using fallback",
		zap.Int("texts", len(texts)),
		zap.Error(err),
	)
	return p.fallback.EmbedDocuments(ctx, texts)
}

// EmbedQuery generates an embedding for a single query.
func (p *FallbackProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.primary.EmbedQuery(ctx, text)
	if err == nil {
		return vector, nil
	}
	if p.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	p.logger.Warn("primary embedding provider failed, using fallback",
		zap.Error(err),
	)
	return p.fallback.EmbedQuery(ctx, text)
}

// Dimension returns the primary provider's dimension. Primary and fallback
// must agree, or stored vectors would mix dimensions.
func (p *FallbackProvider) Dimension() int {
	return p.primary.Dimension()
}

// Close closes both providers, returning the first error.
func (p *FallbackProvider) Close() error {
	err := p.primary.Close()
	if p.fallback != nil {
		if ferr := p.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

var _ Provider = (*FallbackProvider)(nil)
