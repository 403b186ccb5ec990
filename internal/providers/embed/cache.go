package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/sandevgo/recall/internal/core"
)

// CachedEmbedder fronts an embedder with a ristretto cache keyed by the
// exact input text. Ingestion re-processes overlapping windows, so repeated
// embeds of identical text are common.
type CachedEmbedder struct {
	inner core.Embedder
	cache *ristretto.Cache
}

func NewCached(inner core.Embedder, maxBytes int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// Cost is the vector payload size in bytes.
	c.cache.Set(text, vec, int64(4*len(vec)))
	return vec, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
