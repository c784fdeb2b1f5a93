package provider

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider wraps a Provider with an embedding cache. Repeat
// embeddings of identical text (query re-runs, vector store rebuilds)
// are served from memory instead of hitting the endpoint. Chat and
// Generate pass through untouched: completions are not cacheable.
type CachedProvider struct {
	Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps inner with a bounded embedding cache.
// maxBytes caps the cache cost (vector bytes); <=0 uses 64 MiB.
func NewCachedProvider(inner Provider, maxBytes int64) (*CachedProvider, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{Provider: inner, cache: cache}, nil
}

// Embed serves embeddings from cache, filling on miss.
func (c *CachedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	key := model + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.Provider.Embed(ctx, model, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, int64(len(vec))*4)
	return vec, nil
}

// Wait blocks until buffered cache writes are applied. Tests use this to
// make Set visible before asserting on a follow-up Get.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

// Close releases cache resources.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
