package inference

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/nvr-ai/go-firesmoke/images"
	"github.com/nvr-ai/go-firesmoke/store"
)

// FeatureKey lists every setting that changes the vector an extractor
// produces for a given file. Its String form scopes cache entries.
type FeatureKey struct {
	ModelPath     string
	Backbone      string
	Loader        string
	Interpolation images.Interpolation
	Width         int
	Height        int
}

// String returns the cache scope, e.g.
// "models/vgg16_notop.onnx|vgg16|native|nearest|224x224".
func (k FeatureKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%dx%d",
		k.ModelPath, k.Backbone, k.Loader, k.Interpolation, k.Width, k.Height)
}

// CachedExtractor serves vectors from a FeatureCache and falls back to the
// wrapped extractor on a miss. Only path-based extraction is cached.
type CachedExtractor struct {
	inner    FeatureExtractor
	cache    *store.FeatureCache
	modelKey string
	hits     int
	misses   int
}

// NewCachedExtractor wraps inner with cache. modelKey scopes the entries and
// must change whenever the extraction settings do; see FeatureKey.
func NewCachedExtractor(inner FeatureExtractor, cache *store.FeatureCache, modelKey string) *CachedExtractor {
	return &CachedExtractor{inner: inner, cache: cache, modelKey: modelKey}
}

// Extract returns the cached vector for path if the file is unchanged,
// otherwise extracts and stores it.
func (c *CachedExtractor) Extract(ctx context.Context, path string) ([]float32, error) {
	key, err := store.StatKey(path)
	if err != nil {
		return nil, err
	}

	vec, ok, err := c.cache.Get(ctx, key, c.modelKey)
	if err != nil {
		slog.Warn("feature cache read failed", "path", path, "error", err)
	}
	if ok && len(vec) == c.inner.Dim() {
		c.hits++
		return vec, nil
	}

	c.misses++
	vec, err = c.inner.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, c.modelKey, vec); err != nil {
		slog.Warn("feature cache write failed", "path", path, "error", err)
	}
	return vec, nil
}

// ExtractImage delegates to the wrapped extractor.
func (c *CachedExtractor) ExtractImage(ctx context.Context, img image.Image) ([]float32, error) {
	return c.inner.ExtractImage(ctx, img)
}

// Dim returns the wrapped extractor's feature length.
func (c *CachedExtractor) Dim() int {
	return c.inner.Dim()
}

// Hits returns the number of vectors served from the cache.
func (c *CachedExtractor) Hits() int { return c.hits }

// Misses returns the number of vectors that had to be extracted.
func (c *CachedExtractor) Misses() int { return c.misses }

// Close closes the wrapped extractor. The cache is owned by the caller.
func (c *CachedExtractor) Close() error {
	slog.Debug("feature cache stats", "hits", c.hits, "misses", c.misses)
	return c.inner.Close()
}
