package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/monitoring"
)

// Cache persists vectors by model and text hash. store.Store satisfies it.
type Cache interface {
	GetCachedEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float64, error)
	SetCachedEmbeddings(ctx context.Context, model string, vectors map[string][]float64) error
}

// Cached consults the cache before calling the inner provider and writes
// newly computed vectors back. Duplicate texts are embedded once.
type Cached struct {
	inner   Provider
	cache   Cache
	metrics *monitoring.Metrics
}

// NewCached wraps inner with cache. metrics may be nil.
func NewCached(inner Provider, cache Cache, metrics *monitoring.Metrics) *Cached {
	return &Cached{inner: inner, cache: cache, metrics: metrics}
}

func (c *Cached) Model() string { return c.inner.Model() }

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]string, len(texts))
	var unique []string
	seen := make(map[string]struct{}, len(texts))
	for i, t := range texts {
		keys[i] = TextHash(t)
		if _, ok := seen[keys[i]]; !ok {
			seen[keys[i]] = struct{}{}
			unique = append(unique, keys[i])
		}
	}

	model := c.inner.Model()
	found, err := c.cache.GetCachedEmbeddings(ctx, model, unique)
	if err != nil {
		// A broken cache only costs recomputation.
		zap.L().Warn("embed: cache lookup failed", zap.String("model", model), zap.Error(err))
		found = map[string][]float64{}
	}

	var missTexts, missKeys []string
	queued := make(map[string]struct{})
	for i, k := range keys {
		if _, ok := found[k]; ok {
			continue
		}
		if _, ok := queued[k]; ok {
			continue
		}
		queued[k] = struct{}{}
		missTexts = append(missTexts, texts[i])
		missKeys = append(missKeys, k)
	}
	c.metrics.CacheLookup(len(unique)-len(missKeys), len(missKeys))

	if len(missTexts) > 0 {
		vecs, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(missTexts) {
			return nil, eris.Errorf("embed: provider returned %d vectors for %d texts", len(vecs), len(missTexts))
		}
		fresh := make(map[string][]float64, len(vecs))
		for i, v := range vecs {
			fresh[missKeys[i]] = v
			found[missKeys[i]] = v
		}
		if err := c.cache.SetCachedEmbeddings(ctx, model, fresh); err != nil {
			zap.L().Warn("embed: cache write failed", zap.String("model", model), zap.Error(err))
		}
	}

	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

// TextHash is the cache key of a text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
