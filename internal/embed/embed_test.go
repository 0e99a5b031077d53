package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/pkg/jina"
)

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func TestHashingProvider(t *testing.T) {
	p := NewHashingProvider(128)
	assert.Equal(t, "hashing-128", p.Model())

	vecs, err := p.Embed(context.Background(), []string{
		"carbon steel pipe 100mm",
		"carbon steel pipe 100mm",
		"carbon steel pipe 150mm",
		"gate valve brass",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.Len(t, v, 128)
	}

	assert.InDelta(t, 1.0, floats.Norm(vecs[0], 2), 1e-9)
	assert.Equal(t, vecs[0], vecs[1])
	assert.Greater(t, cosine(vecs[0], vecs[2]), cosine(vecs[0], vecs[3]))
	assert.Zero(t, floats.Norm(vecs[4], 2))
}

func TestHashingProvider_DefaultDims(t *testing.T) {
	assert.Equal(t, "hashing-256", NewHashingProvider(0).Model())
}

func TestHashingProvider_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashingProvider(8).Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

// recordingProvider returns [len(text), index] vectors and records batch sizes.
type recordingProvider struct {
	mu      sync.Mutex
	batches []int
	texts   []string
	err     error
	short   bool
}

func (r *recordingProvider) Model() string { return "rec" }

func (r *recordingProvider) Embed(_ context.Context, texts []string) ([][]float64, error) {
	r.mu.Lock()
	r.batches = append(r.batches, len(texts))
	r.texts = append(r.texts, texts...)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t))}
	}
	if r.short {
		return out[:len(out)-1], nil
	}
	return out, nil
}

func TestBatched_PreservesOrder(t *testing.T) {
	inner := &recordingProvider{}
	b := NewBatched(inner, 2, 3)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := b.Embed(context.Background(), texts)
	require.NoError(t, err)
	for i, v := range vecs {
		assert.Equal(t, []float64{float64(len(texts[i]))}, v)
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, inner.batches)
	assert.Equal(t, "rec", b.Model())
}

func TestBatched_Empty(t *testing.T) {
	inner := &recordingProvider{}
	vecs, err := NewBatched(inner, 2, 2).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, inner.batches)
}

func TestBatched_Errors(t *testing.T) {
	_, err := NewBatched(&recordingProvider{err: errors.New("api down")}, 2, 2).
		Embed(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")

	_, err = NewBatched(&recordingProvider{short: true}, 2, 1).
		Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 1 vectors")
}

type memCache struct {
	mu      sync.Mutex
	data    map[string]map[string][]float64
	getErr  error
	setErr  error
	setCall int
}

func newMemCache() *memCache { return &memCache{data: map[string]map[string][]float64{}} }

func (m *memCache) GetCachedEmbeddings(_ context.Context, model string, hashes []string) (map[string][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := map[string][]float64{}
	for _, h := range hashes {
		if v, ok := m.data[model][h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (m *memCache) SetCachedEmbeddings(_ context.Context, model string, vectors map[string][]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCall++
	if m.setErr != nil {
		return m.setErr
	}
	if m.data[model] == nil {
		m.data[model] = map[string][]float64{}
	}
	for k, v := range vectors {
		m.data[model][k] = v
	}
	return nil
}

func TestCached_ReusesAndDedupes(t *testing.T) {
	inner := &recordingProvider{}
	cache := newMemCache()
	c := NewCached(inner, cache, monitoring.NewMetrics(prometheus.NewRegistry()))

	vecs, err := c.Embed(context.Background(), []string{"pipe", "valve", "pipe"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4}, {5}, {4}}, vecs)
	assert.Equal(t, []string{"pipe", "valve"}, inner.texts)

	vecs, err = c.Embed(context.Background(), []string{"valve", "flange"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{5}, {6}}, vecs)
	assert.Equal(t, []string{"pipe", "valve", "flange"}, inner.texts)
	assert.Len(t, cache.data["rec"], 3)
}

func TestCached_AllHitsSkipsProvider(t *testing.T) {
	inner := &recordingProvider{}
	cache := newMemCache()
	cache.data["rec"] = map[string][]float64{TextHash("pipe"): {42}}

	vecs, err := NewCached(inner, cache, nil).Embed(context.Background(), []string{"pipe"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{42}}, vecs)
	assert.Empty(t, inner.batches)
	assert.Zero(t, cache.setCall)
}

func TestCached_CacheFailuresDegrade(t *testing.T) {
	inner := &recordingProvider{}
	cache := newMemCache()
	cache.getErr = errors.New("db locked")
	cache.setErr = errors.New("db locked")

	vecs, err := NewCached(inner, cache, nil).Embed(context.Background(), []string{"pipe"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4}}, vecs)
}

func TestCached_ProviderError(t *testing.T) {
	_, err := NewCached(&recordingProvider{err: errors.New("boom")}, newMemCache(), nil).
		Embed(context.Background(), []string{"pipe"})
	require.Error(t, err)
}

func TestTextHash(t *testing.T) {
	assert.Len(t, TextHash("pipe"), 64)
	assert.Equal(t, TextHash("pipe"), TextHash("pipe"))
	assert.NotEqual(t, TextHash("pipe"), TextHash("pipes"))
}

func TestJinaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jina.EmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-matching", req.Task)
		assert.Equal(t, 64, req.Dimensions)
		assert.True(t, req.Normalized)

		resp := jina.EmbedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, jina.EmbeddingData{Index: i, Embedding: []float64{float64(i), 1}})
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	client := jina.NewClient("k", jina.WithBaseURL(srv.URL), jina.WithRateLimit(0))
	p := NewJinaProvider(client, "jina-embeddings-v3", 64)
	assert.Equal(t, "jina-embeddings-v3-64", p.Model())

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, vecs)
}

func TestJinaProvider_ModelIncludesDimensions(t *testing.T) {
	small := NewJinaProvider(nil, "jina-embeddings-v3", 256)
	large := NewJinaProvider(nil, "jina-embeddings-v3", 1024)
	assert.Equal(t, "jina-embeddings-v3-256", small.Model())
	assert.NotEqual(t, small.Model(), large.Model())
	assert.Equal(t, "jina-embeddings-v3", NewJinaProvider(nil, "jina-embeddings-v3", 0).Model())
}

func TestNew(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "hashing", Dimensions: 32, BatchSize: 8, Concurrency: 2, Cache: true}

	p, err := New(cfg, newMemCache(), nil)
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, p)
	assert.Equal(t, "hashing-32", p.Model())

	p, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Batched{}, p)

	cfg.Provider = "jina"
	_, err = New(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.jina.key")

	cfg.Jina = config.JinaConfig{Key: "k", Model: "jina-embeddings-v3"}
	p, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "jina-embeddings-v3-32", p.Model())

	cfg.Provider = "openai"
	_, err = New(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", "openai"))
}
