// Package embed turns normalized item descriptions into dense vectors.
//
// Providers are composable: a base provider (local feature hashing or the
// Jina API) is wrapped by Batched for bounded concurrent batching and by
// Cached for store-backed reuse of earlier vectors.
package embed

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/pkg/jina"
)

// Provider embeds texts. The result has one vector per input, in input order,
// and all vectors share one dimension.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// Model identifies the vector space; cached vectors are keyed by it.
	Model() string
}

// New builds the provider stack described by cfg. cache may be nil.
func New(cfg config.EmbeddingConfig, cache Cache, metrics *monitoring.Metrics) (Provider, error) {
	var base Provider
	switch cfg.Provider {
	case "", "hashing":
		base = NewHashingProvider(cfg.Dimensions)
	case "jina":
		if cfg.Jina.Key == "" {
			return nil, eris.New("embed: jina provider requires embedding.jina.key")
		}
		base = NewJinaProvider(newJinaClient(cfg.Jina), cfg.Jina.Model, cfg.Dimensions)
	default:
		return nil, eris.Errorf("embed: unknown provider %q", cfg.Provider)
	}

	p := NewBatched(base, cfg.BatchSize, cfg.Concurrency)
	if cfg.Cache && cache != nil {
		return NewCached(p, cache, metrics), nil
	}
	return p, nil
}

func newJinaClient(cfg config.JinaConfig) jina.Client {
	opts := []jina.Option{jina.WithRateLimit(cfg.RequestsPerSec)}
	if cfg.BaseURL != "" {
		opts = append(opts, jina.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSecs > 0 {
		opts = append(opts, jina.WithTimeout(cfg.TimeoutSecs))
	}
	return jina.NewClient(cfg.Key, opts...)
}
