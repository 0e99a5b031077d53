package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Batched splits requests into fixed-size batches and embeds up to
// concurrency batches at once. Output order matches input order.
type Batched struct {
	inner       Provider
	size        int
	concurrency int
}

// NewBatched wraps inner. Non-positive size or concurrency fall back to 64 and 1.
func NewBatched(inner Provider, size, concurrency int) *Batched {
	if size <= 0 {
		size = 64
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batched{inner: inner, size: size, concurrency: concurrency}
}

func (b *Batched) Model() string { return b.inner.Model() }

func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		g.Go(func() error {
			vecs, err := b.inner.Embed(gctx, texts[start:end])
			if err != nil {
				return eris.Wrapf(err, "embed: batch %d-%d", start, end)
			}
			if len(vecs) != end-start {
				return eris.Errorf("embed: batch %d-%d returned %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
