package embed

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/pkg/jina"
)

// JinaProvider embeds through the Jina embeddings API.
type JinaProvider struct {
	client jina.Client
	model  string
	dims   int
}

// NewJinaProvider wraps client. dims of zero keeps the model's native size.
func NewJinaProvider(client jina.Client, model string, dims int) *JinaProvider {
	return &JinaProvider{client: client, model: model, dims: dims}
}

// Model names the cache namespace. Vectors truncated to different sizes
// must not share one.
func (j *JinaProvider) Model() string {
	if j.dims > 0 {
		return fmt.Sprintf("%s-%d", j.model, j.dims)
	}
	return j.model
}

func (j *JinaProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := j.client.Embed(ctx, jina.EmbedRequest{
		Model:      j.model,
		Input:      texts,
		Task:       "text-matching",
		Dimensions: j.dims,
		Normalized: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: jina")
	}

	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	zap.L().Debug("embed: jina batch complete",
		zap.Int("texts", len(texts)),
		zap.Int("tokens", resp.Usage.TotalTokens),
	)
	return out, nil
}
