package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const (
	defaultHashingDims = 256
	trigramWeight      = 0.5
)

// HashingProvider is a deterministic local embedder. Each word and each
// character trigram of a word is hashed into a signed bucket, and the
// resulting vector is L2-normalized. Identical texts map to identical
// vectors, and texts sharing most words land close in cosine distance.
type HashingProvider struct {
	dims int
}

// NewHashingProvider returns a hashing embedder with dims buckets.
func NewHashingProvider(dims int) *HashingProvider {
	if dims <= 0 {
		dims = defaultHashingDims
	}
	return &HashingProvider{dims: dims}
}

func (h *HashingProvider) Model() string { return fmt.Sprintf("hashing-%d", h.dims) }

func (h *HashingProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingProvider) vector(text string) []float64 {
	vec := make([]float64, h.dims)
	for _, word := range strings.Fields(text) {
		h.add(vec, "w:"+word, 1)
		padded := "#" + word + "#"
		for j := 0; j+3 <= len(padded); j++ {
			h.add(vec, "t:"+padded[j:j+3], trigramWeight)
		}
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// add hashes feature into a bucket; the top bit picks the sign so that
// collisions cancel on average instead of piling up.
func (h *HashingProvider) add(vec []float64, feature string, weight float64) {
	hf := fnv.New64a()
	hf.Write([]byte(feature)) //nolint:errcheck // never fails
	sum := hf.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
