package embedding

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/tokenizer"
)

// hashEmbedder produces a deterministic bag-of-tokens vector with no
// external dependency: each token hashes into a bucket, bucket counts are
// L2-normalized. It never fails and never blocks, so it is always available
// as the last-resort tier when no embedding backend is configured.
type hashEmbedder struct {
	dim int
}

func newHashEmbedder(dim int) *hashEmbedder {
	return &hashEmbedder{dim: dim}
}

func (h *hashEmbedder) Dimension() int { return h.dim }

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vec := make([]float64, h.dim)
	for _, tok := range tokenizer.Tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		bucket := int(sum[0])<<24|int(sum[1])<<16|int(sum[2])<<8|int(sum[3])
		if bucket < 0 {
			bucket = -bucket
		}
		idx := bucket % h.dim
		sign := 1.0
		if sum[4]&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
