package embedding

import (
	"context"
	"math"
)

// HashEmbedder is a deterministic embedder for tests and offline runs. Each text maps
// to a fixed unit vector derived from its hash, so identical texts embed identically.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns one deterministic unit vector per text.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := HashString(text)
		emb := make([]float32, e.dimensions)
		for j := range emb {
			emb[j] = float32(math.Sin(float64(h*(j+1)))*0.1 + 0.01)
		}
		NormalizeL2(emb)
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
