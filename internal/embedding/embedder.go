// Package embedding provides text embedding providers and the lazily acquired Provider.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no embedding model could be acquired in this process.
// Callers treat it as a degraded mode, not as a failure of the whole system.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder produces vector embeddings for text. Embed returns one vector per input,
// in input order, all of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
