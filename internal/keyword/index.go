// Package keyword provides the embedding-free fallback search over index entries.
package keyword

import (
	"context"
	"fmt"

	"github.com/hyperjump/retriever/internal/models"
)

// Searcher ranks a fixed set of index entries against a text query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	Close() error
}

// Hit is a single keyword search result.
type Hit struct {
	Entry models.IndexEntry
	Score float64
}

// Factory builds a Searcher over entries.
type Factory func(entries []models.IndexEntry) (Searcher, error)

// Engine names accepted by NewFactory.
const (
	EngineSubstring = "substring"
	EngineBleve     = "bleve"
)

// NewFactory returns the Factory for engine. Fuzziness only applies to the bleve engine.
func NewFactory(engine string, fuzziness int) (Factory, error) {
	switch engine {
	case EngineSubstring, "":
		return func(entries []models.IndexEntry) (Searcher, error) {
			return NewScorer(entries), nil
		}, nil
	case EngineBleve:
		return func(entries []models.IndexEntry) (Searcher, error) {
			return NewBleveIndex(entries, WithFuzziness(fuzziness))
		}, nil
	default:
		return nil, fmt.Errorf("unknown keyword engine: %s (supported: substring, bleve)", engine)
	}
}
