// Package vector provides the in-memory similarity index.
package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/retriever/internal/models"
)

var (
	// ErrDimensionMismatch is returned when an embedding's length differs from the index's.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrMissingEmbedding is returned when an entry without an embedding is added.
	ErrMissingEmbedding = errors.New("entry has no embedding")
)

// Hit is a single query result.
type Hit struct {
	Entry models.IndexEntry
	Score float64
}

// Store holds index entries in memory and answers top-k queries by brute-force cosine
// similarity. Every entry shares one dimensionality, fixed by the first entry added.
type Store struct {
	dimensions int
	entries    []models.IndexEntry
	mu         sync.RWMutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Build appends entries to the store. Either all entries are added or, if any entry has
// no embedding or a different dimensionality, none are.
func (s *Store) Build(entries []models.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dims := s.dimensions
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %d: %w", i, ErrMissingEmbedding)
		}
		if dims == 0 {
			dims = len(e.Embedding)
			continue
		}
		if len(e.Embedding) != dims {
			return fmt.Errorf("entry %d has %d dimensions, index has %d: %w", i, len(e.Embedding), dims, ErrDimensionMismatch)
		}
	}
	s.dimensions = dims
	s.entries = append(s.entries, entries...)
	return nil
}

// Query returns up to k entries ranked by cosine similarity to query, best first.
// Equal scores keep insertion order; entries with undefined similarity rank last.
func (s *Store) Query(query []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.entries) == 0 {
		return []Hit{}, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), s.dimensions, ErrDimensionMismatch)
	}
	scores := make([]float64, len(s.entries))
	order := make([]int, len(s.entries))
	for i := range s.entries {
		scores[i] = CosineSimilarity(query, s.entries[i].Embedding)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ranksBefore(scores[order[a]], scores[order[b]])
	})
	if k > len(order) {
		k = len(order)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Entry: s.entries[order[i]], Score: scores[order[i]]}
	}
	return hits, nil
}

// Entries returns a copy of the stored entries in insertion order.
func (s *Store) Entries() []models.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IndexEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimensions returns the shared embedding dimensionality, or 0 for an empty store.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}
