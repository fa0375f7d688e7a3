package retrieval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/vector"
)

// State is the engine lifecycle state.
type State int

const (
	// StateUninitialized means no cache load has been attempted yet.
	StateUninitialized State = iota
	// StateReady means an index is installed.
	StateReady
	// StateUnavailable means the cache could not be loaded and nothing has been built.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// snapshot is one installed index. It is never mutated after installation; the
// keyword searcher over it is built on first fallback. A query can still hold a
// snapshot after it was replaced and closed, so a closed snapshot answers keyword
// searches with a fresh substring scorer.
type snapshot struct {
	store   *vector.Store
	buildID string
	savedAt time.Time

	kwMu   sync.Mutex
	kw     keyword.Searcher
	closed bool
}

func newSnapshot(store *vector.Store, buildID string, savedAt time.Time) *snapshot {
	return &snapshot{store: store, buildID: buildID, savedAt: savedAt}
}

func (s *snapshot) keywordSearcher(factory keyword.Factory, logger *zap.Logger) keyword.Searcher {
	s.kwMu.Lock()
	defer s.kwMu.Unlock()
	if s.closed {
		return keyword.NewScorer(s.store.Entries())
	}
	if s.kw == nil {
		entries := s.store.Entries()
		kw, err := factory(entries)
		if err != nil || kw == nil {
			logger.Warn("Keyword index unavailable, using substring scoring", zap.Error(err))
			kw = keyword.NewScorer(entries)
		}
		s.kw = kw
	}
	return s.kw
}

func (s *snapshot) close() error {
	s.kwMu.Lock()
	defer s.kwMu.Unlock()
	s.closed = true
	if s.kw == nil {
		return nil
	}
	kw := s.kw
	s.kw = nil
	return kw.Close()
}

// keywordSearch runs the keyword fallback over the snapshot. A search that fails
// because the snapshot was closed underneath it is retried with a substring scorer.
func (s *snapshot) keywordSearch(ctx context.Context, factory keyword.Factory, logger *zap.Logger, query string, k int) ([]keyword.Hit, error) {
	hits, err := s.keywordSearcher(factory, logger).Search(ctx, query, k)
	if err == nil || ctx.Err() != nil {
		return hits, err
	}
	s.kwMu.Lock()
	closed := s.closed
	s.kwMu.Unlock()
	if !closed {
		return nil, err
	}
	return keyword.NewScorer(s.store.Entries()).Search(ctx, query, k)
}
