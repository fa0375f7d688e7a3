// Package retrieval ties chunking, embedding, the similarity index, the keyword
// fallback and the index cache into one query/build facade.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/cache"
	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/indexer"
	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/vector"
)

var (
	// ErrIndexUnavailable is returned by queries when no index was built or loaded.
	ErrIndexUnavailable = errors.New("index not built: run the indexing step first")
	// ErrBuildFailed wraps every error that aborts a build.
	ErrBuildFailed = errors.New("index build failed")
	// ErrNoChunks is returned when the documents given to Build contain no text.
	ErrNoChunks = errors.New("documents produced no chunks")
)

// DefaultBatchSize is the number of chunks embedded per provider call during a build.
const DefaultBatchSize = 64

// Cache persists and restores built indexes.
type Cache interface {
	Save(entries []models.IndexEntry) error
	Load() (*vector.Store, *cache.Record, error)
}

// Engine is the retrieval handle shared by the CLI and the HTTP server. It starts
// uninitialized and loads the cache on the first query.
type Engine struct {
	provider       *embedding.Provider
	cache          Cache
	chunker        *indexer.Chunker
	keywordFactory keyword.Factory
	batchSize      int
	logger         *zap.Logger

	buildMu sync.Mutex

	mu       sync.RWMutex
	state    State
	snapshot *snapshot
	lastMode models.SearchMode

	fallbackOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *indexer.Chunker) Option {
	return func(e *Engine) {
		if c != nil {
			e.chunker = c
		}
	}
}

// WithKeywordSearcher sets how the keyword fallback is built over an index.
func WithKeywordSearcher(f keyword.Factory) Option {
	return func(e *Engine) {
		if f != nil {
			e.keywordFactory = f
		}
	}
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewEngine returns an uninitialized engine.
func NewEngine(provider *embedding.Provider, c Cache, opts ...Option) *Engine {
	e := &Engine{
		provider:  provider,
		cache:     c,
		chunker:   indexer.NewChunker(indexer.DefaultChunkSize, indexer.DefaultChunkOverlap),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
		keywordFactory: func(entries []models.IndexEntry) (keyword.Searcher, error) {
			return keyword.NewScorer(entries), nil
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state without loading anything.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Load loads the cache if the engine is still uninitialized and returns the resulting state.
// Queries call it implicitly.
func (e *Engine) Load() State {
	_, _ = e.current()
	return e.State()
}

// current returns the installed snapshot, loading the cache on first use.
func (e *Engine) current() (*snapshot, error) {
	e.mu.RLock()
	state, snap := e.state, e.snapshot
	e.mu.RUnlock()
	switch state {
	case StateReady:
		return snap, nil
	case StateUnavailable:
		return nil, ErrIndexUnavailable
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateUninitialized {
		e.loadLocked()
	}
	if e.state != StateReady {
		return nil, ErrIndexUnavailable
	}
	return e.snapshot, nil
}

func (e *Engine) loadLocked() {
	store, rec, err := e.cache.Load()
	if err != nil {
		e.state = StateUnavailable
		e.logger.Warn("No index cache loaded, queries fail until an index is built", zap.Error(err))
		return
	}
	e.snapshot = newSnapshot(store, "", rec.SavedAt())
	e.state = StateReady
	e.logger.Info("Index loaded from cache",
		zap.Int("entries", store.Len()),
		zap.Int("dimensions", store.Dimensions()),
		zap.Time("saved_at", rec.SavedAt()))
}

// Query returns up to k chunks for text, best first. An empty slice means nothing relevant.
func (e *Engine) Query(ctx context.Context, text string, k int) ([]models.Result, error) {
	resp, err := e.Search(ctx, text, k)
	if err != nil {
		return nil, err
	}
	out := make([]models.Result, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = *r
	}
	return out, nil
}

// Search is Query with the search mode and timing attached.
func (e *Engine) Search(ctx context.Context, text string, k int) (*models.QueryResponse, error) {
	started := time.Now()
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	resp := &models.QueryResponse{Query: text, Results: []*models.Result{}}
	if k <= 0 || strings.TrimSpace(text) == "" {
		resp.Mode = e.preferredMode()
		return resp, nil
	}

	vecs, err := e.provider.Embed(ctx, []string{text})
	if err == nil {
		hits, qerr := snap.store.Query(vecs[0], k)
		if qerr == nil {
			resp.Mode = models.ModeSemantic
			for _, h := range hits {
				resp.Results = append(resp.Results, toResult(h.Entry, h.Score))
			}
			e.finish(resp, started)
			return resp, nil
		}
		err = qerr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	e.noteFallback(err)

	hits, err := snap.keywordSearch(ctx, e.keywordFactory, e.logger, text, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	resp.Mode = models.ModeKeyword
	for _, h := range hits {
		resp.Results = append(resp.Results, toResult(h.Entry, h.Score))
	}
	e.finish(resp, started)
	return resp, nil
}

func (e *Engine) finish(resp *models.QueryResponse, started time.Time) {
	resp.QueryTime = time.Since(started).Milliseconds()
	e.mu.Lock()
	e.lastMode = resp.Mode
	e.mu.Unlock()
	e.logger.Debug("Query answered",
		zap.String("mode", string(resp.Mode)),
		zap.Int("results", len(resp.Results)),
		zap.Int64("query_time_ms", resp.QueryTime))
}

// noteFallback logs the first switch to keyword search for this engine.
func (e *Engine) noteFallback(cause error) {
	e.fallbackOnce.Do(func() {
		e.logger.Warn("Semantic search unavailable, using keyword fallback", zap.Error(cause))
	})
}

func (e *Engine) preferredMode() models.SearchMode {
	if e.provider.State() == "degraded" {
		return models.ModeKeyword
	}
	return models.ModeSemantic
}

func toResult(entry models.IndexEntry, score float64) *models.Result {
	return &models.Result{Content: entry.Content, Metadata: entry.Metadata, Score: score}
}

// Close releases the keyword index and the embedding model.
func (e *Engine) Close() error {
	e.mu.Lock()
	snap := e.snapshot
	e.mu.Unlock()
	var errs []error
	if snap != nil {
		errs = append(errs, snap.close())
	}
	errs = append(errs, e.provider.Close())
	return errors.Join(errs...)
}
