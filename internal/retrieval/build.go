package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/vector"
)

// BuildStats summarizes a completed build.
type BuildStats struct {
	BuildID    string        `json:"build_id"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Dimensions int           `json:"dimensions"`
	Persisted  bool          `json:"persisted"`
	CacheError string        `json:"cache_error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Build chunks and embeds docs, installs the resulting index and writes it to the
// cache. If any embedding call fails the build is aborted and the previously
// installed index, if any, stays in place. A cache write failure is logged and the
// new index is installed anyway.
func (e *Engine) Build(ctx context.Context, docs []models.Document) (*BuildStats, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	started := time.Now()
	buildID := uuid.NewString()
	log := e.logger.With(zap.String("build_id", buildID))

	chunks := e.chunker.ChunkAll(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, ErrNoChunks)
	}
	log.Info("Building index",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("batch_size", e.batchSize))

	entries := make([]models.IndexEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += e.batchSize {
		end := min(start+e.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Content
		}
		vecs, err := e.provider.Embed(ctx, texts)
		if err != nil {
			log.Error("Embedding failed, build aborted", zap.Int("batch_start", start), zap.Error(err))
			return nil, fmt.Errorf("%w: embedding chunks %d-%d: %w", ErrBuildFailed, start, end-1, err)
		}
		for i, v := range vecs {
			c := chunks[start+i]
			entries = append(entries, models.IndexEntry{Content: c.Content, Embedding: v, Metadata: c.Metadata})
		}
		log.Debug("Embedded batch", zap.Int("done", end), zap.Int("total", len(chunks)))
	}

	store := vector.NewStore()
	if err := store.Build(entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	stats := &BuildStats{
		BuildID:    buildID,
		Documents:  len(docs),
		Chunks:     len(entries),
		Dimensions: store.Dimensions(),
		Persisted:  true,
	}
	if err := e.cache.Save(entries); err != nil {
		stats.Persisted = false
		stats.CacheError = err.Error()
		log.Warn("Index cache not saved, index kept in memory only", zap.Error(err))
	}

	e.install(newSnapshot(store, buildID, time.Now()))
	stats.Duration = time.Since(started)
	log.Info("Index built",
		zap.Int("entries", stats.Chunks),
		zap.Int("dimensions", stats.Dimensions),
		zap.Bool("persisted", stats.Persisted),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (e *Engine) install(snap *snapshot) {
	e.mu.Lock()
	old := e.snapshot
	e.snapshot = snap
	e.state = StateReady
	e.mu.Unlock()
	if old != nil {
		if err := old.close(); err != nil {
			e.logger.Warn("Failed to close previous keyword index", zap.Error(err))
		}
	}
}

// Stats describes the engine for status reporting.
type Stats struct {
	State         State             `json:"state"`
	Entries       int               `json:"entries"`
	Dimensions    int               `json:"dimensions"`
	ProviderState string            `json:"provider_state"`
	Mode          models.SearchMode `json:"mode,omitempty"`
	BuildID       string            `json:"build_id,omitempty"`
	SavedAt       time.Time         `json:"saved_at,omitempty"`
}

// Stats reports the engine state without loading the cache or the model. Mode is the
// mode of the most recent query.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{State: e.state, ProviderState: e.provider.State(), Mode: e.lastMode}
	if e.snapshot != nil {
		s.Entries = e.snapshot.store.Len()
		s.Dimensions = e.snapshot.store.Dimensions()
		s.BuildID = e.snapshot.buildID
		s.SavedAt = e.snapshot.savedAt
	}
	return s
}
