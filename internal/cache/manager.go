// Package cache persists the built index to a single JSON file and restores it.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/vector"
)

// ErrNoCache is returned by Load when no usable cache exists. Missing, unreadable,
// corrupt, empty and inconsistent files all wrap it.
var ErrNoCache = errors.New("no usable index cache")

// Record is the on-disk layout: {"entries": [...], "timestamp": <ms since epoch>}.
type Record struct {
	Entries   []models.IndexEntry `json:"entries"`
	Timestamp int64               `json:"timestamp"`
}

// SavedAt returns the record timestamp as a time.
func (r *Record) SavedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Info describes the cache file on disk.
type Info struct {
	Path      string
	SizeBytes int64
	ModTime   time.Time
}

// Manager reads and writes the cache file at a fixed path.
type Manager struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewManager returns a Manager for path. A nil logger discards logs.
func NewManager(path string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{path: path, logger: logger, now: time.Now}
}

// Path returns the cache file path.
func (m *Manager) Path() string {
	return m.path
}

// Save writes entries with the current time, replacing any previous file. The file is
// written to a temporary name in the same directory and renamed into place.
func (m *Manager) Save(entries []models.IndexEntry) error {
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	rec := Record{Entries: entries, Timestamp: m.now().UnixMilli()}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache: %w", err)
	}

	m.logger.Info("Index cache saved",
		zap.String("path", m.path),
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads the cache file and builds a similarity store from it.
// Every failure wraps ErrNoCache.
func (m *Manager) Load() (*vector.Store, *Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read %s: %w", ErrNoCache, m.path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: decode %s: %w", ErrNoCache, m.path, err)
	}
	if len(rec.Entries) == 0 {
		return nil, nil, fmt.Errorf("%w: %s has no entries", ErrNoCache, m.path)
	}
	store := vector.NewStore()
	if err := store.Build(rec.Entries); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrNoCache, m.path, err)
	}

	m.logger.Debug("Index cache loaded",
		zap.String("path", m.path),
		zap.Int("entries", store.Len()),
		zap.Int("dimensions", store.Dimensions()),
		zap.Time("saved_at", rec.SavedAt()))
	return store, &rec, nil
}

// Exists reports whether the cache file is present.
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.path)
	return err == nil && !info.IsDir()
}

// Stat returns size and modification time of the cache file.
func (m *Manager) Stat() (Info, error) {
	fi, err := os.Stat(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s does not exist", ErrNoCache, m.path)
		}
		return Info{}, fmt.Errorf("failed to stat cache: %w", err)
	}
	return Info{Path: m.path, SizeBytes: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Remove deletes the cache file. A missing file is not an error.
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache: %w", err)
	}
	m.logger.Info("Index cache removed", zap.String("path", m.path))
	return nil
}
