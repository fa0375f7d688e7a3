// Package loader turns files on disk into documents for indexing.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/docid"
	"github.com/hyperjump/retriever/internal/models"
)

// Metadata keys added by the loader on top of source and file_name.
const (
	MetaPath  = "path"
	MetaPage  = "page"
	MetaSheet = "sheet"
	MetaSlide = "slide"
)

// Loader reads files and directories into documents. Directories are walked
// recursively and only files with an accepted extension are read; hidden entries are
// skipped. Files named explicitly are always read.
type Loader struct {
	extensions map[string]bool
	logger     *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// New returns a Loader accepting the given extensions (with leading dot, any case).
func New(extensions []string, opts ...Option) *Loader {
	l := &Loader{extensions: make(map[string]bool, len(extensions)), logger: zap.NewNop()}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		l.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Accepts reports whether path has an accepted extension.
func (l *Loader) Accepts(path string) bool {
	return l.extensions[strings.ToLower(filepath.Ext(path))]
}

// LoadPaths loads every file under paths in lexical order. A file that cannot be
// parsed is logged and skipped; a path that does not exist is an error.
func (l *Loader) LoadPaths(ctx context.Context, paths []string) ([]models.Document, error) {
	files, err := l.collect(paths)
	if err != nil {
		return nil, err
	}
	var docs []models.Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileDocs, err := l.LoadFile(f)
		if err != nil {
			l.logger.Warn("Skipping file", zap.String("path", f), zap.Error(err))
			continue
		}
		l.logger.Debug("Loaded file", zap.String("path", f), zap.Int("documents", len(fileDocs)))
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func (l *Loader) collect(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(abs)
			continue
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && l.Accepts(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile parses one file into documents: one per PDF page, spreadsheet sheet or
// slide, otherwise one per file. Sections without text are dropped.
func (l *Loader) LoadFile(path string) ([]models.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	sections, err := Parse(content, filepath.Ext(abs))
	if err != nil {
		return nil, err
	}
	base := models.Metadata{
		models.MetaSource:   docid.FromPath(abs),
		models.MetaFileName: filepath.Base(abs),
		MetaPath:            abs,
	}
	docs := make([]models.Document, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		meta := base.Clone()
		if s.Key != "" {
			meta[s.Key] = s.Value
		}
		docs = append(docs, models.Document{Text: s.Text, Metadata: meta})
	}
	return docs, nil
}
