// Package indexer splits documents into overlapping chunks for indexing.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/retriever/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of runes consecutive chunks share.
	DefaultChunkOverlap = 200
)

// defaultSeparators are tried in order: paragraph, line, sentence, word, then a hard cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping chunks of at most chunkSize runes,
// preferring natural boundaries over hard cuts.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in runes).
// Non-positive size falls back to DefaultChunkSize; an overlap that is not smaller
// than the size is reduced to a fifth of it.
//
// Overlap is an upper bound made of whole pieces at the level the text was split
// on: the trailing paragraphs, sentences or words of a chunk that fit within the
// overlap are repeated at the start of the next one. Pieces are never cut to fill
// the overlap, so when the last piece of a chunk is longer than the overlap (a long
// sentence, say) consecutive chunks share nothing.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Chunk splits one document. Every chunk carries a copy of the document's metadata.
// Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	text := Preprocess(doc.Text)
	if text == "" {
		return nil
	}
	var pieces []string
	if utf8.RuneCountInString(text) <= c.chunkSize {
		pieces = []string{text}
	} else {
		pieces = c.split(text, c.separators)
	}
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, models.Chunk{
			Content:  p,
			Metadata: doc.Metadata.Clone(),
		})
	}
	return chunks
}

// ChunkAll splits every document and concatenates the chunks in document order.
func (c *Chunker) ChunkAll(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Chunk(doc)...)
	}
	return chunks
}

// split breaks text on the first separator it contains, merges the small pieces
// into windows, and recurses with finer separators on pieces that are still too long.
func (c *Chunker) split(text string, separators []string) []string {
	sep := ""
	var finer []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			finer = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = splitRunes(text)
	} else {
		// Pieces keep their trailing separator so merged windows are exact substrings.
		splits = strings.SplitAfter(text, sep)
	}

	var out, small []string
	for _, s := range splits {
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) < c.chunkSize {
			small = append(small, s)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small)...)
			small = nil
		}
		if len(finer) == 0 {
			if t := strings.TrimSpace(s); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, c.split(s, finer)...)
	}
	if len(small) > 0 {
		out = append(out, c.merge(small)...)
	}
	return out
}

// merge packs consecutive pieces into windows of at most chunkSize runes. After a
// window is emitted, whole trailing pieces totalling at most chunkOverlap runes
// are carried into the next window.
func (c *Chunker) merge(pieces []string) []string {
	var out, window []string
	total := 0
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
			out = append(out, doc)
		}
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.chunkSize && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > c.chunkOverlap || total+n > c.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		emit()
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
