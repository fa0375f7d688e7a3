// Package models defines core data structures for documents, chunks, index entries, and query results.
package models

// Well-known metadata keys. Everything else in Metadata is opaque to the engine.
const (
	MetaSource   = "source"
	MetaFileName = "file_name"
)

// Metadata is an opaque key/value payload carried from a source document to every
// chunk and index entry derived from it.
type Metadata map[string]interface{}

// Clone returns a shallow copy of m. A nil map clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value for key if it is a string, else "".
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Document is a plain-text document handed over by a loader.
type Document struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Chunk is a bounded span of a document's text.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// IndexEntry is a chunk together with its embedding; the unit stored in the index and the cache file.
type IndexEntry struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}
