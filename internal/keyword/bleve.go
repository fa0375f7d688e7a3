package keyword

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/retriever/internal/models"
)

const contentField = "content"

// phraseBoost weights entries where the query terms appear adjacent.
const phraseBoost = 2.0

// BleveIndex is an in-memory Bleve (BM25) index over index entries.
type BleveIndex struct {
	index     bleve.Index
	entries   []models.IndexEntry
	fuzziness int
}

// BleveOption configures a BleveIndex.
type BleveOption func(*BleveIndex)

// WithFuzziness enables fuzzy term matching up to d edits (1 or 2). Zero means exact.
func WithFuzziness(d int) BleveOption {
	return func(b *BleveIndex) {
		if d >= 0 && d <= 2 {
			b.fuzziness = d
		}
	}
}

// NewBleveIndex indexes entries into a memory-only Bleve index. Entry i is stored under ID "i".
func NewBleveIndex(entries []models.IndexEntry, opts ...BleveOption) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so "SVP" matches "svp" exactly.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(contentField, textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b := &BleveIndex{index: index, entries: entries}
	for _, opt := range opts {
		opt(b)
	}

	batch := index.NewBatch()
	for i, e := range entries {
		if err := batch.Index(strconv.Itoa(i), map[string]interface{}{contentField: e.Content}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index entry %d: %w", i, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index entries: %w", err)
	}
	if n, err := index.DocCount(); err != nil || n != uint64(len(entries)) {
		_ = index.Close()
		return nil, fmt.Errorf("Bleve index holds %d of %d entries: %v", n, len(entries), err)
	}
	return b, nil
}

// Search runs a match query (any term) plus a boosted phrase query and returns up to k hits.
func (b *BleveIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	req := bleve.NewSearchRequest(b.buildQuery(query))
	req.Size = k
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(b.entries) || hit.Score <= 0 {
			continue
		}
		out = append(out, Hit{Entry: b.entries[i], Score: hit.Score})
	}
	return out, nil
}

func (b *BleveIndex) buildQuery(query string) blevequery.Query {
	var terms blevequery.Query
	if b.fuzziness > 0 {
		terms = b.buildFuzzyQuery(query)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(contentField)
		terms = mq
	}
	phrase := bleve.NewMatchPhraseQuery(query)
	phrase.SetField(contentField)
	phrase.SetBoost(phraseBoost)
	return bleve.NewDisjunctionQuery(terms, phrase)
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per query term.
func (b *BleveIndex) buildFuzzyQuery(query string) blevequery.Query {
	terms := Terms(query)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(contentField)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(b.fuzziness)
		fq.SetField(contentField)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
