package keyword

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/retriever/internal/models"
)

// PhraseBonus is added when an entry contains the whole query.
const PhraseBonus = 10

// minTermLength is the rune count a query token must exceed to be scored.
const minTermLength = 2

// Scorer ranks entries by raw term counts: for each query term longer than two
// characters it sums the term's non-overlapping occurrences in the lowercased
// content, then adds PhraseBonus when the full query appears verbatim.
type Scorer struct {
	entries []models.IndexEntry
	lowered []string
}

// NewScorer returns a Scorer over entries.
func NewScorer(entries []models.IndexEntry) *Scorer {
	lowered := make([]string, len(entries))
	for i, e := range entries {
		lowered[i] = strings.ToLower(e.Content)
	}
	return &Scorer{entries: entries, lowered: lowered}
}

// Search returns up to k entries with a positive score, best first. Equal scores
// keep entry order.
func (s *Scorer) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	phrase := strings.ToLower(strings.TrimSpace(query))
	terms := Terms(query)

	hits := make([]Hit, 0)
	for i, content := range s.lowered {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := 0
		for _, term := range terms {
			score += strings.Count(content, term)
		}
		if phrase != "" && strings.Contains(content, phrase) {
			score += PhraseBonus
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Entry: s.entries[i], Score: float64(score)})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close is a no-op.
func (s *Scorer) Close() error {
	return nil
}

// Terms splits query on whitespace into lowercase tokens longer than two characters.
// Duplicate tokens are kept and counted once each.
func Terms(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > minTermLength {
			terms = append(terms, w)
		}
	}
	return terms
}
