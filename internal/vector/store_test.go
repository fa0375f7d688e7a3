package vector

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/hyperjump/retriever/internal/models"
)

func entry(content string, emb ...float32) models.IndexEntry {
	return models.IndexEntry{Content: content, Embedding: emb, Metadata: models.Metadata{models.MetaSource: content}}
}

func contents(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Entry.Content
	}
	return out
}

func TestStore_QueryRanking(t *testing.T) {
	s := NewStore()
	if err := s.Build([]models.IndexEntry{
		entry("x", 1, 0),
		entry("y", 0, 1),
		entry("xy", 0.7, 0.7),
	}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Query([]float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := contents(hits)
	want := []string{"x", "xy", "y"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
	if math.Abs(hits[0].Score-1) > 1e-9 {
		t.Errorf("top score = %f, want 1", hits[0].Score)
	}
	if math.Abs(hits[1].Score-1/math.Sqrt2) > 1e-6 {
		t.Errorf("second score = %f, want ~0.707", hits[1].Score)
	}
	if math.Abs(hits[2].Score) > 1e-9 {
		t.Errorf("third score = %f, want 0", hits[2].Score)
	}
}

func TestStore_QueryLimits(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)})
	tests := []struct {
		k    int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 1},
		{2, 2},
		{10, 2},
	}
	for _, tt := range tests {
		hits, err := s.Query([]float32{1, 1}, tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if hits == nil || len(hits) != tt.want {
			t.Errorf("k=%d: got %d hits, want %d", tt.k, len(hits), tt.want)
		}
	}
}

func TestStore_QueryEmptyStore(t *testing.T) {
	hits, err := NewStore().Query([]float32{1}, 5)
	if err != nil || len(hits) != 0 {
		t.Errorf("got %v, %v", hits, err)
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{
		entry("first", 2, 0),
		entry("other", 0, 1),
		entry("second", 1, 0),
		entry("third", 5, 0),
	})
	hits, _ := s.Query([]float32{1, 0}, 3)
	got := contents(hits)
	if got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Errorf("tied entries out of insertion order: %v", got)
	}
}

func TestStore_ZeroNormRanksLast(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{
		entry("zero", 0, 0),
		entry("opposite", -1, 0),
		entry("same", 1, 0),
	})
	hits, err := s.Query([]float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := contents(hits)
	if got[0] != "same" || got[1] != "opposite" || got[2] != "zero" {
		t.Errorf("ranking = %v", got)
	}
	if !math.IsNaN(hits[2].Score) {
		t.Errorf("zero-norm score = %f, want NaN", hits[2].Score)
	}

	// A zero query vector makes every score undefined; the sort must still be total.
	hits, err = s.Query([]float32{0, 0}, 3)
	if err != nil || len(hits) != 3 || hits[0].Entry.Content != "zero" {
		t.Errorf("zero query: %v, %v", contents(hits), err)
	}
}

func TestStore_BuildRejectsMixedDimensions(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{entry("a", 1, 0)})
	err := s.Build([]models.IndexEntry{entry("b", 0, 1), entry("c", 1, 0, 0)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed build must not append, Len=%d", s.Len())
	}
	if err := s.Build([]models.IndexEntry{{Content: "nil"}}); !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("err = %v, want ErrMissingEmbedding", err)
	}
}

func TestStore_QueryDimensionMismatch(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{entry("a", 1, 0)})
	if _, err := s.Query([]float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestStore_EntriesAndDimensions(t *testing.T) {
	s := NewStore()
	if s.Dimensions() != 0 {
		t.Error("empty store should report 0 dimensions")
	}
	_ = s.Build([]models.IndexEntry{entry("a", 1, 0, 0)})
	_ = s.Build([]models.IndexEntry{entry("b", 0, 1, 0)})
	if s.Dimensions() != 3 || s.Len() != 2 {
		t.Errorf("dims=%d len=%d", s.Dimensions(), s.Len())
	}
	es := s.Entries()
	es[0].Content = "mutated"
	if s.Entries()[0].Content != "a" {
		t.Error("Entries should return a copy")
	}
}

func TestStore_ConcurrentQueries(t *testing.T) {
	s := NewStore()
	_ = s.Build([]models.IndexEntry{entry("a", 1, 0), entry("b", 0, 1)})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := s.Query([]float32{0, 1}, 1)
			if err != nil || hits[0].Entry.Content != "b" {
				t.Errorf("concurrent query: %v, %v", hits, err)
			}
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	vecs := [][]float32{{1, 2, 3}, {-0.5, 0.25, 9}, {1e-3, 1e-3}}
	for _, v := range vecs {
		if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-6 {
			t.Errorf("cos(v,v) = %f for %v", got, v)
		}
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: %f", got)
	}
	if !math.IsNaN(CosineSimilarity([]float32{0, 0}, []float32{1, 0})) {
		t.Error("zero norm should be NaN")
	}
	if !math.IsNaN(CosineSimilarity([]float32{1}, []float32{1, 0})) {
		t.Error("length mismatch should be NaN")
	}
}

func BenchmarkStore_Query(b *testing.B) {
	s := NewStore()
	entries := make([]models.IndexEntry, 1000)
	for i := range entries {
		emb := make([]float32, 384)
		emb[0] = float32(i) / 1000
		emb[1] = 1
		entries[i] = models.IndexEntry{Content: "chunk", Embedding: emb}
	}
	if err := s.Build(entries); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Query(query, 10)
	}
}
