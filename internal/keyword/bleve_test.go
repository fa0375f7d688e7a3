package keyword

import (
	"context"
	"testing"
)

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx, err := NewBleveIndex(entries(
		"This report mentions Omnisyan and other findings.",
		"The Bayes app is also referenced.",
	))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	ctx := context.Background()
	results, err := idx.Search(ctx, "Omnisyan", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result for \"Omnisyan\", got %d", len(results))
	}
	if results[0].Entry.Content != "This report mentions Omnisyan and other findings." {
		t.Errorf("first result = %q", results[0].Entry.Content)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes".
	results, err = idx.Search(ctx, "bayes", 10)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Content != "The Bayes app is also referenced." {
		t.Errorf("bayes results = %v", results)
	}

	if n, _ := idx.index.DocCount(); n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}
}

func TestBleveIndex_PhraseRanksFirst(t *testing.T) {
	idx, err := NewBleveIndex(entries(
		"level of the svp program and another level",
		"svp level is 7",
		"physical demands include lifting",
	))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = idx.Close()
	}()
	results, err := idx.Search(context.Background(), "svp level", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Entry.Content != "svp level is 7" {
		t.Errorf("phrase match should rank first, got %q", results[0].Entry.Content)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	es := entries("physical demands include lifting")

	exact, err := NewBleveIndex(es)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = exact.Close()
	}()
	results, _ := exact.Search(context.Background(), "liftng", 5)
	if len(results) != 0 {
		t.Errorf("exact index should not match a typo, got %d", len(results))
	}

	fuzzy, err := NewBleveIndex(es, WithFuzziness(1))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = fuzzy.Close()
	}()
	results, err = fuzzy.Search(context.Background(), "liftng", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy index should match a one-edit typo, got %d", len(results))
	}
}

func TestBleveIndex_LimitsAndEmpty(t *testing.T) {
	idx, err := NewBleveIndex(entries("report one", "report two", "report three"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = idx.Close()
	}()
	ctx := context.Background()
	if results, _ := idx.Search(ctx, "report", 2); len(results) != 2 {
		t.Errorf("k=2: got %d", len(results))
	}
	if results, _ := idx.Search(ctx, "report", 0); len(results) != 0 {
		t.Errorf("k=0: got %d", len(results))
	}
	if results, _ := idx.Search(ctx, "   ", 3); len(results) != 0 {
		t.Errorf("blank query: got %d", len(results))
	}
}

func TestNewBleveIndex_NoEntries(t *testing.T) {
	idx, err := NewBleveIndex(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = idx.Close()
	}()
	results, err := idx.Search(context.Background(), "anything", 3)
	if err != nil || len(results) != 0 {
		t.Errorf("got %v, %v", results, err)
	}
}
