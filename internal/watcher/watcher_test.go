package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, path string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(path, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_ReportsRewriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_cache.json")
	rec := &recorder{}
	startWatcher(t, path, rec)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"entries":[]}`), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, func() bool { return len(rec.snapshot()) > 0 }) {
		t.Fatal("no change reported")
	}
	time.Sleep(200 * time.Millisecond)
	events := rec.snapshot()
	if len(events) != 1 {
		t.Errorf("burst of writes should be debounced into one event, got %d", len(events))
	}
	if events[0].Removed || events[0].Path != path {
		t.Errorf("event = %+v", events[0])
	}
}

func TestWatcher_RenameIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index_cache.json")
	rec := &recorder{}
	startWatcher(t, path, rec)

	tmp := filepath.Join(dir, ".index_cache.json-123.tmp")
	if err := os.WriteFile(tmp, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Fatalf("events = %+v", rec.snapshot())
	}
	if rec.snapshot()[0].Removed {
		t.Error("rename into place is not a removal")
	}
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_cache.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, path, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Fatalf("events = %+v", rec.snapshot())
	}
	if !rec.snapshot()[0].Removed {
		t.Error("expected a removal event")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, filepath.Join(dir, "index_cache.json"), rec)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("unrelated file produced %d events", n)
	}
}

func TestWatcher_StartCreatesDirAndStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "index_cache.json")
	w := NewWatcher(path, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent dir should be created: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Errorf("second Start: %v", err)
	}
	w.Stop()
	w.Stop()
	if w.Path() != path {
		t.Errorf("Path = %q", w.Path())
	}
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index_cache.json")
	rec := &recorder{}
	w := NewWatcher(path, rec.record, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if !waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.started
	}) {
		t.Fatal("watcher did not stop on cancel")
	}
	_ = os.WriteFile(path, []byte("{}"), 0644)
	time.Sleep(100 * time.Millisecond)
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("stopped watcher reported %d events", n)
	}
}
