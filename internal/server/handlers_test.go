package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/retriever/internal/cache"
	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/retrieval"
)

func newTestServer(t *testing.T, provider *embedding.Provider) (*Server, *cache.Manager) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Cache.Path = filepath.Join(t.TempDir(), "index_cache.json")
	mgr := cache.NewManager(cfg.Cache.Path, nil)
	engine := retrieval.NewEngine(provider, mgr)
	return NewServer(engine, mgr, cfg, nil), mgr
}

func hashProvider() *embedding.Provider {
	return embedding.NewReadyProvider(embedding.NewHashEmbedder(16))
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func TestHandleQuery_IndexUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, hashProvider())
	w := do(t, srv, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "SVP level"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", w.Code)
	}
	var out map[string]string
	_ = json.NewDecoder(w.Body).Decode(&out)
	if !strings.Contains(out["error"], "run the indexing step first") {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleIndexThenQuery(t *testing.T) {
	srv, mgr := newTestServer(t, hashProvider())
	req := models.IndexRequest{Documents: []models.Document{
		{Text: "the SVP level is 7", Metadata: models.Metadata{models.MetaSource: "doc:svp"}},
		{Text: "physical demands include lifting", Metadata: models.Metadata{models.MetaSource: "doc:lift"}},
	}}
	w := do(t, srv, http.MethodPost, "/api/v1/index", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("index status: got %d: %s", w.Code, w.Body.String())
	}
	var stats retrieval.BuildStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Chunks != 2 || !stats.Persisted {
		t.Errorf("stats = %+v", stats)
	}
	if !mgr.Exists() {
		t.Error("cache should be written")
	}

	w = do(t, srv, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "the SVP level is 7", K: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("query status: got %d", w.Code)
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeSemantic || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].Content != "the SVP level is 7" || resp.Results[0].Metadata.String(models.MetaSource) != "doc:svp" {
		t.Errorf("result = %+v", resp.Results[0])
	}
}

func TestHandleQuery_KeywordFallback(t *testing.T) {
	down := embedding.NewProvider(func() (embedding.Embedder, error) { return nil, errors.New("no model") })
	srv, mgr := newTestServer(t, down)
	if err := mgr.Save([]models.IndexEntry{
		{Content: "the SVP level is 7", Embedding: []float32{1, 0}},
		{Content: "physical demands include lifting", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatal(err)
	}
	w := do(t, srv, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "SVP level"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp models.QueryResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Mode != models.ModeKeyword || len(resp.Results) != 1 || resp.Results[0].Content != "the SVP level is 7" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleQuery_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, hashProvider())
	if w := do(t, srv, http.MethodPost, "/api/v1/query", "{not json"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
}

func TestHandleIndex_Errors(t *testing.T) {
	srv, _ := newTestServer(t, hashProvider())
	if w := do(t, srv, http.MethodPost, "/api/v1/index", "nope"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid body: got %d", w.Code)
	}
	empty := models.IndexRequest{Documents: []models.Document{{Text: "  "}}}
	if w := do(t, srv, http.MethodPost, "/api/v1/index", empty); w.Code != http.StatusBadRequest {
		t.Errorf("no text: got %d", w.Code)
	}

	down := embedding.NewProvider(func() (embedding.Embedder, error) { return nil, errors.New("no model") })
	srv, _ = newTestServer(t, down)
	req := models.IndexRequest{Documents: []models.Document{{Text: "some text"}}}
	if w := do(t, srv, http.MethodPost, "/api/v1/index", req); w.Code != http.StatusServiceUnavailable {
		t.Errorf("provider down: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, mgr := newTestServer(t, hashProvider())
	_ = mgr.Save([]models.IndexEntry{{Content: "x", Embedding: []float32{1}}})

	w := do(t, srv, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Index struct {
			State   string `json:"state"`
			Entries int    `json:"entries"`
		} `json:"index"`
		Config map[string]interface{} `json:"config"`
		Cache  map[string]interface{} `json:"cache"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Index.State != "uninitialized" {
		t.Errorf("status must not load the index, state = %q", out.Index.State)
	}
	if out.Config["embedding_provider"] != config.ProviderONNX {
		t.Errorf("config = %v", out.Config)
	}
	if size, _ := out.Cache["size_bytes"].(float64); size <= 0 {
		t.Errorf("cache = %v", out.Cache)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, hashProvider())
	w := do(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out["status"] != "ok" {
		t.Errorf("body = %v, %v", out, err)
	}
}
