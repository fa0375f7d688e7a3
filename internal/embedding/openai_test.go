package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		requests++
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Reverse order to check that Index is honoured.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(j + 1), 0}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e, err := NewOpenAIEmbedder(OpenAIOptions{
		Model:      "text-embedding-3-small",
		APIKeyEnv:  "TEST_OPENAI_KEY",
		BaseURL:    srv.URL + "/v1",
		Dimensions: 2,
		BatchSize:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if requests != 2 {
		t.Errorf("expected 2 batched requests, got %d", requests)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != 1 || v[1] != 0 {
			t.Errorf("vector %d = %v, want normalized [1 0]", i, v)
		}
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions=%d", e.Dimensions())
	}
}

func TestOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY_MISSING", "")
	if _, err := NewOpenAIEmbedder(OpenAIOptions{APIKeyEnv: "TEST_OPENAI_KEY_MISSING"}); err == nil {
		t.Error("expected error when the API key is missing")
	}
}

func TestOpenAIEmbedder_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e, err := NewOpenAIEmbedder(OpenAIOptions{Model: "m", APIKeyEnv: "TEST_OPENAI_KEY", BaseURL: srv.URL + "/v1", Dimensions: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error from failing server")
	}
}

func TestModelDimensions(t *testing.T) {
	if modelDimensions("text-embedding-3-large", 0) != 3072 {
		t.Error("large model should default to 3072")
	}
	if modelDimensions("text-embedding-3-small", 0) != 1536 {
		t.Error("small model should default to 1536")
	}
	if modelDimensions("anything", 256) != 256 {
		t.Error("explicit dimensions should win")
	}
}
