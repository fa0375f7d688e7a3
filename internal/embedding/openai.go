package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAIEmbedder.
type OpenAIOptions struct {
	Model     string
	APIKeyEnv string
	BaseURL   string
	// Dimensions requests shortened vectors from models that support it; 0 uses the model default.
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OpenAIEmbedder embeds text through an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dim       int
	requested int
	batchSize int
	timeout   time.Duration
}

// NewOpenAIEmbedder creates an embedder. The API key is read from the environment
// variable named by opts.APIKeyEnv; a missing key is an error.
func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	key := os.Getenv(opts.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s environment variable not set", opts.APIKeyEnv)
	}
	cfg := openai.DefaultConfig(key)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 64
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dim:       modelDimensions(opts.Model, opts.Dimensions),
		requested: opts.Dimensions,
		batchSize: batch,
		timeout:   opts.Timeout,
	}, nil
}

func modelDimensions(model string, requested int) int {
	if requested > 0 {
		return requested
	}
	switch openai.EmbeddingModel(model) {
	case openai.LargeEmbedding3:
		return 3072
	default:
		return 1536
	}
}

// Embed sends texts in batches and returns L2-normalized vectors in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.requested,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings request: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(resp.Data), len(batch))
	}
	vecs := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != e.dim {
			return nil, fmt.Errorf("OpenAI returned %d dimensions, expected %d", len(d.Embedding), e.dim)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		NormalizeL2(v)
		vecs[d.Index] = v
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dim
}

// Close is a no-op; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
