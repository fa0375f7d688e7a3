package embedding

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/retriever/internal/config"
)

// NewFactory returns a Factory for the provider named in cfg. Nothing is loaded until
// the factory is called.
func NewFactory(cfg *config.EmbeddingConfig) Factory {
	return func() (Embedder, error) {
		var (
			e   Embedder
			err error
		)
		switch cfg.Provider {
		case config.ProviderONNX:
			e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		case config.ProviderOpenAI:
			e, err = NewOpenAIEmbedder(OpenAIOptions{
				Model:      cfg.OpenAI.Model,
				APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
				BaseURL:    cfg.OpenAI.BaseURL,
				Dimensions: cfg.OpenAI.Dimensions,
				BatchSize:  cfg.BatchSize,
				Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			})
		case config.ProviderHash:
			e = NewHashEmbedder(cfg.Dimensions)
		case config.ProviderNone:
			return nil, errors.New("embeddings disabled by configuration")
		default:
			return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
		}
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
}
