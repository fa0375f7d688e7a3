package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Factory acquires an Embedder. It may be expensive (model loading) and may fail.
type Factory func() (Embedder, error)

type providerState int

const (
	stateUninitialized providerState = iota
	stateReady
	stateDegraded
)

func (s providerState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Provider acquires its Embedder on first use, exactly once per process. If acquisition
// fails the provider stays degraded for good and every call returns ErrUnavailable.
// Provider itself satisfies Embedder.
type Provider struct {
	factory  Factory
	logger   *zap.Logger
	once     sync.Once
	mu       sync.RWMutex
	state    providerState
	embedder Embedder
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger used to report acquisition.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// NewProvider returns a provider that calls factory on first use.
func NewProvider(factory Factory, opts ...ProviderOption) *Provider {
	p := &Provider{factory: factory, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewReadyProvider wraps an already constructed Embedder.
func NewReadyProvider(e Embedder, opts ...ProviderOption) *Provider {
	return NewProvider(func() (Embedder, error) { return e, nil }, opts...)
}

func (p *Provider) acquire() (Embedder, error) {
	p.once.Do(func() {
		e, err := p.callFactory()
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.state = stateDegraded
			p.logger.Warn("embedding provider unavailable, queries will use keyword search", zap.Error(err))
			return
		}
		p.embedder = e
		p.state = stateReady
		p.logger.Info("embedding provider ready", zap.Int("dimensions", e.Dimensions()))
	})
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != stateReady {
		return nil, ErrUnavailable
	}
	return p.embedder, nil
}

func (p *Provider) callFactory() (e Embedder, err error) {
	if p.factory == nil {
		return nil, errors.New("no embedding factory configured")
	}
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("embedding factory panicked: %v", r)
		}
	}()
	e, err = p.factory()
	if err == nil && e == nil {
		err = errors.New("embedding factory returned nil embedder")
	}
	return e, err
}

// Embed embeds texts with the acquired model. It returns ErrUnavailable when the
// provider is degraded; any other error comes from the model itself.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := p.acquire()
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Available acquires the model if needed and reports whether it is usable.
func (p *Provider) Available() bool {
	_, err := p.acquire()
	return err == nil
}

// State returns "uninitialized", "ready", or "degraded" without triggering acquisition.
func (p *Provider) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.String()
}

// Dimensions returns the model's dimensionality, or 0 when unavailable.
func (p *Provider) Dimensions() int {
	e, err := p.acquire()
	if err != nil {
		return 0
	}
	return e.Dimensions()
}

// Close releases the acquired model, if any.
func (p *Provider) Close() error {
	p.mu.RLock()
	e := p.embedder
	p.mu.RUnlock()
	if e == nil {
		return nil
	}
	return e.Close()
}
