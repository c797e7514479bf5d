// Package ai holds the model-backed capabilities of the pipeline: text
// embedding and text generation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seanblong/ragpipe/pkg/models"
)

// Embedder maps texts to fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Model() string
}

// QueryEmbedder is implemented by embedders whose models embed search queries
// differently from the documents they are matched against.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds a single search query, using the query mode of emb when
// it has one.
func EmbedQuery(ctx context.Context, emb Embedder, text string) ([]float32, error) {
	if q, ok := emb.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	vecs, err := emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", models.ErrEmbeddingFailure, len(vecs))
	}
	return vecs[0], nil
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderOllama   Provider = "ollama"
	ProviderStub     Provider = "stub"
)

// DefaultTimeout bounds a single remote call when the config leaves it unset.
const DefaultTimeout = 30 * time.Second

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey        string
	BaseURL       string
	EmbedModel    string
	GenerateModel string
	Dim           int
	ProjectID     string
	Location      string
	Provider      Provider
	Timeout       time.Duration
}

func (c *ClientConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// ParseProvider maps a configured provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch name {
	case "openai":
		return ProviderOpenAI, nil
	case "vertexai", "google":
		return ProviderVertexAI, nil
	case "ollama":
		return ProviderOllama, nil
	case "stub", "":
		return ProviderStub, nil
	default:
		return "", errors.New("unsupported provider: " + name)
	}
}

// NewEmbedder creates an embedder based on configuration
func NewEmbedder(config *ClientConfig) (Embedder, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(config), nil
	case ProviderVertexAI:
		return NewVertexAIEmbedder(context.Background(), config)
	case ProviderStub:
		return NewStubEmbedder(config.Dim), nil
	default:
		return nil, errors.New("unsupported embedding provider: " + string(config.Provider))
	}
}

// NewGenerator creates a generator based on configuration
func NewGenerator(config *ClientConfig) (Generator, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIGenerator(config), nil
	case ProviderVertexAI:
		return NewVertexAIGenerator(context.Background(), config)
	case ProviderOllama:
		return NewOllamaGenerator(config), nil
	case ProviderStub:
		return &StubGenerator{}, nil
	default:
		return nil, errors.New("unsupported generation provider: " + string(config.Provider))
	}
}

// wrapErr tags err with kind and, when the call ran out of time, ErrTimeout.
func wrapErr(kind error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w: %w", kind, op, models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
