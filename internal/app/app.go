// Package app turns a loaded configuration into the pipeline's components.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/ai"
	"github.com/seanblong/ragpipe/internal/chunker"
	"github.com/seanblong/ragpipe/internal/config"
	"github.com/seanblong/ragpipe/internal/corpus"
	"github.com/seanblong/ragpipe/internal/index"
	"github.com/seanblong/ragpipe/internal/store"
	"github.com/seanblong/ragpipe/internal/tokenize"
)

// NewLogger builds the process logger and installs it as the global one.
func NewLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if w == nil {
		w = os.Stdout
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)
	log.Logger = logger
	return logger, nil
}

// EmbedderConfig maps the provider settings onto an ai.ClientConfig.
func EmbedderConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	provider, err := ai.ParseProvider(strings.ToLower(cfg.Provider))
	if err != nil {
		return nil, err
	}
	return &ai.ClientConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
		Provider:   provider,
		Timeout:    cfg.Timeout(),
	}, nil
}

// GeneratorConfig maps the generator settings, falling back to the
// embedding provider's credentials.
func GeneratorConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	provider, err := ai.ParseProvider(strings.ToLower(cfg.GeneratorProvider()))
	if err != nil {
		return nil, err
	}
	baseURL := cfg.Generator.BaseURL
	if baseURL == "" && provider != ai.ProviderOllama {
		baseURL = cfg.BaseURL
	}
	return &ai.ClientConfig{
		APIKey:        cfg.APIKey,
		BaseURL:       baseURL,
		GenerateModel: cfg.Generator.Model,
		ProjectID:     cfg.ProjectID,
		Location:      cfg.Location,
		Provider:      provider,
		Timeout:       cfg.Timeout(),
	}, nil
}

// NewEmbedder creates the configured embedder, rate limited when asked.
func NewEmbedder(cfg config.Specification) (ai.Embedder, error) {
	cc, err := EmbedderConfig(cfg)
	if err != nil {
		return nil, err
	}
	emb, err := ai.NewEmbedder(cc)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", string(cc.Provider)).Str("model", emb.Model()).Int("dim", emb.Dim()).Msg("embedder ready")
	return ai.RateLimited(emb, cfg.RateLimit, max(1, cfg.Workers)), nil
}

func NewGenerator(cfg config.Specification) (ai.Generator, error) {
	cc, err := GeneratorConfig(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewGenerator(cc)
}

// NewChunker builds the tokenizer and chunker from the chunk settings.
func NewChunker(cfg config.Specification) (*chunker.Chunker, error) {
	tok, err := tokenize.New(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	return chunker.New(tok, cfg.ChunkMaxTokens, cfg.ChunkOverlap)
}

func NewLoader(cfg config.Specification) *corpus.Loader {
	return corpus.New(cfg.DocsDir, cfg.Recursive, cfg.Extensions, cfg.ExtraDirs...)
}

// BuildOptions returns the embedding options for index.Build.
func BuildOptions(cfg config.Specification) index.BuildOptions {
	return index.BuildOptions{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Retries:   cfg.Retries,
	}
}

// OpenStore opens the configured artifact store. The returned func releases
// it. Explicit index/metadata paths take precedence for readers.
func OpenStore(ctx context.Context, cfg config.Specification, readOnly bool) (index.ArtifactStore, func(), error) {
	noop := func() {}
	if readOnly && cfg.IndexPath != "" {
		return &index.PathStore{IndexPath: cfg.IndexPath, MetadataPath: cfg.MetadataPath}, noop, nil
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		st, err := store.New(ctx, cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to database: %w", err)
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, noop, fmt.Errorf("ping database: %w", err)
		}
		return st, st.Close, nil
	case config.BackendFile, "":
		return index.NewFileStore(cfg.ArtifactDir, cfg.KeepRuns), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}
