// Package indexer runs the build pipeline: load documents, chunk them, embed
// the chunks and persist the resulting artifacts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/ai"
	"github.com/seanblong/ragpipe/internal/chunker"
	"github.com/seanblong/ragpipe/internal/corpus"
	"github.com/seanblong/ragpipe/internal/index"
)

// DocumentLoader defines the interface for reading a corpus
type DocumentLoader interface {
	Load(ctx context.Context) (corpus.Result, error)
}

// Indexer builds and saves one index per Run.
type Indexer struct {
	Loader   DocumentLoader
	Chunker  *chunker.Chunker
	Embedder ai.Embedder
	Store    index.ArtifactStore
	Options  index.BuildOptions
}

// Report accounts for every document seen during a Run.
type Report struct {
	Documents int
	Skipped   []corpus.Skip
	Chunks    int
	Dim       int
	RunID     string
	Duration  time.Duration
}

// New creates a new Indexer instance.
func New(loader DocumentLoader, ch *chunker.Chunker, emb ai.Embedder, store index.ArtifactStore, opts index.BuildOptions) (*Indexer, error) {
	if loader == nil || ch == nil || emb == nil || store == nil {
		return nil, errors.New("indexer requires a loader, chunker, embedder and store")
	}
	return &Indexer{
		Loader:   loader,
		Chunker:  ch,
		Embedder: emb,
		Store:    store,
		Options:  opts,
	}, nil
}

// Run replaces the stored artifacts with a fresh build of the corpus. Nothing
// is saved if any stage fails.
func (ix *Indexer) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	res, err := ix.Loader.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load documents: %w", err)
	}
	report.Documents = len(res.Documents)
	report.Skipped = res.Skipped

	chunks := ix.Chunker.SplitAll(res.Documents)
	report.Chunks = len(chunks)
	log.Info().
		Int("documents", report.Documents).
		Int("skipped", len(report.Skipped)).
		Int("chunks", report.Chunks).
		Int("max_tokens", ix.Chunker.MaxTokens()).
		Int("overlap", ix.Chunker.Overlap()).
		Msg("corpus chunked")

	a, err := index.Build(ctx, chunks, ix.Embedder, ix.Options)
	if err != nil {
		return report, fmt.Errorf("build index: %w", err)
	}
	if err := ix.Store.Save(ctx, a); err != nil {
		return report, fmt.Errorf("save artifacts: %w", err)
	}

	report.Dim = a.Index.Dim()
	report.RunID = a.Manifest.RunID
	report.Duration = time.Since(start)
	log.Info().
		Str("run_id", report.RunID).
		Int("vectors", a.Index.Len()).
		Dur("duration", report.Duration).
		Msg("indexing complete")
	return report, nil
}
