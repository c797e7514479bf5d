// Package search answers nearest-neighbour queries against persisted artifacts.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/ai"
	"github.com/seanblong/ragpipe/internal/index"
	"github.com/seanblong/ragpipe/internal/metrics"
	"github.com/seanblong/ragpipe/pkg/models"
)

// Service loads artifacts from Store once and serves queries from memory
// until Reload is called.
type Service struct {
	Embedder ai.Embedder
	Store    index.ArtifactStore

	mu        sync.RWMutex
	artifacts *index.Artifacts
}

// NewService creates a new search service with the provided embedder and store
func NewService(emb ai.Embedder, store index.ArtifactStore) *Service {
	return &Service{
		Embedder: emb,
		Store:    store,
	}
}

// Query returns up to k results ordered by ascending distance to q.
func (s *Service) Query(ctx context.Context, q string, k int) (res []models.SearchResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
		metrics.RetrievalsTotal.WithLabelValues(metrics.Status(err)).Inc()
	}()

	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	a, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	qv, err := ai.EmbedQuery(ctx, s.Embedder, strings.TrimSpace(q))
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrEmbeddingFailure, err)
	}
	if len(qv) != a.Index.Dim() {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d",
			models.ErrEmbeddingFailure, len(qv), a.Index.Dim())
	}

	dists, positions, err := a.Index.Search(qv, k)
	if err != nil {
		return nil, err
	}

	res = make([]models.SearchResult, len(positions))
	for i, p := range positions {
		if p < 0 || p >= len(a.Metadata) {
			return nil, fmt.Errorf("%w: search returned position %d, metadata has %d entries",
				models.ErrArtifactInconsistency, p, len(a.Metadata))
		}
		res[i] = models.SearchResult{Entry: a.Metadata[p], Distance: dists[i]}
	}
	log.Debug().Str("query", q).Int("k", k).Int("results", len(res)).Msg("query served")
	return res, nil
}

// Retrieve is Query without distances.
func (s *Service) Retrieve(ctx context.Context, q string, k int) ([]models.IndexEntry, error) {
	res, err := s.Query(ctx, q, k)
	if err != nil {
		return nil, err
	}
	out := make([]models.IndexEntry, len(res))
	for i, r := range res {
		out[i] = r.Entry
	}
	return out, nil
}

// Reload drops the cached artifacts and loads them again from the store.
func (s *Service) Reload(ctx context.Context) error {
	a, err := s.open(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.artifacts = a
	s.mu.Unlock()
	return nil
}

// Manifest describes the loaded artifacts. ok is false before the first load.
func (s *Service) Manifest() (m models.Manifest, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.artifacts == nil {
		return models.Manifest{}, false
	}
	return s.artifacts.Manifest, true
}

func (s *Service) load(ctx context.Context) (*index.Artifacts, error) {
	s.mu.RLock()
	a := s.artifacts
	s.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifacts != nil {
		return s.artifacts, nil
	}
	a, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	s.artifacts = a
	return a, nil
}

// open loads artifacts and checks them against the embedder.
func (s *Service) open(ctx context.Context) (*index.Artifacts, error) {
	a, err := s.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := index.Validate(a); err != nil {
		return nil, err
	}
	if err := checkEmbedder(a, s.Embedder); err != nil {
		return nil, err
	}

	metrics.IndexSize.Set(float64(a.Index.Len()))
	log.Info().
		Str("run_id", a.Manifest.RunID).
		Str("embed_model", a.Manifest.EmbedModel).
		Int("vectors", a.Index.Len()).
		Msg("artifacts loaded")
	return a, nil
}

// checkEmbedder fails when the artifacts were built by a different model or
// at a different dimension than emb produces.
func checkEmbedder(a *index.Artifacts, emb ai.Embedder) error {
	if dim := emb.Dim(); dim != 0 && dim != a.Index.Dim() {
		return fmt.Errorf("%w: index built with dimension %d, embedder produces %d",
			models.ErrEmbeddingFailure, a.Index.Dim(), dim)
	}
	built, current := a.Manifest.EmbedModel, emb.Model()
	if built != "" && current != "" && built != current {
		return fmt.Errorf("%w: index built with model %q, embedder is %q",
			models.ErrEmbeddingFailure, built, current)
	}
	return nil
}
