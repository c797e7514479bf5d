package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/seanblong/ragpipe/pkg/models"
)

func TestRateLimitedPassthrough(t *testing.T) {
	emb := NewStubEmbedder(8)
	if got := RateLimited(emb, 0, 0); got != Embedder(emb) {
		t.Errorf("zero rate should return the embedder unchanged")
	}

	limited := RateLimited(emb, 1000, 2)
	if limited.Dim() != 8 || limited.Model() != "stub-bow" {
		t.Errorf("wrapper should delegate Dim and Model")
	}
	vecs, err := limited.Embed(context.Background(), []string{"a b"})
	if err != nil || len(vecs) != 1 {
		t.Errorf("Embed = %v, %v", vecs, err)
	}
}

func TestRateLimitedCancelled(t *testing.T) {
	limited := RateLimited(NewStubEmbedder(8), 0.001, 1)
	ctx := context.Background()
	if _, err := limited.Embed(ctx, []string{"first"}); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := limited.Embed(ctx, []string{"second"})
	if !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure, got %v", err)
	}
}

// queryModeEmbedder records which embedding mode was used.
type queryModeEmbedder struct {
	*StubEmbedder
	queries []string
}

func (q *queryModeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	q.queries = append(q.queries, text)
	vecs, err := q.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func TestEmbedQuery(t *testing.T) {
	ctx := context.Background()

	plain := NewStubEmbedder(8)
	v, err := EmbedQuery(ctx, plain, "apple")
	if err != nil || len(v) != 8 {
		t.Errorf("plain embedder: %v, %v", v, err)
	}

	qm := &queryModeEmbedder{StubEmbedder: NewStubEmbedder(8)}
	if _, err := EmbedQuery(ctx, qm, "apple"); err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if _, err := EmbedQuery(ctx, RateLimited(qm, 1000, 1), "banana"); err != nil {
		t.Fatalf("EmbedQuery through limiter: %v", err)
	}
	if len(qm.queries) != 2 || qm.queries[1] != "banana" {
		t.Errorf("query mode not used: %v", qm.queries)
	}
}

type countEmbedder struct{ *StubEmbedder }

func (countEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1}, {2}}, nil
}

func TestEmbedQueryWrongCount(t *testing.T) {
	_, err := EmbedQuery(context.Background(), countEmbedder{NewStubEmbedder(1)}, "x")
	if !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure, got %v", err)
	}
}
