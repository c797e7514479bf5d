package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/seanblong/ragpipe/pkg/models"
)

func TestNewVertexAI_NilConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewVertexAIEmbedder(ctx, nil); err == nil {
		t.Error("expected error for nil embedder config")
	}
	if _, err := NewVertexAIGenerator(ctx, nil); err == nil {
		t.Error("expected error for nil generator config")
	}
}

func TestVertexAIEmbedder_Uninitialized(t *testing.T) {
	e := &VertexAIEmbedder{config: &ClientConfig{EmbedModel: "text-embedding-005", Dim: 768}}

	out, err := e.Embed(context.Background(), nil)
	if err != nil || out != nil {
		t.Errorf("empty input: got %v, %v", out, err)
	}

	_, err = e.Embed(context.Background(), []string{"hello"})
	if !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure, got %v", err)
	}
	if _, err := e.EmbedQuery(context.Background(), "hello"); !errors.Is(err, models.ErrEmbeddingFailure) {
		t.Errorf("EmbedQuery: expected ErrEmbeddingFailure, got %v", err)
	}
	var _ QueryEmbedder = e
	if e.Dim() != 768 || e.Model() != "text-embedding-005" {
		t.Errorf("Dim/Model = %d/%s", e.Dim(), e.Model())
	}
}

func TestVertexAIGenerator_Uninitialized(t *testing.T) {
	g := &VertexAIGenerator{config: &ClientConfig{}}
	_, err := g.Generate(context.Background(), "prompt", 10)
	if !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Errorf("expected ErrGenerationUnavailable, got %v", err)
	}
}
