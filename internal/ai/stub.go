package ai

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const defaultStubDim = 256

// StubEmbedder is an offline embedder: a hashed bag of lowercase words.
// Identical inputs always give identical vectors.
type StubEmbedder struct {
	dim int
}

// NewStubEmbedder creates a new StubEmbedder
func NewStubEmbedder(dim int) *StubEmbedder {
	if dim <= 0 {
		dim = defaultStubDim
	}
	return &StubEmbedder{dim: dim}
}

func (s *StubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, s.dim)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%uint32(s.dim)]++
		}
		out[i] = vec
	}
	return out, nil
}

// Dim returns the embedding dimension
func (s *StubEmbedder) Dim() int { return s.dim }

func (s *StubEmbedder) Model() string { return "stub-bow" }

// StubGenerator answers every prompt with Reply.
type StubGenerator struct {
	Reply string
}

func (g *StubGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.Reply == "" {
		return "I don't know.", nil
	}
	return g.Reply, nil
}
