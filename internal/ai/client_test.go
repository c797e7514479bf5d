package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/seanblong/ragpipe/pkg/models"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"vertexai", ProviderVertexAI, false},
		{"google", ProviderVertexAI, false},
		{"ollama", ProviderOllama, false},
		{"stub", ProviderStub, false},
		{"", ProviderStub, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name       string
		config     *ClientConfig
		errorMsg   string
		clientType string
	}{
		{name: "nil config", config: nil, errorMsg: "client config is required"},
		{
			name:       "openai provider",
			config:     &ClientConfig{Provider: ProviderOpenAI, APIKey: "test-key"},
			clientType: "*ai.OpenAIEmbedder",
		},
		{
			name:       "stub provider",
			config:     &ClientConfig{Provider: ProviderStub, Dim: 16},
			clientType: "*ai.StubEmbedder",
		},
		{
			name:     "ollama cannot embed",
			config:   &ClientConfig{Provider: ProviderOllama},
			errorMsg: "unsupported embedding provider: ollama",
		},
		{
			name:     "unsupported provider",
			config:   &ClientConfig{Provider: Provider("unsupported")},
			errorMsg: "unsupported embedding provider: unsupported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := NewEmbedder(tt.config)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errorMsg, err)
				}
				if emb != nil {
					t.Errorf("expected nil embedder on error, got %v", emb)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", emb); got != tt.clientType {
				t.Errorf("embedder type = %s, want %s", got, tt.clientType)
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name       string
		config     *ClientConfig
		clientType string
		wantErr    bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "openai", config: &ClientConfig{Provider: ProviderOpenAI, APIKey: "k"}, clientType: "*ai.OpenAIGenerator"},
		{name: "ollama", config: &ClientConfig{Provider: ProviderOllama}, clientType: "*ai.OllamaGenerator"},
		{name: "stub", config: &ClientConfig{Provider: ProviderStub}, clientType: "*ai.StubGenerator"},
		{name: "unknown", config: &ClientConfig{Provider: "nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewGenerator(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", gen); got != tt.clientType {
				t.Errorf("generator type = %s, want %s", got, tt.clientType)
			}
		})
	}
}

func TestWrapErrMarksTimeouts(t *testing.T) {
	err := wrapErr(models.ErrEmbeddingFailure, "op", context.DeadlineExceeded)
	if !errors.Is(err, models.ErrEmbeddingFailure) || !errors.Is(err, models.ErrTimeout) {
		t.Errorf("expected embedding failure and timeout in chain, got %v", err)
	}

	err = wrapErr(models.ErrGenerationUnavailable, "op", errors.New("connection refused"))
	if errors.Is(err, models.ErrTimeout) {
		t.Errorf("non-deadline error must not be a timeout: %v", err)
	}
	if !errors.Is(err, models.ErrGenerationUnavailable) {
		t.Errorf("expected generation unavailable in chain, got %v", err)
	}
}

func TestStubEmbedderDeterministic(t *testing.T) {
	s := NewStubEmbedder(0)
	if s.Dim() != defaultStubDim {
		t.Fatalf("Dim = %d, want %d", s.Dim(), defaultStubDim)
	}

	a, err := s.Embed(context.Background(), []string{"Apple banana", "apple, BANANA!"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(a) != 2 || len(a[0]) != defaultStubDim {
		t.Fatalf("unexpected shape %d x %d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			t.Fatalf("case and punctuation should not change the vector (index %d)", i)
		}
	}

	var sum float32
	for _, v := range a[0] {
		sum += v
	}
	if sum != 2 {
		t.Errorf("expected two word counts, got %v", sum)
	}
}

func TestStubGenerator(t *testing.T) {
	g := &StubGenerator{}
	out, err := g.Generate(context.Background(), "anything", 10)
	if err != nil || out != "I don't know." {
		t.Errorf("Generate = %q, %v", out, err)
	}
	g.Reply = "forty-two"
	if out, _ := g.Generate(context.Background(), "q", 10); out != "forty-two" {
		t.Errorf("Generate = %q, want forty-two", out)
	}
}
