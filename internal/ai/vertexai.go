package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/seanblong/ragpipe/pkg/models"
)

// newGenaiClient creates a client for the Gemini API on Vertex AI. An API key
// selects express mode, which takes no project or location.
func newGenaiClient(ctx context.Context, config *ClientConfig) (*genai.Client, error) {
	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if key := strings.TrimSpace(config.APIKey); key != "" {
		cc.APIKey = key
	} else {
		cc.Project = strings.TrimSpace(config.ProjectID)
		cc.Location = strings.TrimSpace(config.Location)
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

type VertexAIEmbedder struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIEmbedder creates an embedder backed by the Gemini API.
func NewVertexAIEmbedder(ctx context.Context, config *ClientConfig) (*VertexAIEmbedder, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}

	client, err := newGenaiClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &VertexAIEmbedder{config: config, client: client}, nil
}

// Embed embeds corpus texts with the RETRIEVAL_DOCUMENT task type.
func (c *VertexAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a search query with the RETRIEVAL_QUERY task type.
func (c *VertexAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *VertexAIEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.client == nil {
		return nil, fmt.Errorf("%w: vertexai client not initialized", models.ErrEmbeddingFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	dim := int32(c.config.Dim)
	cfg := genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, contents, &cfg)
	if err != nil {
		return nil, wrapErr(models.ErrEmbeddingFailure, "vertexai embeddings", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: vertexai returned an incomplete embedding batch", models.ErrEmbeddingFailure)
	}

	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("%w: vertexai returned no embedding for input %d", models.ErrEmbeddingFailure, i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *VertexAIEmbedder) Dim() int { return c.config.Dim }

func (c *VertexAIEmbedder) Model() string { return c.config.EmbedModel }

type VertexAIGenerator struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIGenerator creates a generator backed by the Gemini API.
func NewVertexAIGenerator(ctx context.Context, config *ClientConfig) (*VertexAIGenerator, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.GenerateModel == "" {
		config.GenerateModel = "gemini-2.0-flash"
	}

	client, err := newGenaiClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &VertexAIGenerator{config: config, client: client}, nil
}

func (g *VertexAIGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: vertexai client not initialized", models.ErrGenerationUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.timeout())
	defer cancel()

	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(maxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.GenerateModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", wrapErr(models.ErrGenerationUnavailable, "vertexai generate", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content returned", models.ErrGenerationUnavailable)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
