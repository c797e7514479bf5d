package ai

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/seanblong/ragpipe/pkg/models"
)

// newOpenAIClient builds a go-openai client for an OpenAI or OpenAI-compatible endpoint.
func newOpenAIClient(config *ClientConfig) *openai.Client {
	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("RAGPIPE_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	cc.HTTPClient = &http.Client{Transport: transport}
	return openai.NewClientWithConfig(cc)
}

type OpenAIEmbedder struct {
	config *ClientConfig
	client *openai.Client
}

func NewOpenAIEmbedder(config *ClientConfig) *OpenAIEmbedder {
	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = string(openai.SmallEmbedding3)
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case string(openai.LargeEmbedding3):
			config.Dim = 3072
		default:
			config.Dim = 1536
		}
	}

	return &OpenAIEmbedder{
		config: config,
		client: newOpenAIClient(config),
	}
}

// Embed sends texts as one batch request and returns vectors in input order.
func (c *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.config.APIKey == "" && c.config.BaseURL == "" {
		return nil, fmt.Errorf("%w: PROVIDER_API_KEY unset", models.ErrEmbeddingFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.EmbedModel),
	}
	if strings.HasPrefix(c.config.EmbedModel, "text-embedding-3") {
		req.Dimensions = c.config.Dim
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, wrapErr(models.ErrEmbeddingFailure, "openai embeddings", describeOpenAIError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs",
			models.ErrEmbeddingFailure, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *OpenAIEmbedder) Dim() int {
	return c.config.Dim
}

func (c *OpenAIEmbedder) Model() string {
	return c.config.EmbedModel
}

type OpenAIGenerator struct {
	config *ClientConfig
	client *openai.Client
}

func NewOpenAIGenerator(config *ClientConfig) *OpenAIGenerator {
	if config.GenerateModel == "" {
		config.GenerateModel = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		config: config,
		client: newOpenAIClient(config),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.config.APIKey == "" && g.config.BaseURL == "" {
		return "", fmt.Errorf("%w: PROVIDER_API_KEY unset", models.ErrGenerationUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.timeout())
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.GenerateModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", wrapErr(models.ErrGenerationUnavailable, "openai chat", describeOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", models.ErrGenerationUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// describeOpenAIError keeps the status code and API message of a failed request.
func describeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
