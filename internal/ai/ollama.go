package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/pkg/models"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaGenerator talks to a local Ollama server over its HTTP API.
type OllamaGenerator struct {
	config     *ClientConfig
	http       *http.Client
	Extractors []Extractor

	mu    sync.Mutex
	model string
}

func NewOllamaGenerator(config *ClientConfig) *OllamaGenerator {
	if config.BaseURL == "" {
		config.BaseURL = defaultOllamaURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &OllamaGenerator{
		config:     config,
		http:       &http.Client{},
		Extractors: DefaultExtractors,
		model:      config.GenerateModel,
	}
}

// Generate posts prompt to /api/generate. With no configured model the first
// model listed by /api/tags is used and remembered.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.timeout())
	defer cancel()

	payload := map[string]any{
		"prompt": prompt,
		"stream": false,
	}
	if model := g.chooseModel(ctx); model != "" {
		payload["model"] = model
	}
	if maxTokens > 0 {
		payload["options"] = map[string]any{"num_predict": maxTokens}
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/api/generate", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGenerationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", wrapErr(models.ErrGenerationUnavailable, "could not reach ollama at "+g.config.BaseURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapErr(models.ErrGenerationUnavailable, "read ollama response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: ollama returned %s: %s",
			models.ErrGenerationUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}

	text, strategy := ExtractText(body, g.Extractors)
	log.Debug().Str("strategy", strategy).Int("bytes", len(body)).Msg("ollama response parsed")
	return text, nil
}

// chooseModel returns the configured model, or discovers one. Discovery
// failures are not fatal: the request then goes out without a model.
func (g *OllamaGenerator) chooseModel(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != "" {
		return g.model
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return ""
	}
	resp, err := g.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("ollama model discovery failed")
		return ""
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	if names := parseModelNames(body); len(names) > 0 {
		g.model = names[0]
		log.Info().Str("model", g.model).Msg("discovered ollama model")
	}
	return g.model
}

// parseModelNames accepts {"models":[{"name":..}]}, {"tags":[..]} or a bare list.
func parseModelNames(body []byte) []string {
	var listed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(body, &listed); err == nil {
		var names []string
		for _, m := range listed.Models {
			if m.Name != "" {
				names = append(names, m.Name)
			}
		}
		if len(names) > 0 {
			return names
		}
		if len(listed.Tags) > 0 {
			return listed.Tags
		}
	}
	var bare []string
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}
	return nil
}
