// Package rag answers questions from retrieved context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/ai"
	"github.com/seanblong/ragpipe/internal/metrics"
	"github.com/seanblong/ragpipe/pkg/models"
)

const (
	DefaultK         = 3
	DefaultMaxTokens = 150
)

const instruction = "Answer the question using only the context below. If the answer is unknown, say you don't know."

// Retriever returns the entries nearest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, q string, k int) ([]models.IndexEntry, error)
}

// Answer is the generated text together with the context it was given.
type Answer struct {
	Text    string              `json:"answer"`
	Sources []models.IndexEntry `json:"sources"`
	// Degraded is set when generation failed and Text is a diagnostic.
	Degraded bool `json:"degraded,omitempty"`
}

type Answerer struct {
	Retriever Retriever
	Generator ai.Generator
	K         int
	MaxTokens int
}

func New(r Retriever, g ai.Generator, k, maxTokens int) *Answerer {
	if k <= 0 {
		k = DefaultK
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Answerer{Retriever: r, Generator: g, K: k, MaxTokens: maxTokens}
}

// Answer retrieves context for q and asks the generator. Retrieval errors are
// returned; generation errors are reported in the answer text instead.
func (a *Answerer) Answer(ctx context.Context, q string) (Answer, error) {
	entries, err := a.Retriever.Retrieve(ctx, q, a.K)
	if err != nil {
		return Answer{}, err
	}

	prompt := BuildPrompt(q, entries)
	text, err := a.Generator.Generate(ctx, prompt, a.MaxTokens)
	if err != nil {
		log.Warn().Err(err).Msg("generation failed")
		metrics.AnswersTotal.WithLabelValues("true").Inc()
		return Answer{
			Text:     fmt.Sprintf("Generation unavailable: %v", err),
			Sources:  entries,
			Degraded: true,
		}, nil
	}

	metrics.AnswersTotal.WithLabelValues("false").Inc()
	return Answer{Text: strings.TrimSpace(text), Sources: entries}, nil
}

// BuildPrompt joins the retrieved contents with newlines under the
// instruction and appends the question.
func BuildPrompt(q string, entries []models.IndexEntry) string {
	contents := make([]string, len(entries))
	for i, e := range entries {
		contents[i] = e.Content
	}
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contents, "\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(q)
	b.WriteString("\nAnswer:")
	return b.String()
}
