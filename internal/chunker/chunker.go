// Package chunker cuts documents into fixed-size, overlapping token windows.
package chunker

import (
	"fmt"
	"iter"
	"unicode/utf8"

	"github.com/seanblong/ragpipe/internal/tokenize"
	"github.com/seanblong/ragpipe/pkg/models"
)

// Chunker emits windows of at most MaxTokens tokens, consecutive windows
// sharing Overlap tokens.
type Chunker struct {
	tok       tokenize.Tokenizer
	maxTokens int
	overlap   int
}

// New validates the window configuration. The step between windows
// (maxTokens - overlap) must be at least one token.
func New(tok tokenize.Tokenizer, maxTokens, overlap int) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", models.ErrInvalidChunkConfig)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", models.ErrInvalidChunkConfig, maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", models.ErrInvalidChunkConfig, maxTokens, overlap)
	}
	return &Chunker{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// Chunk is the one-shot form: validate and return the window sequence for text.
func Chunk(tok tokenize.Tokenizer, text string, maxTokens, overlap int) (iter.Seq[string], error) {
	c, err := New(tok, maxTokens, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunks(text), nil
}

func (c *Chunker) MaxTokens() int { return c.maxTokens }
func (c *Chunker) Overlap() int   { return c.overlap }

// Chunks returns the decoded windows of text. The sequence is lazy and can be
// ranged over any number of times; each pass tokenizes text again.
//
// Iteration stops at the first window that reaches the end of the token
// sequence, so a text of at most MaxTokens tokens yields exactly one window
// and no window is made purely of overlap.
//
// Byte-level tokenizers may split one character over several tokens. Window
// edges are moved back to the nearest token that starts a character, so every
// window decodes to valid UTF-8. A character longer than MaxTokens tokens
// makes its window longer than MaxTokens.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		tokens := c.tok.Encode(text)
		n := len(tokens)
		if n == 0 {
			return
		}
		cut := runeBoundaries(c.tok, tokens)
		step := c.maxTokens - c.overlap
		for i := 0; ; {
			end := align(cut, i, min(i+c.maxTokens, n))
			if !yield(c.tok.Decode(tokens[i:end])) {
				return
			}
			if end == n {
				return
			}
			i = align(cut, i, min(i+step, end))
		}
	}
}

// runeBoundaries reports for every position 0..len(tokens) whether a window
// may start or end there without splitting a character.
func runeBoundaries(tok tokenize.Tokenizer, tokens []int) []bool {
	cut := make([]bool, len(tokens)+1)
	cut[len(tokens)] = true
	next := true
	for j := len(tokens) - 1; j >= 0; j-- {
		b := tok.Decode(tokens[j : j+1])
		if b != "" {
			next = utf8.RuneStart(b[0])
		}
		cut[j] = next
	}
	return cut
}

// align moves want back to the closest boundary after from, or forward to the
// next one when none exists. cut[len(cut)-1] is always true.
func align(cut []bool, from, want int) int {
	for j := want; j > from; j-- {
		if cut[j] {
			return j
		}
	}
	for j := want + 1; j < len(cut); j++ {
		if cut[j] {
			return j
		}
	}
	return len(cut) - 1
}

// Split chunks a document and numbers the chunks from zero.
func (c *Chunker) Split(doc models.Document) []models.Chunk {
	var out []models.Chunk
	for text := range c.Chunks(doc.Text) {
		out = append(out, models.Chunk{
			Ordinal:  len(out),
			SourceID: doc.SourceID,
			Text:     text,
		})
	}
	return out
}

// SplitAll chunks every document in order.
func (c *Chunker) SplitAll(docs []models.Document) []models.Chunk {
	var out []models.Chunk
	for _, d := range docs {
		out = append(out, c.Split(d)...)
	}
	return out
}
