// Package tokenize provides the tokenizers used to measure and cut chunks.
package tokenize

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer maps text to token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Name() string
}

// New returns the tokenizer registered under name. "words" (or "") is the
// whitespace tokenizer; anything else is treated as a tiktoken encoding.
func New(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words", "whitespace":
		return NewWords(), nil
	default:
		return NewTiktoken(name)
	}
}

// Words splits on whitespace. Each distinct word gets a stable id for the
// lifetime of the tokenizer; Decode joins words with a single space.
type Words struct {
	mu    sync.RWMutex
	ids   map[string]int
	words []string
}

func NewWords() *Words {
	return &Words{ids: make(map[string]int)}
}

func (w *Words) Name() string { return "words" }

func (w *Words) Encode(text string) []int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	out := make([]int, len(fields))

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *Words) Decode(tokens []int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t >= 0 && t < len(w.words) {
			parts = append(parts, w.words[t])
		}
	}
	return strings.Join(parts, " ")
}

// Tiktoken is a byte-pair encoding tokenizer (cl100k_base by default).
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. The first call for an encoding may
// fetch its ranks file unless TIKTOKEN_CACHE_DIR already holds it.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if strings.TrimSpace(encoding) == "" || encoding == "tiktoken" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

func (t *Tiktoken) Name() string { return t.name }

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
