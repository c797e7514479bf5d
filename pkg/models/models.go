package models

import "time"

// Document is a source file loaded from the corpus.
type Document struct {
	SourceID string `json:"source_id"`
	Path     string `json:"path,omitempty"`
	Text     string `json:"text"`
}

// Chunk is a token window of a document. Ordinal is its 0-based position
// within the document's chunk sequence.
type Chunk struct {
	Ordinal  int    `json:"ordinal"`
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// IndexEntry is the persisted metadata record for the vector at position ID.
type IndexEntry struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// SearchResult is a retrieved entry and its squared Euclidean distance to the
// query vector.
type SearchResult struct {
	Entry    IndexEntry `json:"entry"`
	Distance float32    `json:"distance"`
}

// Manifest describes a persisted (index, metadata) pair.
type Manifest struct {
	RunID      string    `json:"run_id"`
	EmbedModel string    `json:"embed_model"`
	Dim        int       `json:"dim"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}
