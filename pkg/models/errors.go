package models

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure marks a single source file that could not be read or decoded.
	ErrParseFailure = errors.New("parse failure")
	// ErrEmptyDocument marks a source file with no text content.
	ErrEmptyDocument = errors.New("empty document")
	// ErrEmbeddingFailure marks an unavailable embedder or a dimension mismatch.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrMissingArtifact marks an absent or unreadable index or metadata file.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrArtifactInconsistency marks index and metadata that do not line up.
	ErrArtifactInconsistency = errors.New("artifact inconsistency")
	// ErrGenerationUnavailable marks an unreachable or failing generator.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrTimeout marks a remote call that ran past its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidChunkConfig marks a chunk size/overlap pair that cannot make progress.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
)

// MissingArtifactError reports which artifact path could not be read.
type MissingArtifactError struct {
	Path string
	Err  error
}

func (e *MissingArtifactError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrMissingArtifact.Error(), e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", ErrMissingArtifact.Error(), e.Path, e.Err)
}

func (e *MissingArtifactError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMissingArtifact}
	}
	return []error{ErrMissingArtifact, e.Err}
}

// NewMissingArtifact wraps err as a missing artifact at path.
func NewMissingArtifact(path string, err error) error {
	return &MissingArtifactError{Path: path, Err: err}
}
