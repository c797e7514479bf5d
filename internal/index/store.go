package index

import (
	"context"
	"fmt"

	"github.com/seanblong/ragpipe/pkg/models"
)

// ArtifactStore persists and restores an (index, metadata) pair as one unit.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifacts) error
	Load(ctx context.Context) (*Artifacts, error)
}

// Validate checks that metadata lines up with the index position by position.
func Validate(a *Artifacts) error {
	if a == nil || a.Index == nil {
		return fmt.Errorf("%w: no index", models.ErrArtifactInconsistency)
	}
	if len(a.Metadata) != a.Index.Len() {
		return fmt.Errorf("%w: %d metadata entries for %d vectors",
			models.ErrArtifactInconsistency, len(a.Metadata), a.Index.Len())
	}
	for i, e := range a.Metadata {
		if e.ID != i {
			return fmt.Errorf("%w: metadata entry %d has id %d", models.ErrArtifactInconsistency, i, e.ID)
		}
	}
	if a.Manifest.Dim != 0 && a.Manifest.Dim != a.Index.Dim() {
		return fmt.Errorf("%w: manifest dimension %d, index dimension %d",
			models.ErrArtifactInconsistency, a.Manifest.Dim, a.Index.Dim())
	}
	return nil
}
