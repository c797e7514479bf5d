package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/pkg/models"
)

const (
	IndexFile    = "index.flat"
	MetadataFile = "metadata.json"
	ManifestFile = "manifest.json"

	currentFile = "CURRENT"
	runsDir     = "runs"
)

// FileStore keeps each build in its own directory under Dir/runs and points
// Dir/CURRENT at the latest complete one.
type FileStore struct {
	Dir string
	// Keep is how many runs to retain; 0 keeps all.
	Keep int
}

func NewFileStore(dir string, keep int) *FileStore {
	return &FileStore{Dir: dir, Keep: keep}
}

// NewRunID returns a sortable, unique run identifier.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Save writes the artifacts to a fresh run directory, then publishes it by
// renaming a temporary pointer over CURRENT.
func (s *FileStore) Save(ctx context.Context, a *Artifacts) error {
	if err := Validate(a); err != nil {
		return err
	}
	if a.Manifest.RunID == "" {
		a.Manifest.RunID = NewRunID(time.Now())
	}
	a.Manifest.Count = a.Index.Len()
	a.Manifest.Dim = a.Index.Dim()

	runDir := filepath.Join(s.Dir, runsDir, a.Manifest.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	if err := writeFile(filepath.Join(runDir, IndexFile), func(f *os.File) error {
		return WriteFlat(f, a.Index)
	}); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeJSON(filepath.Join(runDir, MetadataFile), a.Metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writeJSON(filepath.Join(runDir, ManifestFile), a.Manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := filepath.Join(s.Dir, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(a.Manifest.RunID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.Dir, currentFile)); err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	log.Info().Str("run_id", a.Manifest.RunID).Int("vectors", a.Manifest.Count).Str("dir", runDir).Msg("artifacts saved")

	s.prune(a.Manifest.RunID)
	return nil
}

// Load reads the run CURRENT points at.
func (s *FileStore) Load(ctx context.Context) (*Artifacts, error) {
	runDir, err := s.CurrentRunDir()
	if err != nil {
		return nil, err
	}
	a, err := OpenPaths(filepath.Join(runDir, IndexFile), filepath.Join(runDir, MetadataFile))
	if err != nil {
		return nil, err
	}

	var m models.Manifest
	if err := readJSON(filepath.Join(runDir, ManifestFile), &m); err != nil {
		log.Warn().Err(err).Str("dir", runDir).Msg("manifest unreadable, continuing without it")
	} else {
		a.Manifest = m
	}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// CurrentRunDir resolves the CURRENT pointer.
func (s *FileStore) CurrentRunDir() (string, error) {
	ptr := filepath.Join(s.Dir, currentFile)
	b, err := os.ReadFile(ptr)
	if err != nil {
		return "", models.NewMissingArtifact(ptr, err)
	}
	runID := strings.TrimSpace(string(b))
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return "", models.NewMissingArtifact(ptr, fmt.Errorf("invalid run id %q", runID))
	}
	return filepath.Join(s.Dir, runsDir, runID), nil
}

// Runs lists run ids oldest first.
func (s *FileStore) Runs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, runsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *FileStore) prune(current string) {
	if s.Keep <= 0 {
		return
	}
	runs, err := s.Runs()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list runs for pruning")
		return
	}
	for len(runs) > s.Keep {
		old := runs[0]
		runs = runs[1:]
		if old == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.Dir, runsDir, old)); err != nil {
			log.Warn().Err(err).Str("run_id", old).Msg("failed to prune run")
			continue
		}
		log.Debug().Str("run_id", old).Msg("pruned run")
	}
}

// OpenPaths loads an explicit index and metadata pair and checks that they
// line up.
func OpenPaths(indexPath, metadataPath string) (*Artifacts, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, models.NewMissingArtifact(indexPath, err)
	}
	defer func() { _ = f.Close() }()

	flat, err := ReadFlat(f)
	if err != nil {
		return nil, models.NewMissingArtifact(indexPath, err)
	}

	var meta []models.IndexEntry
	if err := readJSON(metadataPath, &meta); err != nil {
		return nil, models.NewMissingArtifact(metadataPath, err)
	}

	a := &Artifacts{Index: flat, Metadata: meta}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// PathStore serves an explicit index and metadata pair produced elsewhere.
// It cannot be saved to.
type PathStore struct {
	IndexPath    string
	MetadataPath string
}

func (p *PathStore) Save(context.Context, *Artifacts) error {
	return errors.New("explicit artifact paths are read-only")
}

func (p *PathStore) Load(context.Context) (*Artifacts, error) {
	return OpenPaths(p.IndexPath, p.MetadataPath)
}
