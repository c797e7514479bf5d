package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanblong/ragpipe/pkg/models"
)

func sampleArtifacts(t *testing.T, n int) *Artifacts {
	t.Helper()
	a, err := Build(context.Background(), chunksOf(n), lengthEmbedder(), BuildOptions{})
	require.NoError(t, err)
	return a
}

func TestFileStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 0)

	a := sampleArtifacts(t, 5)
	require.NoError(t, s.Save(context.Background(), a))
	require.NotEmpty(t, a.Manifest.RunID)

	runDir, err := s.CurrentRunDir()
	require.NoError(t, err)
	for _, name := range []string{IndexFile, MetadataFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(runDir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "CURRENT.tmp"))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Metadata, got.Metadata)
	assert.Equal(t, a.Index.Len(), got.Index.Len())
	assert.Equal(t, a.Manifest.RunID, got.Manifest.RunID)
	assert.Equal(t, "mock", got.Manifest.EmbedModel)

	raw, err := os.ReadFile(filepath.Join(runDir, MetadataFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"id\": 0,"), "metadata is an indented JSON array: %s", raw[:20])
}

func TestFileStoreNewRunReplacesCurrent(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 2)

	var ids []string
	for i := 1; i <= 3; i++ {
		a := sampleArtifacts(t, i)
		a.Manifest.RunID = NewRunID(time.Date(2024, 1, i, 0, 0, 0, 0, time.UTC))
		require.NoError(t, s.Save(context.Background(), a))
		ids = append(ids, a.Manifest.RunID)
	}

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, got.Index.Len())
	assert.Equal(t, ids[2], got.Manifest.RunID)

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Equal(t, ids[1:], runs, "oldest run pruned")
}

func TestFileStoreMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 0)

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, models.ErrMissingArtifact)
	var missing *models.MissingArtifactError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, filepath.Join(dir, "CURRENT"), missing.Path)

	require.NoError(t, s.Save(context.Background(), sampleArtifacts(t, 2)))
	runDir, err := s.CurrentRunDir()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(runDir, MetadataFile)))

	_, err = s.Load(context.Background())
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, filepath.Join(runDir, MetadataFile), missing.Path)
}

func TestFileStoreCorruptIndexIsMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 0)
	require.NoError(t, s.Save(context.Background(), sampleArtifacts(t, 2)))
	runDir, err := s.CurrentRunDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(runDir, IndexFile), []byte("garbage"), 0o644))

	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, models.ErrMissingArtifact)
}

func TestOpenPathsInconsistent(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "two.flat")
	metaPath := filepath.Join(dir, "three.json")

	f := NewFlat(2)
	require.NoError(t, f.Add([]float32{1, 0}, []float32{0, 1}))
	require.NoError(t, writeFile(indexPath, func(fh *os.File) error { return WriteFlat(fh, f) }))
	require.NoError(t, writeJSON(metaPath, []models.IndexEntry{
		{ID: 0, Content: "a", Source: "a.txt"},
		{ID: 1, Content: "b", Source: "b.txt"},
		{ID: 2, Content: "c", Source: "c.txt"},
	}))

	_, err := OpenPaths(indexPath, metaPath)
	assert.ErrorIs(t, err, models.ErrArtifactInconsistency)
}

func TestOpenPathsMisnumberedMetadata(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.flat")
	metaPath := filepath.Join(dir, "metadata.json")

	f := NewFlat(1)
	require.NoError(t, f.Add([]float32{1}, []float32{2}))
	require.NoError(t, writeFile(indexPath, func(fh *os.File) error { return WriteFlat(fh, f) }))
	require.NoError(t, writeJSON(metaPath, []models.IndexEntry{{ID: 1}, {ID: 0}}))

	_, err := OpenPaths(indexPath, metaPath)
	assert.ErrorIs(t, err, models.ErrArtifactInconsistency)

	a, err := OpenPaths(indexPath, filepath.Join(dir, "absent.json"))
	assert.Nil(t, a)
	assert.ErrorIs(t, err, models.ErrMissingArtifact)
}

func TestSaveRejectsInconsistentArtifacts(t *testing.T) {
	a := sampleArtifacts(t, 2)
	a.Metadata = a.Metadata[:1]
	err := NewFileStore(t.TempDir(), 0).Save(context.Background(), a)
	assert.ErrorIs(t, err, models.ErrArtifactInconsistency)
}

func TestPathStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, 0)
	require.NoError(t, s.Save(context.Background(), sampleArtifacts(t, 3)))
	runDir, err := s.CurrentRunDir()
	require.NoError(t, err)

	ps := &PathStore{IndexPath: filepath.Join(runDir, IndexFile), MetadataPath: filepath.Join(runDir, MetadataFile)}
	a, err := ps.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, a.Index.Len())
	assert.Error(t, ps.Save(context.Background(), a))
}
