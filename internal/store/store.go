// Package store persists index artifacts in PostgreSQL with pgvector.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/index"
	"github.com/seanblong/ragpipe/pkg/models"
)

const (
	chunksTable   = "ragpipe_chunks"
	manifestTable = "ragpipe_manifest"

	// insertBatchSize bounds the number of queued inserts per round trip.
	insertBatchSize = 500
)

// Store is an index.ArtifactStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ index.ArtifactStore = (*Store)(nil)

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// schema returns the DDL that recreates both tables for vectors of dim.
func schema(dim int) string {
	vecType := "vector"
	if dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", dim)
	}
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

DROP TABLE IF EXISTS %[1]s;
CREATE TABLE %[1]s (
  id        INT PRIMARY KEY,
  content   TEXT NOT NULL,
  source    TEXT NOT NULL,
  embedding %[2]s NOT NULL
);

CREATE TABLE IF NOT EXISTS %[3]s (
  singleton   BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
  run_id      TEXT NOT NULL,
  embed_model TEXT NOT NULL DEFAULT '',
  dim         INT NOT NULL,
  count       INT NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);
`, chunksTable, vecType, manifestTable)
}

// Save replaces the stored index and metadata inside one transaction, so
// readers see either the previous pair or the new one.
func (s *Store) Save(ctx context.Context, a *index.Artifacts) error {
	if err := index.Validate(a); err != nil {
		return err
	}
	if a.Manifest.RunID == "" {
		a.Manifest.RunID = index.NewRunID(time.Now())
	}
	a.Manifest.Dim = a.Index.Dim()
	a.Manifest.Count = a.Index.Len()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, schema(a.Index.Dim())); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, content, source, embedding) VALUES ($1, $2, $3, $4)`, chunksTable)
	for start := 0; start < len(a.Metadata); start += insertBatchSize {
		end := min(start+insertBatchSize, len(a.Metadata))
		b := &pgx.Batch{}
		for i := start; i < end; i++ {
			e := a.Metadata[i]
			b.Queue(insert, e.ID, e.Content, e.Source, pgvector.NewVector(a.Index.Vector(i)))
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end, err)
		}
	}

	m := a.Manifest
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (singleton, run_id, embed_model, dim, count, created_at)
VALUES (TRUE, $1, $2, $3, $4, $5)
ON CONFLICT (singleton) DO UPDATE SET
  run_id = EXCLUDED.run_id,
  embed_model = EXCLUDED.embed_model,
  dim = EXCLUDED.dim,
  count = EXCLUDED.count,
  created_at = EXCLUDED.created_at`, manifestTable),
		m.RunID, m.EmbedModel, m.Dim, m.Count, createdAt(m)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Info().Str("run_id", m.RunID).Int("vectors", m.Count).Msg("artifacts saved to postgres")
	return nil
}

// Load reads every row ordered by id and rebuilds the index.
func (s *Store) Load(ctx context.Context) (*index.Artifacts, error) {
	var m models.Manifest
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT run_id, embed_model, dim, count, created_at FROM %s LIMIT 1`, manifestTable)).
		Scan(&m.RunID, &m.EmbedModel, &m.Dim, &m.Count, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, models.NewMissingArtifact(manifestTable, err)
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, content, source, embedding FROM %s ORDER BY id`, chunksTable))
	if err != nil {
		if isUndefinedTable(err) {
			return nil, models.NewMissingArtifact(chunksTable, err)
		}
		return nil, err
	}
	defer rows.Close()

	var (
		meta []models.IndexEntry
		vecs [][]float32
	)
	for rows.Next() {
		var e models.IndexEntry
		var v pgvector.Vector
		if err := rows.Scan(&e.ID, &e.Content, &e.Source, &v); err != nil {
			return nil, err
		}
		meta = append(meta, e)
		vecs = append(vecs, v.Slice())
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, models.NewMissingArtifact(chunksTable, err)
		}
		return nil, err
	}

	return assemble(m, meta, vecs)
}

// assemble builds artifacts from loaded rows and checks them against the
// manifest.
func assemble(m models.Manifest, meta []models.IndexEntry, vecs [][]float32) (*index.Artifacts, error) {
	if m.Count != len(meta) {
		return nil, fmt.Errorf("%w: manifest records %d vectors, table holds %d",
			models.ErrArtifactInconsistency, m.Count, len(meta))
	}
	flat := index.NewFlat(m.Dim)
	if err := flat.Add(vecs...); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrArtifactInconsistency, err)
	}
	if meta == nil {
		meta = []models.IndexEntry{}
	}
	a := &index.Artifacts{Index: flat, Metadata: meta, Manifest: m}
	if err := index.Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

func createdAt(m models.Manifest) time.Time {
	if m.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return m.CreatedAt
}

// isUndefinedTable reports whether err is PostgreSQL's undefined_table.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
