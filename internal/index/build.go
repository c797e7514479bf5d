package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/ragpipe/internal/ai"
	"github.com/seanblong/ragpipe/internal/metrics"
	"github.com/seanblong/ragpipe/pkg/models"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// Artifacts is a persisted unit: an index and the metadata aligned with it
// by position.
type Artifacts struct {
	Index    *Flat
	Metadata []models.IndexEntry
	Manifest models.Manifest
}

// BuildOptions controls embedding during Build.
type BuildOptions struct {
	BatchSize int
	Workers   int
	// Retries is the number of extra attempts for a failed batch.
	Retries int
	// Progress, when set, is called with the number of chunks embedded so far.
	Progress func(done, total int)
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

type batch struct {
	start, end int
}

// Build embeds every chunk and assembles the index and metadata. Entry i of
// the metadata describes vector i of the index.
func Build(ctx context.Context, chunks []models.Chunk, emb ai.Embedder, opts BuildOptions) (*Artifacts, error) {
	opts = opts.withDefaults()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := embedAll(ctx, texts, emb, opts)
	if err != nil {
		return nil, err
	}

	dim := emb.Dim()
	if dim == 0 && len(vecs) > 0 {
		dim = len(vecs[0])
		if dim == 0 {
			return nil, fmt.Errorf("%w: embedder returned empty vectors", models.ErrEmbeddingFailure)
		}
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d embedded with dimension %d, expected %d",
				models.ErrEmbeddingFailure, i, len(v), dim)
		}
	}

	flat := NewFlat(dim)
	if err := flat.Add(vecs...); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
	}

	meta := make([]models.IndexEntry, len(chunks))
	for i, c := range chunks {
		meta[i] = models.IndexEntry{ID: i, Content: c.Text, Source: c.SourceID}
	}

	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	log.Info().Int("chunks", len(chunks)).Int("dim", dim).Msg("index built")

	return &Artifacts{
		Index:    flat,
		Metadata: meta,
		Manifest: models.Manifest{
			EmbedModel: emb.Model(),
			Dim:        dim,
			Count:      len(chunks),
			CreatedAt:  time.Now().UTC(),
		},
	}, nil
}

// embedAll runs batches on a bounded worker pool. Each batch writes into its
// own slots of the result, so output order matches input order. The first
// failing batch cancels the rest.
func embedAll(ctx context.Context, texts []string, emb ai.Embedder, opts BuildOptions) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan batch)
	errorChan := make(chan error, 1)

	var (
		mu   sync.Mutex
		done int
	)

	numWorkers := min(opts.Workers, (len(texts)+opts.BatchSize-1)/opts.BatchSize)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for b := range batches {
				vecs, err := embedBatch(ctx, emb, texts[b.start:b.end], opts.Retries)
				if err == nil && len(vecs) != b.end-b.start {
					err = fmt.Errorf("%w: embedder returned %d vectors for %d texts",
						models.ErrEmbeddingFailure, len(vecs), b.end-b.start)
				}
				if err != nil {
					select {
					case errorChan <- fmt.Errorf("batch %d-%d: %w", b.start, b.end, err):
					default:
					}
					cancel()
					continue
				}
				copy(out[b.start:b.end], vecs)

				mu.Lock()
				done += b.end - b.start
				if opts.Progress != nil {
					opts.Progress(done, len(texts))
				}
				mu.Unlock()
				log.Debug().Int("worker", workerID).Int("start", b.start).Int("end", b.end).Msg("batch embedded")
			}
		}(i)
	}

send:
	for start := 0; start < len(texts); start += opts.BatchSize {
		select {
		case batches <- batch{start: start, end: min(start+opts.BatchSize, len(texts))}:
		case <-ctx.Done():
			break send
		}
	}
	close(batches)
	wg.Wait()

	select {
	case err := <-errorChan:
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
	}
	return out, nil
}

func embedBatch(ctx context.Context, emb ai.Embedder, texts []string, retries int) ([][]float32, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(err).Int("attempt", attempt).Msg("retrying embedding batch")
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, ctx.Err())
			}
		}

		start := time.Now()
		var vecs [][]float32
		vecs, err = emb.Embed(ctx, texts)
		metrics.EmbeddingRequestDuration.WithLabelValues(emb.Model()).Observe(time.Since(start).Seconds())
		metrics.EmbeddingRequestsTotal.WithLabelValues(emb.Model(), metrics.Status(err)).Inc()
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
}
