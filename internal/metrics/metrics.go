// Package metrics exposes Prometheus collectors for indexing, embedding,
// retrieval and answering.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragpipe",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks embedded into an index",
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragpipe",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding batch requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding batch request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragpipe",
			Name:      "retrieval_duration_seconds",
			Help:      "Query embedding plus index search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragpipe",
			Name:      "retrievals_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"status"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragpipe",
			Name:      "answers_total",
			Help:      "Total number of answers, by whether generation degraded",
		},
		[]string{"degraded"},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragpipe",
			Name:      "index_vectors",
			Help:      "Number of vectors in the currently loaded index",
		},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ChunksIndexedTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			RetrievalDuration,
			RetrievalsTotal,
			AnswersTotal,
			IndexSize,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// Status maps an error to a metric label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
