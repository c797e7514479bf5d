package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/seanblong/ragpipe/pkg/models"
)

// RateLimitedEmbedder waits on a token bucket before every Embed call.
type RateLimitedEmbedder struct {
	Embedder
	limiter *rate.Limiter
}

// RateLimited throttles emb to perSecond calls with the given burst. A
// non-positive rate returns emb unchanged.
func RateLimited(emb Embedder, perSecond float64, burst int) Embedder {
	if perSecond <= 0 {
		return emb
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{Embedder: emb, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", models.ErrEmbeddingFailure, err)
	}
	return r.Embedder.Embed(ctx, texts)
}

func (r *RateLimitedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", models.ErrEmbeddingFailure, err)
	}
	return EmbedQuery(ctx, r.Embedder, text)
}
