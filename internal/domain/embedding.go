package domain

import (
	"context"
	"fmt"
	"time"
)

// Embedder is the shared text vectorization contract between layers.
// Embed is batched and order-preserving: vector i corresponds to texts[i].
type Embedder interface {
	Embed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
	EmbedQuery(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries a single embedding vector and its token usage.
type EmbeddingResult struct {
	Embedding   []float32
	TotalTokens int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings  [][]float32
	TotalTokens int
}

// RetryEmbedder retries a failed provider call exactly once after a backoff.
// Any second failure surfaces unchanged; no partial results are returned.
type RetryEmbedder struct {
	inner   Embedder
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryEmbedder wraps inner with a single-retry policy.
func NewRetryEmbedder(inner Embedder, backoff time.Duration) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, backoff: backoff, sleep: sleepCtx}
}

// Embed delegates to inner, retrying once after the backoff on failure.
func (e *RetryEmbedder) Embed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, texts)
	if err == nil {
		return res, nil
	}
	if serr := e.sleep(ctx, e.backoff); serr != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("embed retry cancelled: %w", err)
	}
	res, err = e.inner.Embed(ctx, texts)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("embed after retry: %w", err)
	}
	return res, nil
}

// EmbedQuery delegates to inner, retrying once after the backoff on failure.
func (e *RetryEmbedder) EmbedQuery(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.EmbedQuery(ctx, text)
	if err == nil {
		return res, nil
	}
	if serr := e.sleep(ctx, e.backoff); serr != nil {
		return EmbeddingResult{}, fmt.Errorf("embed query retry cancelled: %w", err)
	}
	res, err = e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("embed query after retry: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to inner when it supports health checks.
func (e *RetryEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
