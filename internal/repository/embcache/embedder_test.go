package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db"
)

// --- Embed (batch) ---

func TestEmbed_AllMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2}, tokens: 5}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}
	var setCount int
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCount++
		return nil
	}

	res, err := ce.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if setCount != 2 {
		t.Errorf("expected 2 cache puts, got %d", setCount)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call to inner, got %d", inner.batchCalls)
	}
	if res.TotalTokens != 10 {
		t.Errorf("expected TotalTokens=10, got %d", res.TotalTokens)
	}
}

func TestEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.9, 0.8})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	res, err := ce.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if res.TotalTokens != 0 {
		t.Errorf("expected TotalTokens=0 on all hits, got %d", res.TotalTokens)
	}
	if inner.batchCalls != 0 {
		t.Errorf("expected 0 batch calls (all cache hits), got %d", inner.batchCalls)
	}
}

func TestEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.5}, tokens: 3}
	ce, ms := newTestCachedEmbedder(t, inner)

	cachedVec := vectorToCacheBytes([]float32{0.9})
	callNum := 0
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		callNum++
		if callNum == 2 { // second text is cached
			return cachedVec, nil
		}
		return nil, db.ErrKeyNotFound
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte) error { return nil }

	res, err := ce.Embed(context.Background(), []string{"miss1", "hit1", "miss2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1][0] != 0.9 {
		t.Errorf("expected cached vec for index 1, got %v", res.Embeddings[1])
	}
	if res.Embeddings[0][0] != 0.5 || res.Embeddings[2][0] != 0.5 {
		t.Errorf("expected inner vec for misses, got %v, %v", res.Embeddings[0], res.Embeddings[2])
	}
	if len(inner.lastBatched) != 2 {
		t.Errorf("expected inner to receive only the 2 misses, got %v", inner.lastBatched)
	}
	// Only misses consume tokens.
	if res.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6, got %d", res.TotalTokens)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("api down")}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	if _, err := ce.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error from inner batch embedder")
	}
}

func TestEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	ce, _ := newTestCachedEmbedder(t, inner)

	res, err := ce.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("expected no embeddings for empty input")
	}
	if inner.batchCalls != 0 {
		t.Errorf("expected no inner calls for empty input, got %d", inner.batchCalls)
	}
}

func TestCacheKey_ScopedByModelAndDimensions(t *testing.T) {
	inner := &mockEmbedder{}
	ms := &mockKVStore{}

	small := New(inner, ms, "text-embedding-3-small", 1536, nil, zap.NewNop())
	large := New(inner, ms, "text-embedding-3-large", 1536, nil, zap.NewNop())
	shrunk := New(inner, ms, "text-embedding-3-small", 256, nil, zap.NewNop())

	key := small.cacheKey("same text")
	if key == large.cacheKey("same text") {
		t.Error("a different model must not share cache entries")
	}
	if key == shrunk.cacheKey("same text") {
		t.Error("different requested dimensions must not share cache entries")
	}
	if key != small.cacheKey("same text") {
		t.Error("cache key must be deterministic for the same scope and text")
	}
}

// --- EmbedQuery ---

func TestEmbedQuery_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}, tokens: 10}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}
	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	result, err := ce.EmbedQuery(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
}

func TestEmbedQuery_CacheHit(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.EmbedQuery(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.queryCalls != 0 {
		t.Fatalf("expected no inner calls on hit, got %d", inner.queryCalls)
	}
}

func TestEmbedQuery_CorruptCacheFallsThrough(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.7}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil // not a multiple of 4
	}

	result, err := ce.EmbedQuery(context.Background(), "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embedding[0] != 0.7 {
		t.Fatalf("expected inner vector after corrupt cache, got %v", result.Embedding)
	}
}

func TestPutToCache_WithTTL(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ce.WithTTL(24 * time.Hour)

	var setCalls, ttlCalls int
	var gotTTL time.Duration
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalls++
		return nil
	}
	ms.setWithTTLFn = func(_ context.Context, _ string, _ []byte, ttl time.Duration) error {
		ttlCalls++
		gotTTL = ttl
		return nil
	}

	if _, err := ce.EmbedQuery(context.Background(), "test text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttlCalls != 1 || setCalls != 0 {
		t.Fatalf("expected one SetWithTTL call and no Set, got ttl=%d set=%d", ttlCalls, setCalls)
	}
	if gotTTL != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", gotTTL)
	}
}
