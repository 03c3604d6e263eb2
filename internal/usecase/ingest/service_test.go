package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/splitter"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockFragRepo struct {
	mu       sync.Mutex
	existing map[string]bool
	upserted [][]domfrag.Fragment

	existingErr error
	upsertErr   error
}

func (m *mockFragRepo) ExistingIDs(_ context.Context, _ string, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existingErr != nil {
		return nil, m.existingErr
	}
	found := make(map[string]bool)
	for _, id := range ids {
		if m.existing[id] {
			found[id] = true
		}
	}
	return found, nil
}

func (m *mockFragRepo) UpsertMany(_ context.Context, _ string, frags []domfrag.Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.existing == nil {
		m.existing = make(map[string]bool)
	}
	for _, f := range frags {
		m.existing[f.ID()] = true
	}
	m.upserted = append(m.upserted, frags)
	return nil
}

func (m *mockFragRepo) totalUpserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, batch := range m.upserted {
		n += len(batch)
	}
	return n
}

type mockCollRepo struct {
	mu      sync.Mutex
	cols    map[string]domcol.Collection
	created int
	getErr  error
}

func (m *mockCollRepo) Get(_ context.Context, storageID string) (domcol.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domcol.Collection{}, m.getErr
	}
	col, ok := m.cols[storageID]
	if !ok {
		return domcol.Collection{}, domain.ErrNotFound
	}
	return col, nil
}

func (m *mockCollRepo) Create(_ context.Context, col domcol.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cols == nil {
		m.cols = make(map[string]domcol.Collection)
	}
	if _, ok := m.cols[col.StorageID()]; ok {
		return domain.ErrAlreadyExists
	}
	m.cols[col.StorageID()] = col
	m.created++
	return nil
}

type mockNames struct{}

func (mockNames) Resolve(_ context.Context, displayName string) (string, bool, error) {
	return domcol.DeriveStorageID(displayName)
}

type mockEmbedder struct {
	mu      sync.Mutex
	dim     int
	calls   int
	batched []int
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batched = append(m.batched, len(texts))
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, m.dim)
		vecs[i][0] = float32(i)
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs, TotalTokens: len(texts) * 3}, nil
}

func newTestService(frags *mockFragRepo, colls *mockCollRepo, emb *mockEmbedder) *Service {
	return New(frags, colls, mockNames{}, emb, emb.dim, zap.NewNop())
}

func existingCollection(colls *mockCollRepo, storageID string, dim int) {
	if colls.cols == nil {
		colls.cols = make(map[string]domcol.Collection)
	}
	colls.cols[storageID] = domcol.Reconstruct(storageID, storageID, dim, 1700000000000)
}

func defaultParams(collection, filename string) Params {
	return Params{
		Collection: collection,
		Filename:   filename,
		FileType:   "txt",
		Strategy:   splitter.Paragraph,
		ChunkSize:  splitter.DefaultChunkSize,
		Overlap:    splitter.DefaultOverlap,
	}
}

const sampleText = "First paragraph about storage.\n\nSecond paragraph about indexes.\n\nThird paragraph about queries."

// --- Tests ---

func TestIngest_NewFile(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	summary, err := svc.Ingest(context.Background(), defaultParams("docs", "guide.txt"), sampleText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Inserted != 3 || summary.Skipped != 0 || summary.Total != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if frags.totalUpserted() != 3 {
		t.Errorf("expected 3 fragments upserted, got %d", frags.totalUpserted())
	}
	if emb.calls != 1 {
		t.Errorf("expected 1 embedding batch, got %d", emb.calls)
	}
	for _, f := range frags.upserted[0] {
		if len(f.Vector()) != 4 {
			t.Errorf("fragment %s has no vector attached", f.ID())
		}
	}
}

func TestIngest_SecondUploadFullySkipped(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	p := defaultParams("docs", "guide.txt")
	if _, err := svc.Ingest(context.Background(), p, sampleText); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	summary, err := svc.Ingest(context.Background(), p, sampleText)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if summary.Inserted != 0 {
		t.Errorf("expected 0 inserted on re-upload, got %d", summary.Inserted)
	}
	if summary.Skipped != 3 {
		t.Errorf("expected 3 skipped on re-upload, got %d", summary.Skipped)
	}
	if emb.calls != 1 {
		t.Errorf("embedding must be skipped entirely on full dedup, got %d calls", emb.calls)
	}
}

func TestIngest_PartialDedupEmbedsOnlyNew(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	p := defaultParams("docs", "guide.txt")
	if _, err := svc.Ingest(context.Background(), p, sampleText); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Same file with one extra paragraph appended.
	summary, err := svc.Ingest(context.Background(), p, sampleText+"\n\nFourth paragraph, brand new.")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	// Ids hash (text, filename, split config, index), so the three unchanged
	// paragraphs dedup and only the appended one is embedded and written.
	if summary.Total != 4 {
		t.Errorf("expected 4 total fragments, got %d", summary.Total)
	}
	if summary.Inserted != 1 || summary.Skipped != 3 {
		t.Errorf("expected 1 inserted / 3 skipped, got %+v", summary)
	}
	if emb.batched[len(emb.batched)-1] != summary.Inserted {
		t.Errorf("embedded %d texts, expected %d (only new fragments)",
			emb.batched[len(emb.batched)-1], summary.Inserted)
	}
}

func TestIngest_EmptyTextIsNoop(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	summary, err := svc.Ingest(context.Background(), defaultParams("docs", "empty.txt"), "   \n\n  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("expected zero fragments for empty text, got %+v", summary)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedding calls, got %d", emb.calls)
	}
}

func TestIngest_AutoCreatesCollection(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	_, err := svc.Ingest(context.Background(), defaultParams("技术文档", "guide.txt"), sampleText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if colls.created != 1 {
		t.Errorf("expected collection auto-created, created=%d", colls.created)
	}
	for sid, col := range colls.cols {
		if err := domcol.ValidateStorageID(sid); err != nil {
			t.Errorf("auto-created storage id %q not storage-safe: %v", sid, err)
		}
		if col.Dimension() != 4 {
			t.Errorf("expected dimension 4, got %d", col.Dimension())
		}
	}
}

func TestIngest_DimensionMismatchWritesNothing(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 1536)
	emb := &mockEmbedder{dim: 4} // provider returns 4-dim vectors
	svc := newTestService(frags, colls, emb)

	_, err := svc.Ingest(context.Background(), defaultParams("docs", "guide.txt"), sampleText)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if frags.totalUpserted() != 0 {
		t.Errorf("expected nothing written on dimension mismatch, got %d", frags.totalUpserted())
	}
}

func TestIngest_EmbedderFailureWritesNothing(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4, err: domain.ErrEmbeddingUnavailable}
	svc := newTestService(frags, colls, emb)

	_, err := svc.Ingest(context.Background(), defaultParams("docs", "guide.txt"), sampleText)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if frags.totalUpserted() != 0 {
		t.Errorf("expected nothing written on embedding failure, got %d", frags.totalUpserted())
	}
}

func TestIngest_InvalidSplitParams(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	p := defaultParams("docs", "guide.txt")
	p.Strategy = splitter.Fixed
	p.Overlap = p.ChunkSize // overlap must be smaller than chunk size

	_, err := svc.Ingest(context.Background(), p, sampleText)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestIngest_ConcurrentSameFileNoDoubleInsert(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	p := defaultParams("docs", "guide.txt")

	const workers = 8
	var wg sync.WaitGroup
	inserted := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := svc.Ingest(context.Background(), p, sampleText)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			inserted[i] = summary.Inserted
		}(i)
	}
	wg.Wait()

	totalInserted := 0
	for _, n := range inserted {
		totalInserted += n
	}
	if totalInserted != 3 {
		t.Errorf("expected exactly 3 fragments inserted across all workers, got %d", totalInserted)
	}
	if frags.totalUpserted() != 3 {
		t.Errorf("expected 3 fragments stored, got %d", frags.totalUpserted())
	}
}

func TestIngest_DifferentChunkSizeReingestsEverything(t *testing.T) {
	frags := &mockFragRepo{}
	colls := &mockCollRepo{}
	existingCollection(colls, "docs", 4)
	emb := &mockEmbedder{dim: 4}
	svc := newTestService(frags, colls, emb)

	// Periodic text makes windows at different offsets reproduce the same
	// bytes, so an id that ignored the window parameters would collide
	// across configurations.
	text := strings.Repeat("abcdefghij", 100)

	p := defaultParams("docs", "big.txt")
	p.Strategy = splitter.Fixed
	p.ChunkSize = 400
	p.Overlap = 50
	first, err := svc.Ingest(context.Background(), p, text)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Inserted == 0 {
		t.Fatal("expected fragments inserted on first ingest")
	}

	p.ChunkSize = 300
	second, err := svc.Ingest(context.Background(), p, text)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Skipped != 0 {
		t.Errorf("different chunk size must not dedup against old fragments, skipped=%d", second.Skipped)
	}
	if second.Inserted != second.Total {
		t.Errorf("expected all %d fragments inserted, got %d", second.Total, second.Inserted)
	}
}
