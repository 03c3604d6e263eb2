// Package ingest implements the document ingestion pipeline: split,
// deduplicate, embed, upsert.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
	"github.com/kailas-cloud/docdex/internal/metrics"
	"github.com/kailas-cloud/docdex/internal/splitter"
)

// Params describes one ingestion request.
type Params struct {
	Collection string
	Filename   string
	FileType   string
	Strategy   splitter.Strategy
	ChunkSize  int
	Overlap    int
	// Extra carries file-level metadata from extraction, e.g. total_pages.
	Extra map[string]string
}

// Summary reports the outcome of one ingestion.
type Summary struct {
	Inserted int
	Skipped  int
	Total    int
}

// Service orchestrates ingestion. Concurrent ingests of the same file into
// the same collection are serialized so the dedup diff-and-write is atomic;
// everything else runs in parallel.
type Service struct {
	frags     FragmentRepo
	colls     CollectionRepo
	names     NameMapper
	embedder  Embedder
	dimension int
	locks     sync.Map // (storageID, filename) -> *sync.Mutex
	logger    *zap.Logger
}

// New creates an ingestion service. dimension is the embedding dimension
// used when a collection is auto-created on first upload.
func New(frags FragmentRepo, colls CollectionRepo, names NameMapper, embedder Embedder,
	dimension int, logger *zap.Logger,
) *Service {
	return &Service{
		frags:     frags,
		colls:     colls,
		names:     names,
		embedder:  embedder,
		dimension: dimension,
		logger:    logger,
	}
}

// Ingest splits text into fragments, skips the ones already stored, embeds
// the rest, and writes them in a single batch. Empty text is a valid no-op.
func (s *Service) Ingest(ctx context.Context, p Params, text string) (Summary, error) {
	storageID, _, err := s.names.Resolve(ctx, p.Collection)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve name: %w", err)
	}

	col, err := s.ensureCollection(ctx, storageID, p.Collection)
	if err != nil {
		return Summary{}, err
	}

	chunks, err := splitter.Split(text, p.Strategy, p.ChunkSize, p.Overlap)
	if err != nil {
		return Summary{}, fmt.Errorf("split text: %w", err)
	}
	if len(chunks) == 0 {
		return Summary{}, nil
	}

	frags := make([]domfrag.Fragment, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		frags[i] = domfrag.New(chunk, domfrag.Metadata{
			Filename:    p.Filename,
			FileType:    p.FileType,
			Strategy:    string(p.Strategy),
			ChunkSize:   p.ChunkSize,
			Overlap:     p.Overlap,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Extra:       p.Extra,
		})
		ids[i] = frags[i].ID()
	}

	// The diff and the upsert must not interleave with another ingest of
	// the same file, or both would see the fragments as new.
	mu := s.lockFor(storageID, p.Filename)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.frags.ExistingIDs(ctx, storageID, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("check existing fragments: %w", err)
	}

	var fresh []domfrag.Fragment
	for _, f := range frags {
		if !existing[f.ID()] {
			fresh = append(fresh, f)
		}
	}

	summary := Summary{
		Inserted: len(fresh),
		Skipped:  len(chunks) - len(fresh),
		Total:    len(chunks),
	}

	if len(fresh) == 0 {
		metrics.IngestFragmentsTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
		s.logger.Info("all fragments already stored",
			zap.String("collection", storageID),
			zap.String("filename", p.Filename),
			zap.Int("skipped", summary.Skipped))
		return summary, nil
	}

	if err := s.embedAndUpsert(ctx, col, fresh); err != nil {
		return Summary{}, err
	}

	metrics.IngestFragmentsTotal.WithLabelValues("inserted").Add(float64(summary.Inserted))
	metrics.IngestFragmentsTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))

	s.logger.Info("file ingested",
		zap.String("collection", storageID),
		zap.String("filename", p.Filename),
		zap.Int("inserted", summary.Inserted),
		zap.Int("skipped", summary.Skipped))

	return summary, nil
}

// embedAndUpsert vectorizes new fragments and writes them as one batch.
// Vectors are validated against the collection dimension before anything
// is written, so a mismatch ingests nothing.
func (s *Service) embedAndUpsert(ctx context.Context, col domcol.Collection, fresh []domfrag.Fragment) error {
	texts := make([]string, len(fresh))
	for i, f := range fresh {
		texts[i] = f.Text()
	}

	batch, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed fragments: %w", err)
	}
	if len(batch.Embeddings) != len(fresh) {
		return fmt.Errorf("embedding count mismatch: want %d, got %d: %w",
			len(fresh), len(batch.Embeddings), domain.ErrEmbeddingUnavailable)
	}

	for i, vec := range batch.Embeddings {
		if col.Dimension() > 0 && len(vec) != col.Dimension() {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d: %w",
				len(vec), col.Dimension(), domain.ErrDimensionMismatch)
		}
		fresh[i] = fresh[i].WithVector(vec)
	}

	if err := s.frags.UpsertMany(ctx, col.StorageID(), fresh); err != nil {
		return fmt.Errorf("upsert fragments: %w", err)
	}
	return nil
}

// ensureCollection fetches the collection, creating it on first upload.
func (s *Service) ensureCollection(ctx context.Context, storageID, displayName string) (domcol.Collection, error) {
	col, err := s.colls.Get(ctx, storageID)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domcol.Collection{}, fmt.Errorf("get collection: %w", err)
	}

	col, err = domcol.New(storageID, displayName, s.dimension)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("validate collection: %w", err)
	}

	if err := s.colls.Create(ctx, col); err != nil {
		// Lost a race with a concurrent upload, the winner's collection works fine.
		if errors.Is(err, domain.ErrAlreadyExists) {
			return s.colls.Get(ctx, storageID)
		}
		return domcol.Collection{}, fmt.Errorf("create collection: %w", err)
	}

	s.logger.Info("collection auto-created on upload",
		zap.String("collection", storageID),
		zap.Int("dimension", s.dimension))
	return col, nil
}

func (s *Service) lockFor(storageID, filename string) *sync.Mutex {
	key := storageID + "\x00" + filename
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}
