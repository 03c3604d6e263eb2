package ingest

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
)

// FragmentRepo defines the storage contract for fragment writes.
type FragmentRepo interface {
	ExistingIDs(ctx context.Context, storageID string, ids []string) (map[string]bool, error)
	UpsertMany(ctx context.Context, storageID string, frags []domfrag.Fragment) error
}

// CollectionRepo reads and auto-creates collections during upload.
type CollectionRepo interface {
	Get(ctx context.Context, storageID string) (domcol.Collection, error)
	Create(ctx context.Context, col domcol.Collection) error
}

// NameMapper resolves display names to storage ids, allocating on first use.
type NameMapper interface {
	Resolve(ctx context.Context, displayName string) (storageID string, converted bool, err error)
}

// Embedder vectorizes fragment texts in order-preserving batches.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
