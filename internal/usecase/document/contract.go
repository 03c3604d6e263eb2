package document

import (
	"context"

	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
)

// FragmentRepo defines the storage contract for document listings and deletes.
type FragmentRepo interface {
	ListAll(ctx context.Context, storageID string) ([]domfrag.Fragment, error)
	DeleteByIDs(ctx context.Context, storageID string, ids []string) (int, error)
	DeleteByFilename(ctx context.Context, storageID, filename string) (int, error)
	DeleteAll(ctx context.Context, storageID string) (int, error)
}

// CollectionReader reads collections for existence checks.
type CollectionReader interface {
	Get(ctx context.Context, storageID string) (domcol.Collection, error)
}
