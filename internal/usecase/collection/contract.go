package collection

import (
	"context"

	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// Repository defines the storage contract for collections.
type Repository interface {
	Create(ctx context.Context, col domcol.Collection) error
	Get(ctx context.Context, storageID string) (domcol.Collection, error)
	List(ctx context.Context) ([]domcol.Collection, error)
	Delete(ctx context.Context, storageID string) error
}

// FragmentCounter counts fragments stored in a collection.
type FragmentCounter interface {
	Count(ctx context.Context, storageID string) (int, error)
}

// NameMapper maps Unicode display names to storage ids.
type NameMapper interface {
	Resolve(ctx context.Context, displayName string) (storageID string, converted bool, err error)
	Remove(storageID string) error
}
