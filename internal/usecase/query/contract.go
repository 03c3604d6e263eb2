package query

import (
	"context"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	fragrepo "github.com/kailas-cloud/docdex/internal/repository/fragment"
)

// Searcher runs KNN retrieval over a collection's fragments.
type Searcher interface {
	QueryByVector(ctx context.Context, storageID string, vector []float32, topK int) ([]fragrepo.Hit, error)
}

// CollectionReader reads collections for existence checks.
type CollectionReader interface {
	Get(ctx context.Context, storageID string) (domcol.Collection, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
