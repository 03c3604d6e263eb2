// Package collection persists collection metadata and manages the per-
// collection FT index over fragment hashes.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// store is the consumer interface for collections (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase collection.Repository.
type Repo struct {
	store store
	hnsw  HNSWConfig
}

// New creates a collection repository.
func New(s store) *Repo {
	return &Repo{store: s, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Create stores a collection: HSET metadata then FT.CREATE index.
// On FT.CREATE failure, rolls back the HSET via DEL.
func (r *Repo) Create(ctx context.Context, col domcol.Collection) error {
	sid := col.StorageID()

	metaKey := metaKey(sid)
	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	indexDef := buildIndex(sid, col.Dimension(), r.hnsw)

	if err := r.store.HSet(ctx, metaKey, collectionToHash(col)); err != nil {
		return fmt.Errorf("hset collection %s: %w", sid, err)
	}

	// FT.CREATE; roll back the HSET on error
	if err := r.store.CreateIndex(ctx, indexDef); err != nil {
		cleanupErr := r.store.Del(ctx, metaKey)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// Get retrieves a collection by storage id.
func (r *Repo) Get(ctx context.Context, storageID string) (domcol.Collection, error) {
	m, err := r.store.HGetAll(ctx, metaKey(storageID))
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("hgetall collection %s: %w", storageID, err)
	}
	if len(m) == 0 {
		return domcol.Collection{}, domain.ErrNotFound
	}

	return collectionFromHash(m)
}

// List returns all collections sorted by CreatedAt.
func (r *Repo) List(ctx context.Context) ([]domcol.Collection, error) {
	keys, err := r.store.Scan(ctx, metaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}
	if len(keys) == 0 {
		return []domcol.Collection{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi collections: %w", err)
	}

	collections := make([]domcol.Collection, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		col, err := collectionFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse collection %s: %w", keys[i], err)
		}
		collections = append(collections, col)
	}

	sort.Slice(collections, func(i, j int) bool {
		return collections[i].CreatedAt() < collections[j].CreatedAt()
	})

	return collections, nil
}

// Delete removes a collection and everything under it: FT.DROPINDEX, then
// all fragment hashes under the collection prefix, then the metadata hash.
// The metadata hash goes last so a partial failure leaves the collection
// visible and the delete retryable.
func (r *Repo) Delete(ctx context.Context, storageID string) error {
	metaKey := metaKey(storageID)

	exists, err := r.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if err := r.store.DropIndex(ctx, indexName(storageID)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", storageID, err)
	}

	fragKeys, err := r.store.Scan(ctx, fragmentPrefix(storageID)+"*")
	if err != nil {
		return fmt.Errorf("scan fragments %s: %w", storageID, err)
	}
	// The index name itself matches the fragment prefix pattern; SCAN only
	// returns keys, so no special-casing is needed.
	if err := r.store.DelMulti(ctx, fragKeys); err != nil {
		return fmt.Errorf("del fragments %s: %w", storageID, err)
	}

	if err := r.store.Del(ctx, metaKey); err != nil {
		return fmt.Errorf("del collection %s: %w", storageID, err)
	}

	return nil
}

// Redis key patterns: docdex:collection:{sid}, docdex:{sid}:idx, docdex:{sid}:

func metaKey(storageID string) string {
	return fmt.Sprintf("%scollection:%s", domain.KeyPrefix, storageID)
}

func indexName(storageID string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, storageID)
}

func fragmentPrefix(storageID string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, storageID)
}
