// Package fragment persists fragments as hashes under the per-collection key
// prefix, indexed by the collection's FT index.
package fragment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/domain"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
)

// store is the consumer interface for fragments (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) error
	ExistsMulti(ctx context.Context, keys []string) ([]bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Hit is a fragment with its raw vector distance from a KNN query.
type Hit struct {
	Fragment domfrag.Fragment
	Distance float64
}

// listPageSize bounds FT.SEARCH pages when walking a whole collection.
const listPageSize = 500

// Repo implements the usecase fragment store contracts.
type Repo struct {
	store store
}

// New creates a fragment repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// UpsertMany writes all fragments in a single pipelined round-trip.
func (r *Repo) UpsertMany(ctx context.Context, storageID string, frags []domfrag.Fragment) error {
	if len(frags) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(frags))
	for i, f := range frags {
		items[i] = db.HashSetItem{
			Key:    fragKey(storageID, f.ID()),
			Fields: buildHashFields(f),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset fragments %s: %w", storageID, err)
	}
	return nil
}

// ExistingIDs reports which of the given fragment ids already exist in the
// collection, in a single pipelined round-trip.
func (r *Repo) ExistingIDs(ctx context.Context, storageID string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fragKey(storageID, id)
	}

	found, err := r.store.ExistsMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("exists fragments %s: %w", storageID, err)
	}

	existing := make(map[string]bool, len(ids))
	for i, ok := range found {
		if ok {
			existing[ids[i]] = true
		}
	}
	return existing, nil
}

// QueryByVector runs a KNN search and hydrates the nearest fragments.
// Results are ordered nearest first.
func (r *Repo) QueryByVector(ctx context.Context, storageID string, vector []float32, topK int) ([]Hit, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(storageID),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__vector_score", "filename", "file_type", "strategy", "chunk_index", "total_chunks", "text", "extra_json"},
	})
	if err != nil {
		if isMissingIndex(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("knn search %s: %w", storageID, err)
	}

	hits := make([]Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		frag, err := fragmentFromFields(fragID(e.Key, storageID), e.Fields)
		if err != nil {
			return nil, fmt.Errorf("parse fragment %s: %w", e.Key, err)
		}
		hits = append(hits, Hit{Fragment: frag, Distance: e.Distance})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

// ListAll walks every fragment in the collection ordered by filename then
// chunk index. Used by the grouped document listing.
func (r *Repo) ListAll(ctx context.Context, storageID string) ([]domfrag.Fragment, error) {
	idx := indexName(storageID)
	fields := []string{"filename", "file_type", "strategy", "chunk_index", "total_chunks", "text", "extra_json"}

	var frags []domfrag.Fragment
	for offset := 0; ; offset += listPageSize {
		res, err := r.store.SearchList(ctx, idx, "*", offset, listPageSize, fields)
		if err != nil {
			if isMissingIndex(err) {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("list fragments %s: %w", storageID, err)
		}
		for _, e := range res.Entries {
			frag, err := fragmentFromFields(fragID(e.Key, storageID), e.Fields)
			if err != nil {
				return nil, fmt.Errorf("parse fragment %s: %w", e.Key, err)
			}
			frags = append(frags, frag)
		}
		if offset+len(res.Entries) >= res.Total || len(res.Entries) == 0 {
			break
		}
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Meta().Filename != frags[j].Meta().Filename {
			return frags[i].Meta().Filename < frags[j].Meta().Filename
		}
		return frags[i].Meta().ChunkIndex < frags[j].Meta().ChunkIndex
	})
	return frags, nil
}

// DeleteByIDs removes specific fragments. Returns the number of keys passed
// to DEL; absent keys are silently skipped by Redis.
func (r *Repo) DeleteByIDs(ctx context.Context, storageID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fragKey(storageID, id)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("del fragments %s: %w", storageID, err)
	}
	return len(keys), nil
}

// DeleteByFilename removes every fragment belonging to a file. Returns the
// number of fragments removed.
func (r *Repo) DeleteByFilename(ctx context.Context, storageID, filename string) (int, error) {
	filter := db.TagFilter("filename", filename)
	idx := indexName(storageID)

	var keys []string
	for {
		res, err := r.store.SearchList(ctx, idx, filter, 0, listPageSize, []string{"chunk_index"})
		if err != nil {
			if isMissingIndex(err) {
				return 0, domain.ErrNotFound
			}
			return 0, fmt.Errorf("search fragments %s: %w", storageID, err)
		}
		if len(res.Entries) == 0 {
			break
		}
		page := make([]string, len(res.Entries))
		for i, e := range res.Entries {
			page[i] = e.Key
		}
		if err := r.store.DelMulti(ctx, page); err != nil {
			return len(keys), fmt.Errorf("del fragments %s: %w", storageID, err)
		}
		keys = append(keys, page...)
		if len(res.Entries) >= res.Total {
			break
		}
	}

	return len(keys), nil
}

// DeleteAll removes every fragment in the collection, keeping the collection
// itself and its index.
func (r *Repo) DeleteAll(ctx context.Context, storageID string) (int, error) {
	keys, err := r.store.Scan(ctx, fragPrefix(storageID)+"*")
	if err != nil {
		return 0, fmt.Errorf("scan fragments %s: %w", storageID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return 0, fmt.Errorf("del fragments %s: %w", storageID, err)
	}
	return len(keys), nil
}

// Count returns the number of fragments in the collection.
func (r *Repo) Count(ctx context.Context, storageID string) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName(storageID), "*")
	if err != nil {
		if isMissingIndex(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("count fragments %s: %w", storageID, err)
	}
	return n, nil
}

func fragKey(storageID, id string) string {
	return fmt.Sprintf("%s%s:%s", domain.KeyPrefix, storageID, id)
}

func fragPrefix(storageID string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, storageID)
}

func indexName(storageID string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, storageID)
}

func fragID(key, storageID string) string {
	return strings.TrimPrefix(key, fragPrefix(storageID))
}

// isMissingIndex detects FT.SEARCH against a dropped or never-created index.
func isMissingIndex(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such index")
}
