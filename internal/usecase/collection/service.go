// Package collection implements knowledge base lifecycle operations.
package collection

import (
	"context"
	"fmt"

	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// Service handles collection CRUD operations.
type Service struct {
	repo      Repository
	frags     FragmentCounter
	names     NameMapper
	dimension int
}

// New creates a collection service. dimension is the embedding dimension
// every new collection is created with.
func New(repo Repository, frags FragmentCounter, names NameMapper, dimension int) *Service {
	return &Service{repo: repo, frags: frags, names: names, dimension: dimension}
}

// CreateResult reports how a display name was mapped on creation.
type CreateResult struct {
	StorageID   string
	DisplayName string
	Converted   bool
}

// Summary is a collection plus its fragment count, used by listings.
type Summary struct {
	StorageID   string
	DisplayName string
	Dimension   int
	CreatedAt   int64
	Fragments   int
}

// Create resolves the display name to a storage id and stores a new collection.
func (s *Service) Create(ctx context.Context, name string) (CreateResult, error) {
	storageID, converted, err := s.names.Resolve(ctx, name)
	if err != nil {
		return CreateResult{}, fmt.Errorf("resolve name: %w", err)
	}

	col, err := domcol.New(storageID, name, s.dimension)
	if err != nil {
		return CreateResult{}, fmt.Errorf("validate collection: %w", err)
	}

	if err := s.repo.Create(ctx, col); err != nil {
		return CreateResult{}, fmt.Errorf("create collection: %w", err)
	}

	return CreateResult{StorageID: storageID, DisplayName: name, Converted: converted}, nil
}

// Get retrieves a collection by display name or storage id.
func (s *Service) Get(ctx context.Context, name string) (domcol.Collection, error) {
	storageID, err := s.storageID(name)
	if err != nil {
		return domcol.Collection{}, err
	}

	col, err := s.repo.Get(ctx, storageID)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return col, nil
}

// List returns all collections with their fragment counts, sorted by creation time.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	cols, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	summaries := make([]Summary, 0, len(cols))
	for _, col := range cols {
		count, err := s.frags.Count(ctx, col.StorageID())
		if err != nil {
			return nil, fmt.Errorf("count fragments for %s: %w", col.StorageID(), err)
		}
		summaries = append(summaries, Summary{
			StorageID:   col.StorageID(),
			DisplayName: col.DisplayName(),
			Dimension:   col.Dimension(),
			CreatedAt:   col.CreatedAt(),
			Fragments:   count,
		})
	}
	return summaries, nil
}

// Delete removes a collection, its fragments, and its name mapping.
func (s *Service) Delete(ctx context.Context, name string) error {
	storageID, err := s.storageID(name)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, storageID); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	if err := s.names.Remove(storageID); err != nil {
		return fmt.Errorf("remove name mapping: %w", err)
	}
	return nil
}

// storageID derives the storage id for a display name without persisting
// a mapping. Derivation is deterministic, so reads never need the table.
func (s *Service) storageID(name string) (string, error) {
	storageID, _, err := domcol.DeriveStorageID(name)
	if err != nil {
		return "", fmt.Errorf("resolve name: %w", err)
	}
	return storageID, nil
}
