// Package document implements per-file views and deletion over stored fragments.
package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
)

// DefaultMaxPreviewChunks bounds per-file previews unless the caller overrides it.
const DefaultMaxPreviewChunks = 5

const previewLength = 100

// ChunkPreview is a truncated look at one stored fragment.
type ChunkPreview struct {
	ID         string
	ChunkIndex int
	Text       string
}

// FileGroup aggregates all fragments that came from one uploaded file.
type FileGroup struct {
	Filename string
	FileType string
	Strategy string
	Chunks   int
	Extra    map[string]string
	Previews []ChunkPreview
}

// Listing is the grouped-by-file view of a collection.
type Listing struct {
	TotalFragments int
	Files          []FileGroup
}

// ListParams controls the shape of a docs listing.
type ListParams struct {
	// Limit caps the number of fragments walked; 0 means no limit.
	Limit int
	// IncludePreview toggles per-chunk text previews.
	IncludePreview bool
	// MaxPreviewChunks caps previews per file; 0 means DefaultMaxPreviewChunks.
	MaxPreviewChunks int
}

// Service handles document-level operations on top of fragment storage.
type Service struct {
	frags FragmentRepo
	colls CollectionReader
}

// New creates a document service.
func New(frags FragmentRepo, colls CollectionReader) *Service {
	return &Service{frags: frags, colls: colls}
}

// List groups a collection's fragments by source filename. Fragments arrive
// sorted by filename then chunk index, so groups keep upload order.
func (s *Service) List(ctx context.Context, name string, p ListParams) (Listing, error) {
	storageID, err := resolve(name)
	if err != nil {
		return Listing{}, err
	}
	if _, err := s.colls.Get(ctx, storageID); err != nil {
		return Listing{}, fmt.Errorf("get collection: %w", err)
	}

	frags, err := s.frags.ListAll(ctx, storageID)
	if err != nil {
		return Listing{}, fmt.Errorf("list fragments: %w", err)
	}
	if p.Limit > 0 && len(frags) > p.Limit {
		frags = frags[:p.Limit]
	}

	maxPreviews := p.MaxPreviewChunks
	if maxPreviews <= 0 {
		maxPreviews = DefaultMaxPreviewChunks
	}

	var files []FileGroup
	byName := make(map[string]int)
	for _, f := range frags {
		meta := f.Meta()
		idx, ok := byName[meta.Filename]
		if !ok {
			idx = len(files)
			byName[meta.Filename] = idx
			files = append(files, FileGroup{
				Filename: meta.Filename,
				FileType: meta.FileType,
				Strategy: meta.Strategy,
				Extra:    meta.Extra,
			})
		}
		files[idx].Chunks++

		if p.IncludePreview && len(files[idx].Previews) < maxPreviews {
			files[idx].Previews = append(files[idx].Previews, ChunkPreview{
				ID:         f.ID(),
				ChunkIndex: meta.ChunkIndex,
				Text:       preview(f.Text()),
			})
		}
	}

	return Listing{TotalFragments: len(frags), Files: files}, nil
}

// DeleteByIDs removes specific fragments and returns how many existed.
func (s *Service) DeleteByIDs(ctx context.Context, name string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("doc_ids is empty: %w", domain.ErrInvalidParameter)
	}
	storageID, err := resolve(name)
	if err != nil {
		return 0, err
	}
	if _, err := s.colls.Get(ctx, storageID); err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}

	deleted, err := s.frags.DeleteByIDs(ctx, storageID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete fragments: %w", err)
	}
	return deleted, nil
}

// DeleteByFilename removes every fragment ingested from one file.
func (s *Service) DeleteByFilename(ctx context.Context, name, filename string) (int, error) {
	if strings.TrimSpace(filename) == "" {
		return 0, fmt.Errorf("filename is empty: %w", domain.ErrInvalidParameter)
	}
	storageID, err := resolve(name)
	if err != nil {
		return 0, err
	}
	if _, err := s.colls.Get(ctx, storageID); err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}

	deleted, err := s.frags.DeleteByFilename(ctx, storageID, filename)
	if err != nil {
		return 0, fmt.Errorf("delete file fragments: %w", err)
	}
	return deleted, nil
}

// Clear removes every fragment in the collection, keeping the collection itself.
func (s *Service) Clear(ctx context.Context, name string) (int, error) {
	storageID, err := resolve(name)
	if err != nil {
		return 0, err
	}
	if _, err := s.colls.Get(ctx, storageID); err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}

	deleted, err := s.frags.DeleteAll(ctx, storageID)
	if err != nil {
		return 0, fmt.Errorf("clear collection: %w", err)
	}
	return deleted, nil
}

func resolve(name string) (string, error) {
	storageID, _, err := domcol.DeriveStorageID(name)
	if err != nil {
		return "", fmt.Errorf("resolve name: %w", err)
	}
	return storageID, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
