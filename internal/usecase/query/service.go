// Package query implements semantic retrieval over ingested fragments.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docdex/internal/domain"
	domcol "github.com/kailas-cloud/docdex/internal/domain/collection"
	domfrag "github.com/kailas-cloud/docdex/internal/domain/fragment"
)

// DefaultTopK is used when the caller does not ask for a specific result count.
const DefaultTopK = 5

// Result is one retrieved fragment with its relevance score.
type Result struct {
	ID       string
	Text     string
	Score    float64
	Distance float64
	Meta     domfrag.Metadata
}

// Service handles query embedding and nearest-fragment retrieval.
type Service struct {
	frags   Searcher
	colls   CollectionReader
	embed   Embedder
	maxTopK int
}

// New creates a query service. maxTopK caps the per-request result count.
func New(frags Searcher, colls CollectionReader, embed Embedder, maxTopK int) *Service {
	return &Service{frags: frags, colls: colls, embed: embed, maxTopK: maxTopK}
}

// Query embeds the text and returns up to topK nearest fragments,
// nearest first. topK <= 0 means DefaultTopK; values above the
// configured maximum are capped, not rejected.
func (s *Service) Query(ctx context.Context, name, text string, topK int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query text is empty: %w", domain.ErrInvalidParameter)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}

	storageID, _, err := domcol.DeriveStorageID(name)
	if err != nil {
		return nil, fmt.Errorf("resolve name: %w", err)
	}

	if _, err := s.colls.Get(ctx, storageID); err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	embResult, err := s.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	hits, err := s.frags.QueryByVector(ctx, storageID, embResult.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search fragments: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:       h.Fragment.ID(),
			Text:     h.Fragment.Text(),
			Score:    scoreFromDistance(h.Distance),
			Distance: h.Distance,
			Meta:     h.Fragment.Meta(),
		})
	}
	return results, nil
}

// scoreFromDistance maps a cosine distance to a score in (0,1],
// strictly decreasing in distance.
func scoreFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}
