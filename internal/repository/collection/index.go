package collection

import "github.com/kailas-cloud/docdex/internal/db"

// tagSeparator for the filename TAG field. Filenames may contain commas, so
// the default separator is replaced with the ASCII unit separator.
const tagSeparator = "\x1f"

// buildIndex defines the per-collection fragment index: filename TAG,
// chunk_index NUMERIC, text TEXT, and an HNSW cosine vector field.
func buildIndex(storageID string, dimension int, hnsw HNSWConfig) *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     indexName(storageID),
		Prefixes: []string{fragmentPrefix(storageID)},
		Fields: []db.IndexField{
			{Name: "filename", Type: db.IndexFieldTag, TagSeparator: tagSeparator},
			{Name: "chunk_index", Type: db.IndexFieldNumeric},
			{Name: "text", Type: db.IndexFieldText},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dimension,
				VectorDistance:    db.DistanceCosine,
				VectorM:           hnsw.M,
				VectorEFConstruct: hnsw.EFConstruct,
			},
		},
	}
}
