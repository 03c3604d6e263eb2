// Package fragment defines the retrievable text unit and its content-addressed
// identity. Fragment ids are a pure function of the normalized text, source
// filename, splitting configuration, and fragment index, so re-ingesting an
// unchanged file under the same configuration reproduces the same ids, while
// re-splitting under a different configuration never deduplicates against
// older fragments.
package fragment

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Metadata describes where a fragment came from.
type Metadata struct {
	Filename string
	FileType string
	Strategy string
	// ChunkSize and Overlap are the effective split parameters. They scope
	// the fragment id: the same text at the same index under a different
	// window must not dedup against fragments from an earlier ingestion.
	ChunkSize   int
	Overlap     int
	ChunkIndex  int
	TotalChunks int
	// Extra carries file-level metadata such as page counts.
	Extra map[string]string
}

// splitID qualifies the strategy with its effective parameters, e.g.
// "fixed:400:50".
func (m Metadata) splitID() string {
	return m.Strategy + ":" + strconv.Itoa(m.ChunkSize) + ":" + strconv.Itoa(m.Overlap)
}

// Fragment is one retrievable unit of text (immutable value object).
type Fragment struct {
	id     string
	text   string
	vector []float32
	meta   Metadata
}

// New creates a Fragment, deriving its content-addressed id.
func New(text string, meta Metadata) Fragment {
	return Fragment{
		id:   NewID(text, meta.Filename, meta.splitID(), meta.ChunkIndex),
		text: text,
		meta: meta,
	}
}

// Reconstruct creates a Fragment with a known id (storage hydration).
func Reconstruct(id, text string, vector []float32, meta Metadata) Fragment {
	return Fragment{id: id, text: text, vector: vector, meta: meta}
}

// ID returns the content-addressed identifier.
func (f Fragment) ID() string { return f.id }

// Text returns the fragment text.
func (f Fragment) Text() string { return f.text }

// Vector returns the embedding vector, nil before embedding.
func (f Fragment) Vector() []float32 { return f.vector }

// Meta returns the fragment metadata.
func (f Fragment) Meta() Metadata { return f.meta }

// WithVector returns a copy with the given vector attached.
func (f Fragment) WithVector(v []float32) Fragment {
	return Fragment{id: f.id, text: f.text, vector: v, meta: f.meta}
}

// NewID derives the deterministic fragment identifier. The text is normalized
// first so formatting-only differences do not defeat deduplication. splitID
// names the full splitting configuration, strategy plus parameters. The four
// inputs are joined with NUL separators before hashing to keep distinct input
// tuples from producing identical preimages.
func NewID(text, filename, splitID string, index int) string {
	h := sha256.New()
	h.Write([]byte(Normalize(text)))
	h.Write([]byte{0})
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(splitID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize trims the text and collapses internal whitespace runs to single
// spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
