package domain

import "errors"

var (
	// ErrNotFound signals a missing collection.
	ErrNotFound = errors.New("collection not found")
	// ErrAlreadyExists signals a duplicate collection.
	ErrAlreadyExists = errors.New("collection already exists")
	// ErrInvalidParameter signals a bad request parameter, rejected before any I/O.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNameConflict signals that a derived storage id already maps to a different
	// display name. Never auto-resolved: merging would silently mix unrelated data.
	ErrNameConflict = errors.New("collection name conflict")
	// ErrDimensionMismatch signals an embedding vector whose width differs from the
	// collection dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingUnavailable signals an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrUnsupportedFileType signals an upload with an extension no extractor handles.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)
