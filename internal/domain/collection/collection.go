package collection

import (
	"fmt"
	"time"
)

// Collection is the retrieval namespace aggregate (immutable value object).
// StorageID is the charset-restricted identifier used by the vector index;
// DisplayName is whatever the user typed, preserved for display.
type Collection struct {
	storageID   string
	displayName string
	dimension   int
	createdAt   int64
}

// New validates and creates a Collection.
// The storage id must already satisfy ValidateStorageID; name mapping happens
// before this constructor is reached.
func New(storageID, displayName string, dimension int) (Collection, error) {
	if err := ValidateStorageID(storageID); err != nil {
		return Collection{}, fmt.Errorf("storage id %q: %w", storageID, err)
	}
	if displayName == "" {
		displayName = storageID
	}
	if dimension <= 0 {
		return Collection{}, fmt.Errorf("vector dimension must be positive")
	}

	return Collection{
		storageID:   storageID,
		displayName: displayName,
		dimension:   dimension,
		createdAt:   time.Now().UnixMilli(),
	}, nil
}

// Reconstruct creates a Collection without validation (storage hydration).
func Reconstruct(storageID, displayName string, dimension int, createdAt int64) Collection {
	if displayName == "" {
		displayName = storageID
	}
	return Collection{
		storageID:   storageID,
		displayName: displayName,
		dimension:   dimension,
		createdAt:   createdAt,
	}
}

// StorageID returns the charset-restricted identifier used by the index.
func (c Collection) StorageID() string { return c.storageID }

// DisplayName returns the user-facing name.
func (c Collection) DisplayName() string { return c.displayName }

// IsRenamed reports whether the display name differs from the storage id.
func (c Collection) IsRenamed() bool { return c.displayName != c.storageID }

// Dimension returns the vector width, fixed at creation.
func (c Collection) Dimension() int { return c.dimension }

// CreatedAt returns the creation timestamp (unix millis).
func (c Collection) CreatedAt() int64 { return c.createdAt }
