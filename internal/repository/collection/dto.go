package collection

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/docdex/internal/domain/collection"
)

// collectionToHash converts a domain Collection to a map for HSET.
func collectionToHash(col collection.Collection) map[string]string {
	return map[string]string{
		"storage_id":   col.StorageID(),
		"display_name": col.DisplayName(),
		"dimension":    strconv.Itoa(col.Dimension()),
		"created_at":   strconv.FormatInt(col.CreatedAt(), 10),
	}
}

// collectionFromHash hydrates a domain Collection from an HGETALL result map.
func collectionFromHash(m map[string]string) (collection.Collection, error) {
	storageID := m["storage_id"]
	if storageID == "" {
		return collection.Collection{}, fmt.Errorf("collection hash missing storage_id")
	}

	dimension, err := strconv.Atoi(m["dimension"])
	if err != nil {
		return collection.Collection{}, fmt.Errorf("invalid dimension: %w", err)
	}

	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("invalid created_at: %w", err)
	}

	return collection.Reconstruct(storageID, m["display_name"], dimension, createdAt), nil
}
