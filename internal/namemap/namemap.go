// Package namemap resolves user-facing collection names to storage-safe
// identifiers and persists the mapping so display names survive restarts.
// Only converted names are recorded; a name that is already storage-safe
// maps to itself and needs no entry.
package namemap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/collection"
)

// Mapper owns the storage-id→display-name table backed by a JSON file.
type Mapper struct {
	path string

	mu      sync.RWMutex
	entries map[string]string // storage id -> display name

	group singleflight.Group
}

type resolution struct {
	storageID string
	converted bool
}

// Load reads the mapping file, creating an empty mapper when it is absent.
func Load(path string) (*Mapper, error) {
	m := &Mapper{path: path, entries: map[string]string{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read name mapping %s: %w", path, err)
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parse name mapping %s: %w", path, err)
	}
	return m, nil
}

// Resolve maps a display name to its storage id, deriving and persisting the
// mapping on first use. Concurrent resolves of the same name are collapsed to
// a single derivation. Returns the storage id and whether the name was
// converted.
func (m *Mapper) Resolve(ctx context.Context, displayName string) (string, bool, error) {
	v, err, _ := m.group.Do(displayName, func() (any, error) {
		return m.resolve(displayName)
	})
	if err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	r := v.(resolution)
	return r.storageID, r.converted, nil
}

func (m *Mapper) resolve(displayName string) (resolution, error) {
	storageID, converted, err := collection.DeriveStorageID(displayName)
	if err != nil {
		return resolution{}, err
	}
	if !converted {
		return resolution{storageID: storageID}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[storageID]; ok {
		if existing != displayName {
			return resolution{}, fmt.Errorf(
				"%w: %q and %q both map to storage id %q",
				domain.ErrNameConflict, existing, displayName, storageID,
			)
		}
		return resolution{storageID: storageID, converted: true}, nil
	}

	m.entries[storageID] = displayName
	if err := m.flushLocked(); err != nil {
		delete(m.entries, storageID)
		return resolution{}, err
	}
	return resolution{storageID: storageID, converted: true}, nil
}

// DisplayName returns the display name recorded for a storage id, falling
// back to the storage id itself when no mapping exists.
func (m *Mapper) DisplayName(storageID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.entries[storageID]; ok {
		return name
	}
	return storageID
}

// Remove drops the mapping for a storage id, if any. Called on collection
// deletion so a later re-creation starts clean.
func (m *Mapper) Remove(storageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.entries[storageID]
	if !ok {
		return nil
	}
	delete(m.entries, storageID)
	if err := m.flushLocked(); err != nil {
		m.entries[storageID] = name
		return err
	}
	return nil
}

// All returns a copy of the full mapping table.
func (m *Mapper) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// flushLocked writes the table atomically: temp file in the same directory,
// then rename.
func (m *Mapper) flushLocked() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode name mapping: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create name mapping dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".namemap-*")
	if err != nil {
		return fmt.Errorf("create name mapping temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write name mapping: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close name mapping temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace name mapping: %w", err)
	}
	return nil
}
