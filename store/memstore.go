package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petal-labs/petalmatch/core"
)

// MemCollectionStore is a thread-safe in-memory collection store.
type MemCollectionStore struct {
	mu          sync.RWMutex
	collections map[string]*core.Collection
	savedAt     map[string]time.Time
}

// NewMemCollectionStore creates a new in-memory collection store.
func NewMemCollectionStore() *MemCollectionStore {
	return &MemCollectionStore{
		collections: make(map[string]*core.Collection),
		savedAt:     make(map[string]time.Time),
	}
}

func (s *MemCollectionStore) SaveCollection(_ context.Context, col *core.Collection) error {
	if col == nil || col.ID == "" {
		return errors.New("memstore: collection ID is required")
	}
	if err := col.CheckIdentifiers(); err != nil {
		return fmt.Errorf("memstore: collection %q: %w", col.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[col.ID] = copyCollection(col)
	s.savedAt[col.ID] = time.Now().UTC()
	return nil
}

func (s *MemCollectionStore) LoadCollection(_ context.Context, id string) (*core.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("memstore: %w: %q", ErrCollectionNotFound, id)
	}
	return copyCollection(col), nil
}

func (s *MemCollectionStore) ListCollections(_ context.Context) ([]CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]CollectionInfo, 0, len(s.collections))
	for id, col := range s.collections {
		infos = append(infos, CollectionInfo{
			ID:             id,
			CollectionType: col.CollectionType,
			Elements:       col.Len(),
			SavedAt:        s.savedAt[id],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// copyCollection deep-copies col so callers cannot mutate stored snapshots.
func copyCollection(col *core.Collection) *core.Collection {
	if col == nil {
		return nil
	}
	out := &core.Collection{
		ID:             col.ID,
		CollectionType: col.CollectionType,
		Elements:       make([]*core.Element, 0, len(col.Elements)),
	}
	for _, el := range col.Elements {
		cp := &core.Element{Identifier: el.Identifier, Child: copyCollection(el.Child)}
		if el.Dataset != nil {
			cp.Dataset = &core.Dataset{
				ID:          el.Dataset.ID,
				Permissions: append([]core.ActionTuple(nil), el.Dataset.Permissions...),
			}
		}
		out.Elements = append(out.Elements, cp)
	}
	return out
}

// Compile-time interface check.
var _ CollectionStore = (*MemCollectionStore)(nil)
