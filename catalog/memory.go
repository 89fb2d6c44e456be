package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/justapithecus/catalogfeed/types"
)

// MemoryStore is an in-memory Store ordered by id.
// Safe for concurrent use; mutations may interleave with a running export.
type MemoryStore struct {
	mu    sync.RWMutex
	ids   []types.ItemID // ascending
	items map[types.ItemID]types.Item
}

// NewMemoryStore creates a store holding items.
func NewMemoryStore(items ...types.Item) *MemoryStore {
	s := &MemoryStore{items: make(map[types.ItemID]types.Item, len(items))}
	for _, it := range items {
		s.Put(it)
	}
	return s
}

// Put inserts or replaces an item.
func (s *MemoryStore) Put(item types.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		pos, _ := slices.BinarySearch(s.ids, item.ID)
		s.ids = slices.Insert(s.ids, pos, item.ID)
	}
	s.items[item.ID] = item
}

// Delete removes an item. Deleting a missing id is a no-op.
func (s *MemoryStore) Delete(id types.ItemID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	if pos, found := slices.BinarySearch(s.ids, id); found {
		s.ids = slices.Delete(s.ids, pos, pos+1)
	}
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// ListIDs implements Lister.
func (s *MemoryStore) ListIDs(ctx context.Context, offset, limit int64, filter TypeFilter) ([]types.ItemID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d", offset, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		out     []types.ItemID
		matched int64
	)
	for _, id := range s.ids {
		item := s.resolve(s.items[id])
		if !filter.Matches(&item) {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		if int64(len(out)) >= limit {
			break
		}
		out = append(out, id)
	}
	return out, nil
}

// Load implements Loader.
func (s *MemoryStore) Load(ctx context.Context, id types.ItemID) (*types.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	item = s.resolve(item)
	return &item, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// resolve fills ParentStatus from the stored parent when present.
// Caller must hold the read lock.
func (s *MemoryStore) resolve(item types.Item) types.Item {
	if item.ParentID == 0 {
		return item
	}
	if parent, ok := s.items[item.ParentID]; ok {
		item.ParentStatus = parent.Status
	}
	return item
}

var _ Store = (*MemoryStore)(nil)
