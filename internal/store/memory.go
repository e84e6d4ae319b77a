package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[int]model.Item
	closed bool
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[int]model.Item),
	}
}

// GetAll returns all items from the store.
func (s *MemoryStore) GetAll(ctx context.Context) ([]model.Item, error) {
	if err := checkContext(ctx, "list items"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	return snapshot(s.items), nil
}

// Get retrieves an item by its ID.
func (s *MemoryStore) Get(ctx context.Context, id int) (model.Item, bool, error) {
	if err := checkContext(ctx, "get item"); err != nil {
		return model.Item{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Item{}, false, ErrClosed
	}

	item, exists := s.items[id]
	if !exists {
		return model.Item{}, false, nil
	}

	return item.Clone(), true, nil
}

// MaxID returns the highest stored ID.
func (s *MemoryStore) MaxID(ctx context.Context) (int, error) {
	if err := checkContext(ctx, "max id"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	return maxID(s.items), nil
}

// Update runs fn while holding the write lock. fn works on a copy of the
// items that replaces the stored map only when fn returns nil.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := checkContext(ctx, "update"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	staged := maps.Clone(s.items)
	if err := fn(&memoryTx{items: staged}); err != nil {
		return err
	}

	s.items = staged
	return nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := checkContext(ctx, "ping"); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all items. Subsequent calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.items = nil
	return nil
}

// memoryTx operates on a staged copy of the items; the store's write lock is
// held for its whole lifetime. Stored items are never mutated in place, so a
// shallow copy of the map is enough.
type memoryTx struct {
	items map[int]model.Item
}

func (tx *memoryTx) GetAll(ctx context.Context) ([]model.Item, error) {
	if err := checkContext(ctx, "list items"); err != nil {
		return nil, err
	}
	return snapshot(tx.items), nil
}

func (tx *memoryTx) Get(ctx context.Context, id int) (model.Item, bool, error) {
	if err := checkContext(ctx, "get item"); err != nil {
		return model.Item{}, false, err
	}

	item, exists := tx.items[id]
	if !exists {
		return model.Item{}, false, nil
	}
	return item.Clone(), true, nil
}

func (tx *memoryTx) MaxID(ctx context.Context) (int, error) {
	if err := checkContext(ctx, "max id"); err != nil {
		return 0, err
	}
	return maxID(tx.items), nil
}

func (tx *memoryTx) Insert(ctx context.Context, item model.Item) (model.Item, error) {
	if err := checkContext(ctx, "insert item"); err != nil {
		return model.Item{}, err
	}

	if item.ID <= 0 {
		return model.Item{}, fmt.Errorf("insert item %d: %w", item.ID, ErrInvalidID)
	}

	if _, exists := tx.items[item.ID]; exists {
		return model.Item{}, fmt.Errorf("insert item %d: %w", item.ID, ErrAlreadyExists)
	}

	tx.items[item.ID] = item.Clone()

	return item.Clone(), nil
}

func (tx *memoryTx) Replace(ctx context.Context, id int, item model.Item) error {
	if err := checkContext(ctx, "replace item"); err != nil {
		return err
	}

	if _, exists := tx.items[id]; !exists {
		return fmt.Errorf("replace item %d: %w", id, ErrNotFound)
	}

	stored := item.Clone()
	stored.ID = id
	tx.items[id] = stored

	return nil
}

func (tx *memoryTx) Remove(ctx context.Context, id int) (bool, error) {
	if err := checkContext(ctx, "remove item"); err != nil {
		return false, err
	}

	if _, exists := tx.items[id]; !exists {
		return false, nil
	}

	delete(tx.items, id)

	return true, nil
}

// checkContext returns a wrapped context error if ctx is already done.
func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", operation, ctx.Err())
	default:
		return nil
	}
}

func snapshot(items map[int]model.Item) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	slices.SortFunc(out, func(a, b model.Item) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func maxID(items map[int]model.Item) int {
	highest := 0
	for id := range items {
		if id > highest {
			highest = id
		}
	}
	return highest
}
