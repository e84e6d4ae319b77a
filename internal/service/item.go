// Package service implements the item business rules on top of a store.
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/homelab-api/internal/model"
	"github.com/vyrodovalexey/homelab-api/internal/store"
)

// Publisher receives committed item changes, one call per mutation, in the
// order the mutations were committed. Publish must not block.
type Publisher interface {
	Publish(event model.ItemEvent)
}

// ItemService implements list/get/create/update/delete over a Store. It
// holds no item state of its own.
type ItemService struct {
	store     store.Store
	logger    *zap.Logger
	publisher Publisher
	publishMu sync.Mutex
}

// NewItemService creates a new ItemService. publisher may be nil.
func NewItemService(s store.Store, logger *zap.Logger, publisher Publisher) *ItemService {
	return &ItemService{
		store:     s,
		logger:    logger,
		publisher: publisher,
	}
}

// ListItems returns every item. The slice is empty, not nil, when the store
// holds nothing.
func (s *ItemService) ListItems(ctx context.Context) ([]model.Item, error) {
	items, err := s.store.GetAll(ctx)
	if err != nil {
		observe(opList, outcomeError)
		return nil, fmt.Errorf("list items: %w", err)
	}

	if items == nil {
		items = []model.Item{}
	}

	observe(opList, outcomeOK)
	return items, nil
}

// GetItem looks up an item by ID. A missing item is reported through the
// boolean, not as an error.
func (s *ItemService) GetItem(ctx context.Context, id int) (model.Item, bool, error) {
	item, found, err := s.store.Get(ctx, id)
	if err != nil {
		observe(opGet, outcomeError)
		return model.Item{}, false, fmt.Errorf("get item %d: %w", id, err)
	}

	observe(opGet, foundOutcome(found))
	return item, found, nil
}

// CreateItem assigns the next ID (highest existing ID + 1) and stores the
// item. ID assignment and insert run in one Store.Update so concurrent
// creates never collide.
func (s *ItemService) CreateItem(ctx context.Context, in model.ItemCreate) (model.Item, error) {
	var created model.Item

	err := s.mutate(ctx, func(tx store.Tx) (*model.ItemEvent, error) {
		maxID, err := tx.MaxID(ctx)
		if err != nil {
			return nil, err
		}

		created, err = tx.Insert(ctx, in.ToItem(maxID+1))
		if err != nil {
			return nil, err
		}
		return newEvent(model.ItemEventCreated, created), nil
	})
	if err != nil {
		observe(opCreate, outcomeError)
		return model.Item{}, fmt.Errorf("create item: %w", err)
	}

	observe(opCreate, outcomeOK)
	s.logger.Debug("item created", zap.Int("id", created.ID))

	return created, nil
}

// UpdateItem merges the supplied fields of patch onto the stored item. Fields
// not supplied keep their current value. When id does not exist nothing is
// written and the boolean is false.
func (s *ItemService) UpdateItem(ctx context.Context, id int, patch model.ItemUpdate) (model.Item, bool, error) {
	var (
		updated model.Item
		found   bool
	)

	err := s.mutate(ctx, func(tx store.Tx) (*model.ItemEvent, error) {
		current, exists, err := tx.Get(ctx, id)
		if err != nil || !exists {
			return nil, err
		}

		merged := patch.Apply(current)
		if err := tx.Replace(ctx, id, merged); err != nil {
			return nil, err
		}

		updated, found = merged, true
		return newEvent(model.ItemEventUpdated, updated), nil
	})
	if err != nil {
		observe(opUpdate, outcomeError)
		return model.Item{}, false, fmt.Errorf("update item %d: %w", id, err)
	}

	observe(opUpdate, foundOutcome(found))
	if !found {
		return model.Item{}, false, nil
	}

	s.logger.Debug("item updated", zap.Int("id", id))

	return updated, true, nil
}

// DeleteItem removes the item and reports whether it existed.
func (s *ItemService) DeleteItem(ctx context.Context, id int) (bool, error) {
	var deleted bool

	err := s.mutate(ctx, func(tx store.Tx) (*model.ItemEvent, error) {
		current, exists, err := tx.Get(ctx, id)
		if err != nil || !exists {
			return nil, err
		}

		if deleted, err = tx.Remove(ctx, id); err != nil || !deleted {
			return nil, err
		}
		return newEvent(model.ItemEventDeleted, current), nil
	})
	if err != nil {
		observe(opDelete, outcomeError)
		return false, fmt.Errorf("delete item %d: %w", id, err)
	}

	observe(opDelete, foundOutcome(deleted))
	if !deleted {
		return false, nil
	}

	s.logger.Debug("item deleted", zap.Int("id", id))

	return true, nil
}

// mutate runs fn inside Store.Update and publishes the event fn returns once
// the change is committed. publishMu is taken while the store still holds its
// write lock and released after publishing, so events reach the publisher in
// commit order. Nothing is published when fn or the commit fails.
func (s *ItemService) mutate(ctx context.Context, fn func(tx store.Tx) (*model.ItemEvent, error)) error {
	var (
		event  *model.ItemEvent
		locked bool
	)

	err := s.store.Update(ctx, func(tx store.Tx) error {
		ev, err := fn(tx)
		if err != nil {
			return err
		}
		if ev != nil && s.publisher != nil {
			s.publishMu.Lock()
			event, locked = ev, true
		}
		return nil
	})
	if locked {
		defer s.publishMu.Unlock()
	}
	if err != nil {
		return err
	}

	if event != nil {
		s.publisher.Publish(*event)
	}
	return nil
}

func newEvent(eventType model.ItemEventType, item model.Item) *model.ItemEvent {
	event := model.NewItemEvent(eventType, item)
	return &event
}

// Ping reports whether the underlying store is usable.
func (s *ItemService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
