// Package store provides data storage interfaces and implementations.
package store

import (
	"context"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// Reader exposes the read side of a store.
type Reader interface {
	// GetAll returns a snapshot of all items ordered by ascending ID.
	GetAll(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID. The boolean is false when no item
	// with that ID exists.
	Get(ctx context.Context, id int) (model.Item, bool, error)

	// MaxID returns the highest stored ID, or 0 when the store is empty.
	MaxID(ctx context.Context) (int, error)
}

// Tx is the mutable view handed to Store.Update. It is only valid for the
// duration of the callback.
type Tx interface {
	Reader

	// Insert adds a new item. The caller assigns the ID.
	Insert(ctx context.Context, item model.Item) (model.Item, error)

	// Replace overwrites the item stored under id. The caller must have
	// checked that id exists; ErrNotFound here is an invariant violation.
	Replace(ctx context.Context, id int, item model.Item) error

	// Remove deletes the item if present and reports whether it did.
	Remove(ctx context.Context, id int) (bool, error)
}

// Store defines the interface for item storage operations.
type Store interface {
	Reader

	// Update runs fn with exclusive write access. Concurrent calls are
	// serialized so a read-modify-write inside fn is atomic.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
