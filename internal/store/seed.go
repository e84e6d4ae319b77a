package store

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// DefaultSeed returns the fixture items loaded at startup.
func DefaultSeed() []model.Item {
	return []model.Item{
		{ID: 1, Name: "First Item", Description: model.StringPtr("This is the first item.")},
		{ID: 2, Name: "Second Item", Description: model.StringPtr("This is the second item.")},
	}
}

// Seed inserts items in a single Update. Items whose ID already exists are
// left untouched.
func Seed(ctx context.Context, s Store, items []model.Item) error {
	return s.Update(ctx, func(tx Tx) error {
		for _, item := range items {
			_, exists, err := tx.Get(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("seed item %d: %w", item.ID, err)
			}
			if exists {
				continue
			}
			if _, err := tx.Insert(ctx, item); err != nil {
				return fmt.Errorf("seed item %d: %w", item.ID, err)
			}
		}
		return nil
	})
}
