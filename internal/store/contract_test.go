package store

import (
	"context"
	"errors"
	"testing"

	"github.com/vyrodovalexey/homelab-api/internal/model"
)

// runStoreContract exercises the behavior every Store implementation must
// share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	insert := func(t *testing.T, s Store, items ...model.Item) {
		t.Helper()
		err := s.Update(context.Background(), func(tx Tx) error {
			for _, item := range items {
				if _, err := tx.Insert(context.Background(), item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		items, err := s.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll() error = %v", err)
		}
		if items == nil || len(items) != 0 {
			t.Errorf("GetAll() = %v, want empty non-nil slice", items)
		}

		maxID, err := s.MaxID(ctx)
		if err != nil {
			t.Fatalf("MaxID() error = %v", err)
		}
		if maxID != 0 {
			t.Errorf("MaxID() = %d, want 0", maxID)
		}

		_, found, err := s.Get(ctx, 1)
		if err != nil || found {
			t.Errorf("Get(1) = found %v, err %v; want not found, nil", found, err)
		}
	})

	t.Run("insert and read back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := model.Item{ID: 1, Name: "First", Description: model.StringPtr("d1")}

		insert(t, s, want)

		got, found, err := s.Get(ctx, 1)
		if err != nil || !found {
			t.Fatalf("Get(1) = found %v, err %v", found, err)
		}
		if !got.Equal(want) {
			t.Errorf("Get(1) = %+v, want %+v", got, want)
		}
	})

	t.Run("nil description survives", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 5, Name: "No description"})

		got, found, err := s.Get(context.Background(), 5)
		if err != nil || !found {
			t.Fatalf("Get(5) = found %v, err %v", found, err)
		}
		if got.Description != nil {
			t.Errorf("Description = %q, want nil", *got.Description)
		}
	})

	t.Run("get all is ordered by id", func(t *testing.T) {
		s := newStore(t)
		insert(t, s,
			model.Item{ID: 3, Name: "Three"},
			model.Item{ID: 1, Name: "One"},
			model.Item{ID: 2, Name: "Two"},
		)

		items, err := s.GetAll(context.Background())
		if err != nil {
			t.Fatalf("GetAll() error = %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("GetAll() len = %d, want 3", len(items))
		}
		for i, item := range items {
			if item.ID != i+1 {
				t.Errorf("items[%d].ID = %d, want %d", i, item.ID, i+1)
			}
		}
	})

	t.Run("max id tracks highest", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "One"}, model.Item{ID: 7, Name: "Seven"})

		maxID, err := s.MaxID(context.Background())
		if err != nil {
			t.Fatalf("MaxID() error = %v", err)
		}
		if maxID != 7 {
			t.Errorf("MaxID() = %d, want 7", maxID)
		}
	})

	t.Run("duplicate insert rejected", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "One"})

		err := s.Update(context.Background(), func(tx Tx) error {
			_, err := tx.Insert(context.Background(), model.Item{ID: 1, Name: "Again"})
			return err
		})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("Insert() error = %v, want %v", err, ErrAlreadyExists)
		}

		got, _, _ := s.Get(context.Background(), 1)
		if got.Name != "One" {
			t.Errorf("Name = %s, want One", got.Name)
		}
	})

	t.Run("invalid id rejected", func(t *testing.T) {
		s := newStore(t)

		err := s.Update(context.Background(), func(tx Tx) error {
			_, err := tx.Insert(context.Background(), model.Item{ID: 0, Name: "Zero"})
			return err
		})
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("Insert() error = %v, want %v", err, ErrInvalidID)
		}
	})

	t.Run("replace overwrites", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "A", Description: model.StringPtr("D")})

		err := s.Update(context.Background(), func(tx Tx) error {
			return tx.Replace(context.Background(), 1, model.Item{ID: 1, Name: "B"})
		})
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}

		got, _, _ := s.Get(context.Background(), 1)
		if !got.Equal(model.Item{ID: 1, Name: "B"}) {
			t.Errorf("Get(1) = %+v, want {1 B nil}", got)
		}
	})

	t.Run("replace missing id", func(t *testing.T) {
		s := newStore(t)

		err := s.Update(context.Background(), func(tx Tx) error {
			return tx.Replace(context.Background(), 42, model.Item{ID: 42, Name: "X"})
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Replace() error = %v, want %v", err, ErrNotFound)
		}

		items, _ := s.GetAll(context.Background())
		if len(items) != 0 {
			t.Errorf("store should stay empty, got %d items", len(items))
		}
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "One"})

		var removed, removedAgain bool
		err := s.Update(context.Background(), func(tx Tx) error {
			var err error
			if removed, err = tx.Remove(context.Background(), 1); err != nil {
				return err
			}
			removedAgain, err = tx.Remove(context.Background(), 1)
			return err
		})
		if err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if !removed {
			t.Error("first Remove() = false, want true")
		}
		if removedAgain {
			t.Error("second Remove() = true, want false")
		}
	})

	t.Run("callback error discards writes", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "One"})
		boom := errors.New("boom")
		ctx := context.Background()

		err := s.Update(ctx, func(tx Tx) error {
			if _, err := tx.Insert(ctx, model.Item{ID: 2, Name: "Two"}); err != nil {
				return err
			}
			if err := tx.Replace(ctx, 1, model.Item{ID: 1, Name: "Renamed"}); err != nil {
				return err
			}
			if _, err := tx.Remove(ctx, 1); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Update() error = %v, want %v", err, boom)
		}

		items, err := s.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll() error = %v", err)
		}
		if len(items) != 1 || items[0].ID != 1 || items[0].Name != "One" {
			t.Errorf("GetAll() after failed Update = %+v, want only the original item 1", items)
		}
		if highest, _ := s.MaxID(ctx); highest != 1 {
			t.Errorf("MaxID() after failed Update = %d, want 1", highest)
		}
	})

	t.Run("returned items are copies", func(t *testing.T) {
		s := newStore(t)
		insert(t, s, model.Item{ID: 1, Name: "A", Description: model.StringPtr("D")})

		got, _, _ := s.Get(context.Background(), 1)
		got.Name = "mutated"
		*got.Description = "mutated"

		again, _, _ := s.Get(context.Background(), 1)
		if again.Name != "A" || *again.Description != "D" {
			t.Errorf("store state changed through returned copy: %+v", again)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := s.GetAll(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("GetAll() error = %v, want %v", err, context.Canceled)
		}
		if _, _, err := s.Get(ctx, 1); !errors.Is(err, context.Canceled) {
			t.Errorf("Get() error = %v, want %v", err, context.Canceled)
		}
		if _, err := s.MaxID(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("MaxID() error = %v, want %v", err, context.Canceled)
		}
		called := false
		err := s.Update(ctx, func(Tx) error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Update() error = %v, want %v", err, context.Canceled)
		}
		if called {
			t.Error("Update() should not run fn with a canceled context")
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}
