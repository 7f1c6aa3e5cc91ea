package categories

import (
	"context"
	"errors"
	"testing"
	"time"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/memory"
)

var scope = core.Scope{UserID: "u1"}

func newService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store := memory.New()
	return NewService(store, cache.NewLRUCache[core.Category](16, time.Minute)), store
}

func TestCreateEnforcesTree(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	home, err := svc.Create(ctx, scope, NewCategory{Name: "Home", Type: core.ExpenseCategory})
	if err != nil {
		t.Fatalf("Create(root) error = %v", err)
	}
	rent, err := svc.Create(ctx, scope, NewCategory{Name: "Rent", Type: core.ExpenseCategory, ParentID: home.ID})
	if err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	tests := []struct {
		name string
		in   NewCategory
		want error
	}{
		{"grandchild", NewCategory{Name: "Deposit", Type: core.ExpenseCategory, ParentID: rent.ID}, core.ErrNestingTooDeep},
		{"type mismatch", NewCategory{Name: "Refund", Type: core.IncomeCategory, ParentID: home.ID}, core.ErrValidation},
		{"missing parent", NewCategory{Name: "X", Type: core.ExpenseCategory, ParentID: "nope"}, core.ErrNotFound},
		{"empty name", NewCategory{Name: " ", Type: core.ExpenseCategory}, core.ErrValidation},
		{"bad type", NewCategory{Name: "X", Type: "OTHER"}, core.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, scope, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExpandWithDescendants(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	home, _ := svc.Create(ctx, scope, NewCategory{Name: "Home", Type: core.ExpenseCategory})
	rent, _ := svc.Create(ctx, scope, NewCategory{Name: "Rent", Type: core.ExpenseCategory, ParentID: home.ID})
	power, _ := svc.Create(ctx, scope, NewCategory{Name: "Power", Type: core.ExpenseCategory, ParentID: home.ID})
	food, _ := svc.Create(ctx, scope, NewCategory{Name: "Food", Type: core.ExpenseCategory})

	_ = store.View(ctx, func(tx storage.Tx) error {
		got, err := svc.ExpandWithDescendants(ctx, tx, scope, []string{home.ID, rent.ID})
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]bool{home.ID: true, rent.ID: true, power.ID: true}
		if len(got) != len(want) {
			t.Fatalf("got %v, want 3 ids", got)
		}
		for _, id := range got {
			if !want[id] || id == food.ID {
				t.Errorf("unexpected id %s", id)
			}
		}

		if _, err := svc.ExpandWithDescendants(ctx, tx, scope, []string{"ghost"}); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("unknown id error = %v", err)
		}
		return nil
	})
}

func TestFindByIDIsScoped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c, _ := svc.Create(ctx, scope, NewCategory{Name: "Salary", Type: core.IncomeCategory})

	got, err := svc.Get(ctx, scope, c.ID)
	if err != nil || got.Type != core.IncomeCategory {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, core.Scope{UserID: "other"}, c.ID); !errors.Is(err, core.ErrCategoryNotFound) {
		t.Errorf("other scope error = %v", err)
	}
	if _, err := svc.Get(ctx, core.Scope{}, c.ID); !errors.Is(err, core.ErrMissingScope) {
		t.Errorf("missing scope error = %v", err)
	}
}
