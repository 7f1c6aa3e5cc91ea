package storage_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/memory"

	"github.com/shopspring/decimal"
)

var (
	alice = core.Scope{UserID: "alice"}
	bob   = core.Scope{UserID: "bob"}
)

func backends(t *testing.T) map[string]storage.Store {
	t.Helper()
	sq, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]storage.Store{
		"memory": memory.New(),
		"sqlite": sq,
	}
}

func seed(t *testing.T, s storage.Store) {
	t.Helper()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	err := s.Atomic(context.Background(), func(tx storage.Tx) error {
		ctx := context.Background()
		if err := tx.InsertAccount(ctx, core.Account{
			ID: "acc-1", Scope: alice, Name: "Checking", Currency: "EUR", Kind: core.Asset, CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.InsertCategory(ctx, core.Category{ID: "cat-1", Scope: alice, Name: "Home", Type: core.ExpenseCategory}); err != nil {
			return err
		}
		return tx.InsertCategory(ctx, core.Category{ID: "cat-2", Scope: alice, Name: "Rent", Type: core.ExpenseCategory, ParentID: "cat-1"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			boom := errors.New("boom")

			err := s.Atomic(ctx, func(tx storage.Tx) error {
				if err := tx.AdjustBalance(ctx, alice, "acc-1", decimal.NewFromInt(-50)); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Atomic() error = %v, want boom", err)
			}

			_ = s.View(ctx, func(tx storage.Tx) error {
				a, err := tx.GetAccount(ctx, alice, "acc-1")
				if err != nil {
					t.Fatal(err)
				}
				if !a.Balance.IsZero() {
					t.Errorf("balance = %s after rollback, want 0", a.Balance)
				}
				return nil
			})
		})
	}
}

func TestAdjustBalance(t *testing.T) {
	if _, ok := reflect.TypeOf((*storage.Tx)(nil)).Elem().MethodByName("SetBalance"); ok {
		t.Fatal("storage.Tx exposes an absolute balance write")
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.Atomic(ctx, func(tx storage.Tx) error {
				for _, delta := range []string{"100.50", "-20.25", "0.75"} {
					if err := tx.AdjustBalance(ctx, alice, "acc-1", decimal.RequireFromString(delta)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}

			err = s.Atomic(ctx, func(tx storage.Tx) error {
				return tx.AdjustBalance(ctx, bob, "acc-1", decimal.NewFromInt(1))
			})
			if !errors.Is(err, core.ErrNotFound) {
				t.Errorf("AdjustBalance(bob) error = %v, want not found", err)
			}

			_ = s.View(ctx, func(tx storage.Tx) error {
				a, err := tx.GetAccount(ctx, alice, "acc-1")
				if err != nil {
					t.Fatal(err)
				}
				if !a.Balance.Equal(decimal.RequireFromString("81")) {
					t.Errorf("balance = %s, want 81", a.Balance)
				}
				return nil
			})
		})
	}
}

func TestViewRejectsWrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.View(ctx, func(tx storage.Tx) error {
				return tx.AdjustBalance(ctx, alice, "acc-1", decimal.NewFromInt(1))
			})
			if err == nil {
				t.Fatal("expected write in View to fail")
			}
		})
	}
}

func TestScopeIsolation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			_ = s.View(ctx, func(tx storage.Tx) error {
				if _, err := tx.GetAccount(ctx, bob, "acc-1"); !errors.Is(err, core.ErrNotFound) {
					t.Errorf("GetAccount(bob) error = %v, want not found", err)
				}
				cats, err := tx.ListCategories(ctx, bob)
				if err != nil {
					t.Fatal(err)
				}
				if len(cats) != 0 {
					t.Errorf("bob sees %d categories", len(cats))
				}
				return nil
			})
		})
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
			err := s.Atomic(ctx, func(tx storage.Tx) error {
				for i, day := range []int{3, 1, 2} {
					tr := core.Transaction{
						ID:          fmt.Sprintf("tx-%d", i),
						Scope:       alice,
						AccountID:   "acc-1",
						CategoryID:  "cat-2",
						Amount:      decimal.RequireFromString("-12.50"),
						Date:        core.NewDate(2026, 2, day),
						Description: "rent",
						CreatedAt:   now,
						UpdatedAt:   now,
					}
					if i == 0 {
						tr.BillRef = &core.BillRef{BillID: "bill-1", Date: core.NewDate(2026, 2, 3)}
					}
					if err := tx.InsertTransaction(ctx, tr); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}

			_ = s.View(ctx, func(tx storage.Tx) error {
				list, err := tx.ListTransactions(ctx, alice, storage.TransactionFilter{
					From:        core.NewDate(2026, 2, 2),
					To:          core.NewDate(2026, 2, 4),
					CategoryIDs: []string{"cat-2"},
				})
				if err != nil {
					t.Fatal(err)
				}
				if len(list) != 2 {
					t.Fatalf("got %d transactions, want 2", len(list))
				}
				if list[0].Date.Day() != 2 || list[1].Date.Day() != 3 {
					t.Errorf("order = %s, %s", list[0].Date, list[1].Date)
				}
				if list[1].BillRef == nil || list[1].BillRef.BillID != "bill-1" {
					t.Errorf("bill ref lost: %+v", list[1].BillRef)
				}
				if !list[0].Amount.Equal(decimal.RequireFromString("-12.5")) {
					t.Errorf("amount = %s", list[0].Amount)
				}
				return nil
			})
		})
	}
}

func TestBillSegmentsAndOverrides(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			snap := core.Snapshot{Name: "Rent", Amount: decimal.NewFromInt(1000), AccountID: "acc-1", CategoryID: "cat-2", Cadence: core.Monthly}
			bill := core.Bill{
				ID:         "bill-1",
				Scope:      alice,
				AnchorDate: core.NewDate(2026, 1, 15),
				CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				Segments: []core.Segment{
					{ID: "seg-2", BillID: "bill-1", Start: core.NewDate(2026, 6, 15), Anchor: core.NewDate(2026, 6, 15), Snapshot: snap},
					{ID: "seg-1", BillID: "bill-1", Start: core.NewDate(2026, 1, 15), End: core.NewDate(2026, 6, 15), Anchor: core.NewDate(2026, 1, 15), Snapshot: snap},
				},
			}
			amount := decimal.NewFromInt(1200)
			err := s.Atomic(ctx, func(tx storage.Tx) error {
				if err := tx.InsertBill(ctx, bill); err != nil {
					return err
				}
				for _, m := range []int{2, 3, 7} {
					if err := tx.UpsertOverride(ctx, alice, core.Override{
						BillID: "bill-1", Date: core.NewDate(2026, m, 15), Fields: core.OverrideFields{Amount: &amount}, Status: core.Pending,
					}); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("insert bill: %v", err)
			}

			_ = s.View(ctx, func(tx storage.Tx) error {
				b, err := tx.GetBill(ctx, alice, "bill-1")
				if err != nil {
					t.Fatal(err)
				}
				if len(b.Segments) != 2 || b.Segments[0].ID != "seg-1" || !b.Segments[1].Open() {
					t.Fatalf("segments = %+v", b.Segments)
				}
				ovs, err := tx.ListOverrides(ctx, alice, "bill-1", core.NewDate(2026, 3, 1), core.Date{})
				if err != nil {
					t.Fatal(err)
				}
				if len(ovs) != 2 || !ovs[0].Fields.Amount.Equal(amount) || ovs[0].Fields.Name != nil {
					t.Errorf("overrides = %+v", ovs)
				}
				if _, err := tx.GetBill(ctx, bob, "bill-1"); !errors.Is(err, core.ErrBillNotFound) {
					t.Errorf("bob GetBill error = %v", err)
				}
				return nil
			})

			err = s.Atomic(ctx, func(tx storage.Tx) error {
				return tx.DeleteOverridesFrom(ctx, alice, "bill-1", core.NewDate(2026, 3, 15))
			})
			if err != nil {
				t.Fatal(err)
			}
			_ = s.View(ctx, func(tx storage.Tx) error {
				ovs, _ := tx.ListOverrides(ctx, alice, "bill-1", core.Date{}, core.Date{})
				if len(ovs) != 1 || ovs[0].Date.Month() != 2 {
					t.Errorf("after DeleteOverridesFrom: %+v", ovs)
				}
				all, _ := tx.AllBills(ctx)
				if len(all) != 1 || all[0].Scope.UserID != "alice" {
					t.Errorf("AllBills = %+v", all)
				}
				return nil
			})

			err = s.Atomic(ctx, func(tx storage.Tx) error { return tx.DeleteBill(ctx, alice, "bill-1") })
			if err != nil {
				t.Fatal(err)
			}
			_ = s.View(ctx, func(tx storage.Tx) error {
				if _, err := tx.GetBill(ctx, alice, "bill-1"); !errors.Is(err, core.ErrNotFound) {
					t.Errorf("GetBill after delete error = %v", err)
				}
				return nil
			})
		})
	}
}
