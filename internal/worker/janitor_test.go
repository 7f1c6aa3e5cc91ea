package worker

import (
	"context"
	"testing"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/memory"

	"github.com/shopspring/decimal"
)

func seedOrphan(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	err := store.Atomic(ctx, func(tx storage.Tx) error {
		bill := core.Bill{
			ID:         "b1",
			Scope:      scope,
			AnchorDate: core.NewDate(2026, 1, 1),
			Segments: []core.Segment{{
				ID:     "s1",
				BillID: "b1",
				Start:  core.NewDate(2026, 1, 1),
				End:    core.NewDate(2026, 3, 1),
				Anchor: core.NewDate(2026, 1, 1),
				Snapshot: core.Snapshot{
					Name:       "Gym",
					Amount:     decimal.NewFromInt(30),
					AccountID:  "a1",
					CategoryID: "c1",
					Cadence:    core.Monthly,
				},
			}},
		}
		if err := tx.InsertBill(ctx, bill); err != nil {
			return err
		}
		name := "Gym (promo)"
		// outside every segment
		return tx.UpsertOverride(ctx, scope, core.Override{
			BillID: "b1",
			Date:   core.NewDate(2026, 6, 1),
			Fields: core.OverrideFields{Name: &name},
			Status: core.Pending,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestJanitor_RunOnce(t *testing.T) {
	store := memory.New()
	seedOrphan(t, store)
	j := NewJanitor(store)

	removed, err := j.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("RunOnce() removed %d, want 1", removed)
	}
	if removed, _ = j.RunOnce(context.Background()); removed != 0 {
		t.Errorf("second RunOnce() removed %d, want 0", removed)
	}
	if j.Runs() != 2 {
		t.Errorf("Runs() = %d, want 2", j.Runs())
	}
}

func TestJanitor_Schedule(t *testing.T) {
	j := NewJanitor(memory.New())
	if err := j.Schedule(context.Background(), "@every 1h"); err != nil {
		t.Errorf("Schedule() error = %v", err)
	}
	if err := j.Schedule(context.Background(), "whenever"); err == nil {
		t.Error("Schedule() accepted an invalid spec")
	}
	j.Start()
	j.Stop()
}
