package memory

import (
	"context"
	"testing"

	"conti/internal/core"
	"conti/internal/sheets"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	row := sheets.Row{
		TransactionID: "t1",
		Date:          core.NewDate(2026, 3, 1),
		Description:   "Coffee",
		Amount:        decimal.RequireFromString("-3.20"),
		Kind:          sheets.KindTransaction,
	}

	ref, err := s.Upsert(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected upsert: ref=%q err=%v", ref, err)
	}
	if _, err := s.Upsert(ctx, sheets.Row{TransactionID: "t2", Description: "Rent"}); err != nil {
		t.Fatal(err)
	}

	row.Description = "Espresso"
	ref, err = s.Upsert(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("update should rewrite row 1: ref=%q err=%v", ref, err)
	}
	if got, _ := s.Get("t1"); got.Description != "Espresso" {
		t.Errorf("row t1 = %+v, want updated description", got)
	}

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
	rows, _ := s.List(ctx)
	if len(rows) != 1 || rows[0].TransactionID != "t2" {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}
	if ref, _ := s.Upsert(ctx, sheets.Row{TransactionID: "t3"}); ref != "mem:3" {
		t.Errorf("new row ref = %q, want mem:3", ref)
	}
}

func TestMemoryStoreRejectsRowWithoutID(t *testing.T) {
	if _, err := New().Upsert(context.Background(), sheets.Row{Description: "x"}); err == nil {
		t.Fatal("expected error for row without transaction id")
	}
}
