package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"conti/internal/cache"
	"conti/internal/categories"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/sheets"
	sheetsmem "conti/internal/sheets/memory"
	"conti/internal/storage"
	"conti/internal/storage/memory"

	"github.com/shopspring/decimal"
)

var scope = core.Scope{UserID: "u1"}

type capture struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (c *capture) PublishLedgerEvent(_ context.Context, e ledger.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// drain returns the events captured since the last call.
func (c *capture) drain() []ledger.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

type env struct {
	ledger   *ledger.Coordinator
	store    storage.Store
	events   *capture
	sheet    *sheetsmem.Store
	worker   *ExportWorker
	account  core.Account
	savings  core.Account
	category core.Category
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cats := categories.NewService(store, cache.NewLRUCache[core.Category](16, time.Minute))
	events := &capture{}
	n := 0
	l := ledger.New(store, cats,
		ledger.WithEvents(events),
		ledger.WithClock(func() time.Time { return time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC) }),
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	)

	acc, err := l.OpenAccount(ctx, scope, ledger.NewAccount{Name: "Checking", Currency: "EUR", Kind: core.Asset})
	if err != nil {
		t.Fatal(err)
	}
	sav, err := l.OpenAccount(ctx, scope, ledger.NewAccount{Name: "Savings", Currency: "EUR", Kind: core.Asset})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := cats.Create(ctx, scope, categories.NewCategory{Name: "Food", Type: core.ExpenseCategory})
	if err != nil {
		t.Fatal(err)
	}
	events.drain()

	sheet := sheetsmem.New()
	return &env{
		ledger: l, store: store, events: events, sheet: sheet,
		worker:  NewExportWorker(store, sheet),
		account: acc, savings: sav, category: cat,
	}
}

func (e *env) deliver(t *testing.T) {
	t.Helper()
	for _, ev := range e.events.drain() {
		if err := e.worker.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("HandleEvent(%s) error = %v", ev.Type, err)
		}
	}
}

func (e *env) rows(t *testing.T) []sheets.Row {
	t.Helper()
	rows, err := e.sheet.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestExportWorker_TransactionLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr, err := e.ledger.CreateTransaction(ctx, scope, ledger.NewTransaction{
		AccountID:   e.account.ID,
		CategoryID:  e.category.ID,
		Amount:      decimal.NewFromInt(12),
		Date:        core.NewDate(2026, 5, 1),
		Description: "Lunch",
	})
	if err != nil {
		t.Fatal(err)
	}
	e.deliver(t)

	row, ok := e.sheet.Get(tr.ID)
	if !ok {
		t.Fatal("created transaction was not exported")
	}
	if !row.Amount.Equal(decimal.NewFromInt(-12)) || row.Kind != sheets.KindTransaction {
		t.Errorf("row = %+v, want amount -12 kind transaction", row)
	}

	desc := "Dinner"
	if _, err := e.ledger.UpdateTransaction(ctx, scope, tr.ID, ledger.TransactionPatch{Description: &desc}); err != nil {
		t.Fatal(err)
	}
	e.deliver(t)
	if row, _ := e.sheet.Get(tr.ID); row.Description != "Dinner" {
		t.Errorf("description = %q, want Dinner", row.Description)
	}
	if got := len(e.rows(t)); got != 1 {
		t.Errorf("rows = %d, want 1 after update", got)
	}

	if _, err := e.ledger.DeleteTransaction(ctx, scope, tr.ID); err != nil {
		t.Fatal(err)
	}
	e.deliver(t)
	if _, ok := e.sheet.Get(tr.ID); ok {
		t.Error("deleted transaction still exported")
	}
}

func TestExportWorker_TransferExportsBothLegs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.ledger.CreateTransfer(ctx, scope, ledger.NewTransfer{
		FromAccountID: e.account.ID,
		ToAccountID:   e.savings.ID,
		Amount:        decimal.NewFromInt(100),
		Date:          core.NewDate(2026, 5, 1),
		Description:   "Save",
	})
	if err != nil {
		t.Fatal(err)
	}
	e.deliver(t)

	rows := e.rows(t)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 legs", len(rows))
	}
	for _, r := range rows {
		if r.Kind != sheets.KindTransfer {
			t.Errorf("row %s kind = %s, want transfer", r.TransactionID, r.Kind)
		}
	}

	if err := e.ledger.DeleteTransfer(ctx, scope, out.ID); err != nil {
		t.Fatal(err)
	}
	e.deliver(t)
	if got := len(e.rows(t)); got != 0 {
		t.Errorf("rows = %d, want 0 after transfer delete", got)
	}
}

func TestExportWorker_LateEventRemovesVanishedRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr, err := e.ledger.CreateTransaction(ctx, scope, ledger.NewTransaction{
		AccountID:   e.account.ID,
		Amount:      decimal.NewFromInt(5),
		Date:        core.NewDate(2026, 5, 1),
		Description: "Tip",
	})
	if err != nil {
		t.Fatal(err)
	}
	created := e.events.drain()
	if _, err := e.sheet.Upsert(ctx, sheets.RowFromTransaction(tr)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ledger.DeleteTransaction(ctx, scope, tr.ID); err != nil {
		t.Fatal(err)
	}
	e.events.drain()

	// the creation event arrives after the delete committed
	for _, ev := range created {
		if err := e.worker.HandleEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := e.sheet.Get(tr.ID); ok {
		t.Error("stale creation event resurrected a deleted transaction")
	}
}

type failingExporter struct{ sheets.Exporter }

func (failingExporter) Upsert(context.Context, sheets.Row) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestExportWorker_PropagatesExporterErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.ledger.CreateTransaction(ctx, scope, ledger.NewTransaction{
		AccountID:   e.account.ID,
		Amount:      decimal.NewFromInt(5),
		Date:        core.NewDate(2026, 5, 1),
		Description: "Tip",
	}); err != nil {
		t.Fatal(err)
	}
	w := NewExportWorker(e.store, failingExporter{e.sheet})
	for _, ev := range e.events.drain() {
		if err := w.HandleEvent(ctx, ev); err == nil {
			t.Error("HandleEvent() error = nil, want exporter failure")
		}
	}
}

func TestExportWorker_Backfill(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		if _, err := e.ledger.CreateTransaction(ctx, scope, ledger.NewTransaction{
			AccountID:   e.account.ID,
			CategoryID:  e.category.ID,
			Amount:      decimal.NewFromInt(int64(day)),
			Date:        core.NewDate(2026, 4, day),
			Description: "Coffee",
		}); err != nil {
			t.Fatal(err)
		}
	}
	e.events.drain()

	n, err := e.worker.Backfill(ctx, scope, core.NewDate(2026, 4, 2), core.NewDate(2026, 5, 1))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(e.rows(t)) != 2 {
		t.Errorf("Backfill() = %d rows %d, want 2 and 2", n, len(e.rows(t)))
	}
}
