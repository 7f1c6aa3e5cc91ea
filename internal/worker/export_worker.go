// Package worker mirrors committed ledger changes into the spreadsheet export
// and runs the periodic maintenance jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/sheets"
	"conti/internal/storage"
)

// ExportWorker applies ledger events to a sheets exporter. Transactions are
// reloaded from the store so a late or duplicated event converges on the
// current state.
type ExportWorker struct {
	store    storage.Store
	exporter sheets.Exporter
}

func NewExportWorker(store storage.Store, exporter sheets.Exporter) *ExportWorker {
	return &ExportWorker{store: store, exporter: exporter}
}

// HandleEvent is the consumer callback for one ledger event.
func (w *ExportWorker) HandleEvent(ctx context.Context, e ledger.Event) error {
	slog.DebugContext(ctx, "Processing ledger event", "type", e.Type, "transaction_ids", e.TransactionIDs)

	if e.Removed() {
		for _, id := range e.TransactionIDs {
			if err := w.exporter.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete row %s: %w", id, err)
			}
		}
		slog.InfoContext(ctx, "Removed exported rows", "type", e.Type, "count", len(e.TransactionIDs))
		return nil
	}

	scope := e.Scope()
	current := make([]core.Transaction, 0, len(e.TransactionIDs))
	var gone []string
	err := w.store.View(ctx, func(tx storage.Tx) error {
		for _, id := range e.TransactionIDs {
			t, err := tx.GetTransaction(ctx, scope, id)
			if errors.Is(err, core.ErrNotFound) {
				gone = append(gone, id)
				continue
			}
			if err != nil {
				return err
			}
			current = append(current, t)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	for _, t := range current {
		ref, err := w.exporter.Upsert(ctx, sheets.RowFromTransaction(t))
		if err != nil {
			return fmt.Errorf("export transaction %s: %w", t.ID, err)
		}
		slog.DebugContext(ctx, "Exported transaction", "transaction_id", t.ID, "sheets_ref", ref)
	}
	// deleted after the event was published
	for _, id := range gone {
		if err := w.exporter.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete row %s: %w", id, err)
		}
	}

	slog.InfoContext(ctx, "Exported ledger event",
		"type", e.Type, "exported", len(current), "removed", len(gone))
	return nil
}

// Backfill exports every transaction of scope dated inside [from, to).
// It recovers rows lost while the consumer was down.
func (w *ExportWorker) Backfill(ctx context.Context, scope core.Scope, from, to core.Date) (int, error) {
	var list []core.Transaction
	err := w.store.View(ctx, func(tx storage.Tx) error {
		var err error
		list, err = tx.ListTransactions(ctx, scope, storage.TransactionFilter{From: from, To: to})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	exported, failed := 0, 0
	for _, t := range list {
		if _, err := w.exporter.Upsert(ctx, sheets.RowFromTransaction(t)); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during backfill", "transaction_id", t.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Backfill completed",
		"total", len(list),
		"exported", exported,
		"errors", failed)
	if failed > 0 {
		return exported, fmt.Errorf("backfill: %d of %d transactions failed", failed, len(list))
	}
	return exported, nil
}
