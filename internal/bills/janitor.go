package bills

import (
	"context"
	"fmt"
	"log/slog"

	"conti/internal/core"
	"conti/internal/storage"
)

// SweepOrphans removes overrides that no segment of their bill reaches any
// more. PAID overrides are kept so their payment stays traceable. It returns
// the number of overrides removed.
func SweepOrphans(ctx context.Context, store storage.Store) (int, error) {
	removed := 0
	err := store.Atomic(ctx, func(tx storage.Tx) error {
		removed = 0
		bills, err := tx.AllBills(ctx)
		if err != nil {
			return fmt.Errorf("list bills: %w", err)
		}
		for _, b := range bills {
			overrides, err := tx.ListOverrides(ctx, b.Scope, b.ID, core.Date{}, core.Date{})
			if err != nil {
				return fmt.Errorf("list overrides of %s: %w", b.ID, err)
			}
			for _, o := range overrides {
				if o.Status == core.Paid || Reachable(b, o.Date) {
					continue
				}
				if err := tx.DeleteOverride(ctx, b.Scope, b.ID, o.Date); err != nil {
					return fmt.Errorf("delete override: %w", err)
				}
				removed++
				slog.DebugContext(ctx, "Orphaned override removed", "bill_id", b.ID, "occurrence_date", o.Date.String())
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep orphaned overrides: %w", err)
	}
	if removed > 0 {
		slog.InfoContext(ctx, "Orphaned overrides removed", "count", removed)
	}
	return removed, nil
}
