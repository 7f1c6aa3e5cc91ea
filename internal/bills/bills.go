// Package bills turns recurring bill definitions into virtual instances and
// applies edits, deletions and payments to them.
//
// A bill is stored as time-bounded segments plus per-date overrides. Future
// scoped changes split or cap segments; single scoped changes write one
// override. Payments go through the ledger in the same unit as the override
// they mark.
package bills

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// NewBill is the input of CreateBill. EndDate is the inclusive last day of
// the series; zero means open.
type NewBill struct {
	Name       string
	Amount     decimal.Decimal
	AccountID  string
	CategoryID string
	AnchorDate core.Date
	Cadence    core.Cadence
	EndDate    core.Date
}

func (n NewBill) snapshot() core.Snapshot {
	return core.Snapshot{
		Name:       strings.TrimSpace(n.Name),
		Amount:     core.Normalize(n.Amount),
		AccountID:  n.AccountID,
		CategoryID: n.CategoryID,
		Cadence:    n.Cadence,
	}
}

func (n NewBill) Validate() error {
	if err := n.snapshot().Validate(); err != nil {
		return err
	}
	if err := n.AnchorDate.Validate(); err != nil {
		return err
	}
	if !n.EndDate.IsZero() && n.EndDate.Before(n.AnchorDate) {
		return fmt.Errorf("%w: end date before anchor date", core.ErrValidation)
	}
	return nil
}

// EditResult is the bill after an edit and the edited instance, which is nil
// when the occurrence is suppressed.
type EditResult struct {
	Bill     core.Bill      `json:"bill"`
	Instance *core.Instance `json:"instance,omitempty"`
}

// Service runs bill operations through a ledger coordinator.
type Service struct {
	ledger      *ledger.Coordinator
	concurrency int
}

func NewService(l *ledger.Coordinator, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{ledger: l, concurrency: concurrency}
}

// checkRefs verifies that the account and category a snapshot points at exist.
func checkRefs(ctx context.Context, r ledger.Reader, scope core.Scope, accountID, categoryID string) error {
	if accountID != "" {
		if _, err := r.GetAccount(ctx, scope, accountID); err != nil {
			return err
		}
	}
	if categoryID != "" {
		if _, err := r.GetCategory(ctx, scope, categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateBill(ctx context.Context, scope core.Scope, in NewBill) (core.Bill, error) {
	if err := in.Validate(); err != nil {
		return core.Bill{}, err
	}

	var out core.Bill
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		if err := checkRefs(ctx, u.Reader(), scope, in.AccountID, in.CategoryID); err != nil {
			return err
		}
		billID := s.ledger.NewID()
		seg := core.Segment{
			ID:       s.ledger.NewID(),
			BillID:   billID,
			Start:    in.AnchorDate,
			Anchor:   in.AnchorDate,
			Snapshot: in.snapshot(),
		}
		if !in.EndDate.IsZero() {
			seg.End = in.EndDate.AddDays(1)
		}
		out = core.Bill{
			ID:         billID,
			Scope:      scope,
			AnchorDate: in.AnchorDate,
			Segments:   []core.Segment{seg},
			CreatedAt:  s.ledger.Now().UTC(),
		}
		return u.Bills().InsertBill(ctx, out)
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill created", "bill_id", out.ID, "cadence", in.Cadence, "anchor", in.AnchorDate.String())
	return out, nil
}

func (s *Service) GetBill(ctx context.Context, scope core.Scope, id string) (core.Bill, error) {
	var out core.Bill
	err := s.ledger.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetBill(ctx, scope, id)
		return err
	})
	return out, err
}

func (s *Service) ListBills(ctx context.Context, scope core.Scope) ([]core.Bill, error) {
	var out []core.Bill
	err := s.ledger.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListBills(ctx, scope)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return out, nil
}

// DeleteBill removes the series with its segments and overrides. Payment
// transactions stay in the ledger.
func (s *Service) DeleteBill(ctx context.Context, scope core.Scope, id string) error {
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		return u.Bills().DeleteBill(ctx, scope, id)
	})
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	slog.InfoContext(ctx, "Bill deleted", "bill_id", id)
	return nil
}

func validWindow(from, to core.Date) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	if !from.Before(to) {
		return core.ErrInvalidWindow
	}
	return nil
}

// Instances materializes one bill over [from, to).
func (s *Service) Instances(ctx context.Context, scope core.Scope, billID string, from, to core.Date) ([]core.Instance, error) {
	if err := validWindow(from, to); err != nil {
		return nil, err
	}
	var (
		bill      core.Bill
		overrides []core.Override
	)
	err := s.ledger.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		if bill, err = tx.GetBill(ctx, scope, billID); err != nil {
			return err
		}
		overrides, err = tx.ListOverrides(ctx, scope, billID, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load bill: %w", err)
	}
	return Materialize(bill, overrides, from, to)
}

// Instance resolves the single occurrence of billID on date.
func (s *Service) Instance(ctx context.Context, scope core.Scope, billID string, date core.Date) (core.Instance, error) {
	if err := date.Validate(); err != nil {
		return core.Instance{}, err
	}
	list, err := s.Instances(ctx, scope, billID, date, date.AddDays(1))
	if err != nil {
		return core.Instance{}, err
	}
	if len(list) == 0 {
		return core.Instance{}, core.ErrInstanceNotFound
	}
	return list[0], nil
}

// ListInstances materializes every bill of scope over [from, to), merged and
// sorted by date then bill.
func (s *Service) ListInstances(ctx context.Context, scope core.Scope, from, to core.Date) ([]core.Instance, error) {
	if err := validWindow(from, to); err != nil {
		return nil, err
	}

	var (
		bills     []core.Bill
		overrides [][]core.Override
	)
	err := s.ledger.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		if bills, err = tx.ListBills(ctx, scope); err != nil {
			return err
		}
		overrides = make([][]core.Override, len(bills))
		for i, b := range bills {
			if overrides[i], err = tx.ListOverrides(ctx, scope, b.ID, from, to); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load bills: %w", err)
	}

	results := make([][]core.Instance, len(bills))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range bills {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			list, err := Materialize(bills[i], overrides[i], from, to)
			if err != nil {
				return fmt.Errorf("materialize bill %s: %w", bills[i].ID, err)
			}
			results[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []core.Instance
	for _, list := range results {
		out = append(out, list...)
	}
	sortInstances(out)
	return out, nil
}

func sortInstances(list []core.Instance) {
	slices.SortFunc(list, func(a, b core.Instance) int {
		return cmp.Or(a.Date.Compare(b.Date.Time), cmp.Compare(a.BillID, b.BillID))
	})
}
