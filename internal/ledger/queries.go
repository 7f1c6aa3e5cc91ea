package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/shopspring/decimal"
)

// DefaultWindowDays is the trailing window used when a query has no bounds.
const DefaultWindowDays = 30

// Query filters transaction listings. From is inclusive and To exclusive.
// CategoryIDs match the listed categories and all their children.
type Query struct {
	From        core.Date
	To          core.Date
	AccountID   string
	CategoryIDs []string
}

func (q Query) Validate() error {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return core.ErrInvalidWindow
	}
	return nil
}

// window fills in the trailing default when neither bound is set. Today is
// included.
func (c *Coordinator) window(q Query) Query {
	if q.From.IsZero() && q.To.IsZero() {
		q.To = c.Today().AddDays(1)
		q.From = q.To.AddDays(-DefaultWindowDays)
	}
	return q
}

func (c *Coordinator) GetTransaction(ctx context.Context, scope core.Scope, id string) (core.Transaction, error) {
	var out core.Transaction
	err := c.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetTransaction(ctx, scope, id)
		return err
	})
	return out, err
}

// ListTransactions returns the matching transactions and the window that was
// applied.
func (c *Coordinator) ListTransactions(ctx context.Context, scope core.Scope, q Query) ([]core.Transaction, Query, error) {
	if err := q.Validate(); err != nil {
		return nil, q, err
	}
	q = c.window(q)

	var out []core.Transaction
	err := c.View(ctx, scope, func(tx storage.Tx) error {
		f := storage.TransactionFilter{From: q.From, To: q.To, AccountID: q.AccountID}
		if len(q.CategoryIDs) > 0 {
			ids, err := c.categories.ExpandWithDescendants(ctx, tx, scope, q.CategoryIDs)
			if err != nil {
				return err
			}
			f.CategoryIDs = ids
		}
		var err error
		out, err = tx.ListTransactions(ctx, scope, f)
		return err
	})
	if err != nil {
		return nil, q, fmt.Errorf("list transactions: %w", err)
	}
	return out, q, nil
}

// Summary totals the income and expense of a window. Transfers move money
// between accounts and count as neither.
func (c *Coordinator) Summary(ctx context.Context, scope core.Scope, q Query) (core.Summary, error) {
	list, q, err := c.ListTransactions(ctx, scope, q)
	if err != nil {
		return core.Summary{}, err
	}

	s := core.Summary{From: q.From, To: q.To, Income: decimal.Zero, Expense: decimal.Zero}
	byCategory := map[string]decimal.Decimal{}
	for _, t := range list {
		if t.IsTransfer {
			continue
		}
		if t.Amount.IsPositive() {
			s.Income = s.Income.Add(t.Amount)
		} else {
			s.Expense = s.Expense.Add(t.Amount.Abs())
		}
		if t.CategoryID != "" {
			byCategory[t.CategoryID] = byCategory[t.CategoryID].Add(t.Amount)
		}
	}
	s.Net = s.Income.Sub(s.Expense)

	for id, amount := range byCategory {
		s.ByCategory = append(s.ByCategory, core.CategoryAmount{CategoryID: id, Amount: amount})
	}
	slices.SortFunc(s.ByCategory, func(a, b core.CategoryAmount) int {
		return cmp.Or(a.Amount.Cmp(b.Amount), cmp.Compare(a.CategoryID, b.CategoryID))
	})
	return s, nil
}
