package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// NewTransaction is the input of CreateTransaction. With a category the
// amount sign is taken from the category type; without one Amount is used as
// a raw signed value.
type NewTransaction struct {
	AccountID   string
	CategoryID  string
	Amount      decimal.Decimal
	Date        core.Date
	Description string
	Notes       string
	BillRef     *core.BillRef
}

func (n NewTransaction) Validate() error {
	if strings.TrimSpace(n.AccountID) == "" {
		return core.ErrEmptyAccount
	}
	if n.Amount.IsZero() {
		return core.ErrInvalidAmount
	}
	if err := n.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(n.Description) == "" {
		return core.ErrEmptyDescription
	}
	return nil
}

// TransactionPatch changes a subset of a transaction's fields.
type TransactionPatch struct {
	AccountID   *string
	CategoryID  *string
	Amount      *decimal.Decimal
	Date        *core.Date
	Description *string
	Notes       *string
}

func (p TransactionPatch) IsEmpty() bool {
	return p.AccountID == nil && p.CategoryID == nil && p.Amount == nil &&
		p.Date == nil && p.Description == nil && p.Notes == nil
}

func (p TransactionPatch) Validate() error {
	if p.IsEmpty() {
		return core.ErrEmptyPatch
	}
	if p.AccountID != nil && strings.TrimSpace(*p.AccountID) == "" {
		return core.ErrEmptyAccount
	}
	if p.CategoryID != nil && strings.TrimSpace(*p.CategoryID) == "" {
		return core.ErrEmptyCategory
	}
	if p.Amount != nil && p.Amount.IsZero() {
		return core.ErrInvalidAmount
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return err
		}
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return core.ErrEmptyDescription
	}
	return nil
}

// signed resolves the stored amount for a magnitude under an optional
// category.
func (u *Unit) signed(ctx context.Context, categoryID string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = core.Normalize(amount)
	if categoryID == "" {
		return amount, nil
	}
	cat, err := u.c.categories.FindByID(ctx, u.tx, u.scope, categoryID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve category: %w", err)
	}
	return cat.Type.Signed(amount), nil
}

func (u *Unit) CreateTransaction(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	amount, err := u.signed(ctx, in.CategoryID, in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, err := u.tx.GetAccount(ctx, u.scope, in.AccountID); err != nil {
		return core.Transaction{}, err
	}

	now := u.c.now().UTC()
	t := core.Transaction{
		ID:          u.c.newID(),
		Scope:       u.scope,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      amount,
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
		Notes:       in.Notes,
		BillRef:     in.BillRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.tx.InsertTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	if err := u.adjust(ctx, t.AccountID, t.Amount); err != nil {
		return core.Transaction{}, err
	}

	slog.DebugContext(ctx, "Transaction created",
		"transaction_id", t.ID, "account_id", t.AccountID, "amount", t.Amount.String())
	u.Record(TransactionCreated, Event{TransactionIDs: []string{t.ID}, Date: t.Date})
	return t, nil
}

func (u *Unit) UpdateTransaction(ctx context.Context, id string, p TransactionPatch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	old, err := u.tx.GetTransaction(ctx, u.scope, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if old.IsTransfer {
		return core.Transaction{}, core.ErrTransferLeg
	}

	next := old
	if p.CategoryID != nil {
		next.CategoryID = *p.CategoryID
	}
	magnitude := old.Amount
	if p.Amount != nil {
		magnitude = *p.Amount
	}
	if next.Amount, err = u.signed(ctx, next.CategoryID, magnitude); err != nil {
		return core.Transaction{}, err
	}
	if p.AccountID != nil {
		next.AccountID = *p.AccountID
	}
	if p.Date != nil {
		next.Date = *p.Date
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	next.UpdatedAt = u.c.now().UTC()

	if next.AccountID != old.AccountID {
		if _, err := u.tx.GetAccount(ctx, u.scope, next.AccountID); err != nil {
			return core.Transaction{}, err
		}
		if err := u.adjust(ctx, old.AccountID, old.Amount.Neg()); err != nil {
			return core.Transaction{}, err
		}
		if err := u.adjust(ctx, next.AccountID, next.Amount); err != nil {
			return core.Transaction{}, err
		}
	} else if err := u.adjust(ctx, next.AccountID, next.Amount.Sub(old.Amount)); err != nil {
		return core.Transaction{}, err
	}

	if err := u.tx.UpdateTransaction(ctx, next); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	u.Record(TransactionUpdated, Event{TransactionIDs: []string{next.ID}, Date: next.Date})
	return next, nil
}

// DeleteTransaction reverses the transaction's balance effect and removes it.
// A bill payment also loses its PAID marker in the same unit.
func (u *Unit) DeleteTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := u.tx.GetTransaction(ctx, u.scope, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.IsTransfer {
		return core.Transaction{}, core.ErrTransferLeg
	}
	if err := u.adjust(ctx, t.AccountID, t.Amount.Neg()); err != nil {
		return core.Transaction{}, err
	}
	if err := u.tx.DeleteTransaction(ctx, u.scope, id); err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if t.BillRef != nil {
		if err := u.clearPayment(ctx, *t.BillRef, t.ID); err != nil {
			return core.Transaction{}, err
		}
	}
	u.Record(TransactionDeleted, Event{TransactionIDs: []string{t.ID}, Date: t.Date})
	return t, nil
}

// ReleasePayment resets the override paid by transactionID without touching
// balances. It repairs a PAID marker whose transaction no longer exists.
func (u *Unit) ReleasePayment(ctx context.Context, ref core.BillRef, transactionID string) error {
	return u.clearPayment(ctx, ref, transactionID)
}

// clearPayment resets the override paid by transactionID back to PENDING.
func (u *Unit) clearPayment(ctx context.Context, ref core.BillRef, transactionID string) error {
	o, ok, err := u.tx.GetOverride(ctx, u.scope, ref.BillID, ref.Date)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bill override: %w", err)
	}
	if !ok || o.Status != core.Paid || o.TransactionID != transactionID {
		return nil
	}

	o.Status = core.Pending
	o.TransactionID = ""
	o.PaidDate = core.Date{}
	if o.Fields.IsEmpty() && !o.Deleted {
		err = u.tx.DeleteOverride(ctx, u.scope, ref.BillID, ref.Date)
	} else {
		err = u.tx.UpsertOverride(ctx, u.scope, o)
	}
	if err != nil {
		return fmt.Errorf("clear bill payment: %w", err)
	}
	return nil
}

func (c *Coordinator) CreateTransaction(ctx context.Context, scope core.Scope, in NewTransaction) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		var err error
		out, err = u.CreateTransaction(ctx, in)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction created", "transaction_id", out.ID, "account_id", out.AccountID)
	return out, nil
}

func (c *Coordinator) UpdateTransaction(ctx context.Context, scope core.Scope, id string, p TransactionPatch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		var err error
		out, err = u.UpdateTransaction(ctx, id, p)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction updated", "transaction_id", out.ID)
	return out, nil
}

func (c *Coordinator) DeleteTransaction(ctx context.Context, scope core.Scope, id string) (core.Transaction, error) {
	var out core.Transaction
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		var err error
		out, err = u.DeleteTransaction(ctx, id)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", out.ID)
	return out, nil
}
