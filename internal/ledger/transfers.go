package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// NewTransfer moves a positive Amount from one account to another.
type NewTransfer struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Date          core.Date
	Description   string
	Notes         string
}

func (n NewTransfer) Validate() error {
	if strings.TrimSpace(n.FromAccountID) == "" || strings.TrimSpace(n.ToAccountID) == "" {
		return core.ErrEmptyAccount
	}
	if !n.Amount.IsPositive() {
		return core.ErrInvalidAmount
	}
	if err := n.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(n.Description) == "" {
		return core.ErrEmptyDescription
	}
	if n.FromAccountID == n.ToAccountID {
		return core.ErrSameAccountTransfer
	}
	return nil
}

// TransferPatch changes either side or the shared fields of a transfer.
type TransferPatch struct {
	FromAccountID *string
	ToAccountID   *string
	Amount        *decimal.Decimal
	Date          *core.Date
	Description   *string
	Notes         *string
}

func (p TransferPatch) Validate() error {
	if p.FromAccountID == nil && p.ToAccountID == nil && p.Amount == nil &&
		p.Date == nil && p.Description == nil && p.Notes == nil {
		return core.ErrEmptyPatch
	}
	if (p.FromAccountID != nil && strings.TrimSpace(*p.FromAccountID) == "") ||
		(p.ToAccountID != nil && strings.TrimSpace(*p.ToAccountID) == "") {
		return core.ErrEmptyAccount
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
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

// CreateTransfer writes both legs and returns the destination leg.
func (u *Unit) CreateTransfer(ctx context.Context, in NewTransfer) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	for _, id := range []string{in.FromAccountID, in.ToAccountID} {
		if _, err := u.tx.GetAccount(ctx, u.scope, id); err != nil {
			return core.Transaction{}, err
		}
	}

	amount := core.Normalize(in.Amount)
	now := u.c.now().UTC()
	leg := func(account string, signed decimal.Decimal) core.Transaction {
		return core.Transaction{
			ID:          u.c.newID(),
			Scope:       u.scope,
			AccountID:   account,
			Amount:      signed,
			Date:        in.Date,
			Description: strings.TrimSpace(in.Description),
			Notes:       in.Notes,
			IsTransfer:  true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	origin := leg(in.FromAccountID, amount.Neg())
	dest := leg(in.ToAccountID, amount)
	origin.TransferID, dest.TransferID = dest.ID, origin.ID

	for _, t := range []core.Transaction{origin, dest} {
		if err := u.tx.InsertTransaction(ctx, t); err != nil {
			return core.Transaction{}, fmt.Errorf("save transfer leg: %w", err)
		}
		if err := u.adjust(ctx, t.AccountID, t.Amount); err != nil {
			return core.Transaction{}, err
		}
	}

	u.Record(TransferCreated, Event{TransactionIDs: []string{origin.ID, dest.ID}, Date: in.Date})
	return dest, nil
}

// legs loads the transfer that id belongs to as (debit, credit).
func (u *Unit) legs(ctx context.Context, id string) (core.Transaction, core.Transaction, error) {
	t, err := u.tx.GetTransaction(ctx, u.scope, id)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	if !t.IsTransfer || t.TransferID == "" {
		return core.Transaction{}, core.Transaction{}, core.ErrNotATransfer
	}
	sibling, err := u.tx.GetTransaction(ctx, u.scope, t.TransferID)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, fmt.Errorf("load sibling leg: %w", err)
	}
	if t.Amount.IsNegative() {
		return t, sibling, nil
	}
	return sibling, t, nil
}

// UpdateTransfer rewrites both legs and returns the leg whose id was given.
func (u *Unit) UpdateTransfer(ctx context.Context, id string, p TransferPatch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	debit, credit, err := u.legs(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	from, to := debit.AccountID, credit.AccountID
	if p.FromAccountID != nil {
		from = *p.FromAccountID
	}
	if p.ToAccountID != nil {
		to = *p.ToAccountID
	}
	if from == to {
		return core.Transaction{}, core.ErrSameAccountTransfer
	}
	amount := credit.Amount
	if p.Amount != nil {
		amount = core.Normalize(*p.Amount)
	}

	// Reverse both old legs, then apply both new ones.
	if err := u.adjust(ctx, debit.AccountID, debit.Amount.Neg()); err != nil {
		return core.Transaction{}, err
	}
	if err := u.adjust(ctx, credit.AccountID, credit.Amount.Neg()); err != nil {
		return core.Transaction{}, err
	}

	now := u.c.now().UTC()
	debit.AccountID, debit.Amount = from, amount.Neg()
	credit.AccountID, credit.Amount = to, amount
	for _, leg := range []*core.Transaction{&debit, &credit} {
		if p.Date != nil {
			leg.Date = *p.Date
		}
		if p.Description != nil {
			leg.Description = strings.TrimSpace(*p.Description)
		}
		if p.Notes != nil {
			leg.Notes = *p.Notes
		}
		leg.UpdatedAt = now
		if err := u.adjust(ctx, leg.AccountID, leg.Amount); err != nil {
			return core.Transaction{}, err
		}
		if err := u.tx.UpdateTransaction(ctx, *leg); err != nil {
			return core.Transaction{}, fmt.Errorf("save transfer leg: %w", err)
		}
	}

	u.Record(TransferUpdated, Event{TransactionIDs: []string{debit.ID, credit.ID}, Date: credit.Date})
	if debit.ID == id {
		return debit, nil
	}
	return credit, nil
}

// DeleteTransfer reverses and removes both legs. It returns the leg whose id
// was given.
func (u *Unit) DeleteTransfer(ctx context.Context, id string) (core.Transaction, error) {
	debit, credit, err := u.legs(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, leg := range []core.Transaction{debit, credit} {
		if err := u.adjust(ctx, leg.AccountID, leg.Amount.Neg()); err != nil {
			return core.Transaction{}, err
		}
		if err := u.tx.DeleteTransaction(ctx, u.scope, leg.ID); err != nil {
			return core.Transaction{}, fmt.Errorf("delete transfer leg: %w", err)
		}
	}

	u.Record(TransferDeleted, Event{TransactionIDs: []string{debit.ID, credit.ID}, Date: credit.Date})
	if debit.ID == id {
		return debit, nil
	}
	return credit, nil
}

func (c *Coordinator) CreateTransfer(ctx context.Context, scope core.Scope, in NewTransfer) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		var err error
		out, err = u.CreateTransfer(ctx, in)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer created",
		"transfer_id", out.TransferID, "from_account", in.FromAccountID, "to_account", in.ToAccountID)
	return out, nil
}

func (c *Coordinator) UpdateTransfer(ctx context.Context, scope core.Scope, id string, p TransferPatch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		var err error
		out, err = u.UpdateTransfer(ctx, id, p)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transfer: %w", err)
	}
	return out, nil
}

func (c *Coordinator) DeleteTransfer(ctx context.Context, scope core.Scope, id string) error {
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		_, err := u.DeleteTransfer(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	slog.InfoContext(ctx, "Transfer deleted", "transaction_id", id)
	return nil
}
