package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/shopspring/decimal"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

type NewAccount struct {
	Name           string
	Currency       string
	Kind           core.AccountKind
	OpeningBalance decimal.Decimal
	OpeningDate    core.Date
}

func (n NewAccount) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: empty account name", core.ErrValidation)
	}
	if !currencyCode.MatchString(n.Currency) {
		return core.ErrInvalidCurrency
	}
	if !n.Kind.Valid() {
		return core.ErrInvalidKind
	}
	return nil
}

// OpenAccount creates an account with a zero balance. A non-zero opening
// balance is booked as an uncategorized transaction in the same unit.
func (c *Coordinator) OpenAccount(ctx context.Context, scope core.Scope, in NewAccount) (core.Account, error) {
	if err := in.Validate(); err != nil {
		return core.Account{}, err
	}
	opening := core.Normalize(in.OpeningBalance)
	date := in.OpeningDate
	if date.IsZero() {
		date = c.Today()
	}

	var out core.Account
	err := c.Atomic(ctx, scope, func(u *Unit) error {
		a := core.Account{
			ID:        c.newID(),
			Scope:     scope,
			Name:      strings.TrimSpace(in.Name),
			Currency:  in.Currency,
			Kind:      in.Kind,
			Balance:   decimal.Zero,
			CreatedAt: c.now().UTC(),
		}
		if err := u.tx.InsertAccount(ctx, a); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if !opening.IsZero() {
			if _, err := u.CreateTransaction(ctx, NewTransaction{
				AccountID:   a.ID,
				Amount:      opening,
				Date:        date,
				Description: "Opening balance",
			}); err != nil {
				return err
			}
		}
		var err error
		out, err = u.tx.GetAccount(ctx, scope, a.ID)
		return err
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("open account: %w", err)
	}
	slog.InfoContext(ctx, "Account opened", "account_id", out.ID, "balance", out.Balance.String())
	return out, nil
}

func (c *Coordinator) GetAccount(ctx context.Context, scope core.Scope, id string) (core.Account, error) {
	var out core.Account
	err := c.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetAccount(ctx, scope, id)
		return err
	})
	return out, err
}

func (c *Coordinator) ListAccounts(ctx context.Context, scope core.Scope) ([]core.Account, error) {
	var out []core.Account
	err := c.View(ctx, scope, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListAccounts(ctx, scope)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

// BalanceCheck compares the materialized balance to the sum of the live
// transactions of an account.
type BalanceCheck struct {
	AccountID  string          `json:"accountId"`
	Stored     decimal.Decimal `json:"stored"`
	Computed   decimal.Decimal `json:"computed"`
	Consistent bool            `json:"consistent"`
}

// RecomputeBalance sums the account's transactions from scratch. It never
// writes the balance.
func (c *Coordinator) RecomputeBalance(ctx context.Context, scope core.Scope, accountID string) (BalanceCheck, error) {
	var out BalanceCheck
	err := c.View(ctx, scope, func(tx storage.Tx) error {
		a, err := tx.GetAccount(ctx, scope, accountID)
		if err != nil {
			return err
		}
		list, err := tx.ListTransactions(ctx, scope, storage.TransactionFilter{AccountID: accountID})
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, t := range list {
			sum = sum.Add(t.Amount)
		}
		out = BalanceCheck{
			AccountID:  accountID,
			Stored:     a.Balance,
			Computed:   sum,
			Consistent: a.Balance.Equal(sum),
		}
		return nil
	})
	if err != nil {
		return BalanceCheck{}, fmt.Errorf("recompute balance: %w", err)
	}
	if !out.Consistent {
		slog.ErrorContext(ctx, "Account balance drifted",
			"account_id", accountID, "stored", out.Stored.String(), "computed", out.Computed.String())
	}
	return out, nil
}
