// Package storage defines the persistence ports shared by the ledger and the
// bill services, plus the sqlite and memory backends that implement them.
package storage

import (
	"context"
	"errors"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// ErrBusy marks a transient write conflict. Callers may retry the whole unit.
var ErrBusy = errors.New("storage busy")

// Store opens units of work. Atomic commits every write made through the Tx
// or none of them. View runs a read-only unit; writes through its Tx fail.
type Store interface {
	Atomic(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the handle passed to a unit of work.
type Tx interface {
	AccountTx
	CategoryTx
	TransactionTx
	BillTx
	MaintenanceTx
}

// AccountTx has no absolute balance write. Balances move only by
// AdjustBalance, which the ledger coordinator calls alongside the transaction
// rows it writes.
type AccountTx interface {
	GetAccount(ctx context.Context, scope core.Scope, id string) (core.Account, error)
	ListAccounts(ctx context.Context, scope core.Scope) ([]core.Account, error)
	InsertAccount(ctx context.Context, a core.Account) error
	// AdjustBalance adds delta to the stored balance.
	AdjustBalance(ctx context.Context, scope core.Scope, id string, delta decimal.Decimal) error
}

type CategoryTx interface {
	GetCategory(ctx context.Context, scope core.Scope, id string) (core.Category, error)
	ListCategories(ctx context.Context, scope core.Scope) ([]core.Category, error)
	InsertCategory(ctx context.Context, c core.Category) error
}

// TransactionFilter narrows ListTransactions. Zero values do not filter.
// From is inclusive and To is exclusive.
type TransactionFilter struct {
	From        core.Date
	To          core.Date
	AccountID   string
	CategoryIDs []string
	TransferID  string
}

type TransactionTx interface {
	GetTransaction(ctx context.Context, scope core.Scope, id string) (core.Transaction, error)
	InsertTransaction(ctx context.Context, t core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, scope core.Scope, id string) error
	// ListTransactions returns matches ordered by date then creation time.
	ListTransactions(ctx context.Context, scope core.Scope, f TransactionFilter) ([]core.Transaction, error)
}

type BillTx interface {
	// GetBill loads the bill with its segments ordered by start date.
	GetBill(ctx context.Context, scope core.Scope, id string) (core.Bill, error)
	ListBills(ctx context.Context, scope core.Scope) ([]core.Bill, error)
	InsertBill(ctx context.Context, b core.Bill) error
	// DeleteBill removes the bill together with its segments and overrides.
	DeleteBill(ctx context.Context, scope core.Scope, id string) error
	ReplaceSegments(ctx context.Context, scope core.Scope, billID string, segments []core.Segment) error

	GetOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) (core.Override, bool, error)
	// ListOverrides returns the overrides dated inside [from, to). A zero
	// bound is unbounded.
	ListOverrides(ctx context.Context, scope core.Scope, billID string, from, to core.Date) ([]core.Override, error)
	UpsertOverride(ctx context.Context, scope core.Scope, o core.Override) error
	DeleteOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) error
	DeleteOverridesFrom(ctx context.Context, scope core.Scope, billID string, from core.Date) error
}

// MaintenanceTx crosses scopes. Only background jobs use it.
type MaintenanceTx interface {
	AllBills(ctx context.Context) ([]core.Bill, error)
}
