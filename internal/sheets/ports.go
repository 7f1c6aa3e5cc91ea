// Package sheets defines the spreadsheet export ports and the row shape the
// worker mirrors transactions into.
package sheets

import (
	"context"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// Row kinds.
const (
	KindTransaction = "transaction"
	KindTransfer    = "transfer"
	KindBill        = "bill"
)

// Row is one exported transaction. TransactionID is the row key.
type Row struct {
	TransactionID string
	Date          core.Date
	Description   string
	Amount        decimal.Decimal
	AccountID     string
	CategoryID    string
	Kind          string
}

// RowFromTransaction projects a stored transaction onto the export row.
func RowFromTransaction(t core.Transaction) Row {
	kind := KindTransaction
	switch {
	case t.IsTransfer:
		kind = KindTransfer
	case t.BillRef != nil:
		kind = KindBill
	}
	return Row{
		TransactionID: t.ID,
		Date:          t.Date,
		Description:   t.Description,
		Amount:        t.Amount,
		AccountID:     t.AccountID,
		CategoryID:    t.CategoryID,
		Kind:          kind,
	}
}

// Ports for outbound adapters.
type (
	RowWriter interface {
		// Upsert writes r over the row with the same transaction ID, or
		// appends it. It returns a reference to the written row.
		Upsert(ctx context.Context, r Row) (rowRef string, err error)
	}

	RowDeleter interface {
		// Delete clears the row of transactionID. A missing row is not an error.
		Delete(ctx context.Context, transactionID string) error
	}

	RowLister interface {
		List(ctx context.Context) ([]Row, error)
	}

	Exporter interface {
		RowWriter
		RowDeleter
	}
)
