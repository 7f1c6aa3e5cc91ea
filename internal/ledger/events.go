package ledger

import (
	"context"
	"time"

	"conti/internal/core"
)

type EventType string

const (
	TransactionCreated EventType = "transaction.created"
	TransactionUpdated EventType = "transaction.updated"
	TransactionDeleted EventType = "transaction.deleted"
	TransferCreated    EventType = "transfer.created"
	TransferUpdated    EventType = "transfer.updated"
	TransferDeleted    EventType = "transfer.deleted"
	BillPaid           EventType = "bill.paid"
	BillUnpaid         EventType = "bill.unpaid"
)

// Event describes one committed ledger change. Consumers load current state
// from the store by TransactionIDs rather than trusting a payload copy.
type Event struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"userId"`
	WorkspaceID    string    `json:"workspaceId,omitempty"`
	TransactionIDs []string  `json:"transactionIds,omitempty"`
	BillID         string    `json:"billId,omitempty"`
	Date           core.Date `json:"date"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Scope returns the tenancy the event belongs to.
func (e Event) Scope() core.Scope {
	return core.Scope{UserID: e.UserID, WorkspaceID: e.WorkspaceID}
}

// Removed reports whether the event deletes its transactions.
func (e Event) Removed() bool {
	return e.Type == TransactionDeleted || e.Type == TransferDeleted
}

type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, e Event) error
}
