// Package ledger is the only writer of transactions and account balances.
//
// Every mutation runs inside a Unit opened by Coordinator.Atomic. A unit
// writes the transaction records and applies the matching balance deltas in
// one storage unit of work, so a failure at any step leaves no partial effect.
// Transient storage conflicts are retried a bounded number of times before the
// caller sees core.ErrAtomicity.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Categories resolves categories through the reader of the current unit.
type Categories interface {
	FindByID(ctx context.Context, r storage.CategoryTx, scope core.Scope, id string) (core.Category, error)
	ExpandWithDescendants(ctx context.Context, r storage.CategoryTx, scope core.Scope, ids []string) ([]string, error)
}

// Coordinator opens ledger units against a store.
type Coordinator struct {
	store      storage.Store
	categories Categories
	events     EventPublisher
	now        func() time.Time
	newID      func() string
	maxRetries int
	backoff    time.Duration
}

type Option func(*Coordinator)

// WithEvents publishes committed ledger events. A nil publisher disables them.
func WithEvents(p EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithRetries sets how many times a busy unit is retried and the base backoff
// between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Coordinator) {
		c.maxRetries = n
		c.backoff = backoff
	}
}

func New(store storage.Store, categories Categories, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		categories: categories,
		now:        time.Now,
		newID:      uuid.NewString,
		maxRetries: 3,
		backoff:    20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the coordinator clock.
func (c *Coordinator) Now() time.Time { return c.now() }

// Today returns the current calendar date.
func (c *Coordinator) Today() core.Date { return core.DateOf(c.now().UTC()) }

// NewID returns a fresh identifier.
func (c *Coordinator) NewID() string { return c.newID() }

// Atomic runs fn inside one unit of work for scope. fn may run more than once
// when the store reports a transient conflict, so it must not keep state
// outside the unit between attempts. Events recorded by the unit are
// published only after the commit.
func (c *Coordinator) Atomic(ctx context.Context, scope core.Scope, fn func(u *Unit) error) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	var committed []Event
	attempt := func() error {
		return c.store.Atomic(ctx, func(tx storage.Tx) error {
			u := &Unit{c: c, tx: tx, scope: scope}
			if err := fn(u); err != nil {
				return err
			}
			committed = u.events
			return nil
		})
	}

	var err error
	for i := 0; ; i++ {
		err = attempt()
		if err == nil || !errors.Is(err, storage.ErrBusy) {
			break
		}
		if i >= c.maxRetries {
			slog.WarnContext(ctx, "Ledger unit gave up after retries", "attempts", i+1, "error", err)
			return fmt.Errorf("%w: %w", core.ErrAtomicity, err)
		}
		wait := c.backoff << i
		slog.DebugContext(ctx, "Ledger unit busy, retrying", "attempt", i+1, "wait", wait)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", core.ErrAtomicity, ctx.Err())
		case <-time.After(wait):
		}
	}
	if err != nil {
		return err
	}

	c.publish(ctx, committed)
	return nil
}

// View runs a read-only unit.
func (c *Coordinator) View(ctx context.Context, scope core.Scope, fn func(tx storage.Tx) error) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return c.store.View(ctx, fn)
}

func (c *Coordinator) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if c.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping ledger events", "count", len(events))
		return
	}
	for _, e := range events {
		if err := c.events.PublishLedgerEvent(ctx, e); err != nil {
			// The unit is already committed.
			slog.ErrorContext(ctx, "Failed to publish ledger event", "type", e.Type, "error", err)
		}
	}
}

// Unit is the handle of one atomic ledger operation. It is only valid inside
// the function passed to Coordinator.Atomic.
type Unit struct {
	c      *Coordinator
	tx     storage.Tx
	scope  core.Scope
	events []Event
}

func (u *Unit) Scope() core.Scope { return u.scope }

// Bills exposes bill persistence inside the unit. Balances are not reachable
// from it.
func (u *Unit) Bills() storage.BillTx { return u.tx }

// Reader exposes the read side of the unit.
func (u *Unit) Reader() Reader { return u.tx }

// Record queues an event for publication after commit.
func (u *Unit) Record(t EventType, e Event) {
	e.Type = t
	e.UserID = u.scope.UserID
	e.WorkspaceID = u.scope.WorkspaceID
	e.OccurredAt = u.c.now().UTC()
	u.events = append(u.events, e)
}

// Reader is the read-only projection of ledger state.
type Reader interface {
	GetAccount(ctx context.Context, scope core.Scope, id string) (core.Account, error)
	ListAccounts(ctx context.Context, scope core.Scope) ([]core.Account, error)
	GetCategory(ctx context.Context, scope core.Scope, id string) (core.Category, error)
	GetTransaction(ctx context.Context, scope core.Scope, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, scope core.Scope, f storage.TransactionFilter) ([]core.Transaction, error)
}

func (u *Unit) adjust(ctx context.Context, accountID string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	if err := u.tx.AdjustBalance(ctx, u.scope, accountID, delta); err != nil {
		return fmt.Errorf("adjust balance of %s: %w", accountID, err)
	}
	return nil
}
