// Package memory is an in-process storage backend used by tests and local
// development. Atomic units run against a private copy of the state that
// replaces the live state only when the unit returns nil.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/shopspring/decimal"
)

var errReadOnly = errors.New("write in read-only unit")

type state struct {
	accounts     map[string]core.Account
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	bills        map[string]core.Bill
	segments     map[string][]core.Segment
	overrides    map[string]map[string]core.Override
}

func newState() *state {
	return &state{
		accounts:     map[string]core.Account{},
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		bills:        map[string]core.Bill{},
		segments:     map[string][]core.Segment{},
		overrides:    map[string]map[string]core.Override{},
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     maps.Clone(s.accounts),
		categories:   maps.Clone(s.categories),
		transactions: maps.Clone(s.transactions),
		bills:        maps.Clone(s.bills),
		segments:     make(map[string][]core.Segment, len(s.segments)),
		overrides:    make(map[string]map[string]core.Override, len(s.overrides)),
	}
	for id, segs := range s.segments {
		c.segments[id] = slices.Clone(segs)
	}
	for id, ovs := range s.overrides {
		c.overrides[id] = maps.Clone(ovs)
	}
	return c
}

// Store implements storage.Store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Atomic(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state, readOnly: true})
}

func (s *Store) Close() error { return nil }

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) GetAccount(_ context.Context, scope core.Scope, id string) (core.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok || a.Scope.Key() != scope.Key() {
		return core.Account{}, fmt.Errorf("%w %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

func (t *tx) ListAccounts(_ context.Context, scope core.Scope) ([]core.Account, error) {
	var out []core.Account
	for _, a := range t.st.accounts {
		if a.Scope.Key() == scope.Key() {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b core.Account) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) InsertAccount(_ context.Context, a core.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.accounts[a.ID]; exists {
		return fmt.Errorf("%w: account %s exists", core.ErrConflict, a.ID)
	}
	t.st.accounts[a.ID] = a
	return nil
}

func (t *tx) AdjustBalance(ctx context.Context, scope core.Scope, id string, delta decimal.Decimal) error {
	a, err := t.GetAccount(ctx, scope, id)
	if err != nil {
		return err
	}
	return t.setBalance(ctx, scope, id, a.Balance.Add(delta))
}

func (t *tx) setBalance(ctx context.Context, scope core.Scope, id string, balance decimal.Decimal) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, err := t.GetAccount(ctx, scope, id)
	if err != nil {
		return err
	}
	a.Balance = balance
	t.st.accounts[id] = a
	return nil
}

func (t *tx) GetCategory(_ context.Context, scope core.Scope, id string) (core.Category, error) {
	c, ok := t.st.categories[id]
	if !ok || c.Scope.Key() != scope.Key() {
		return core.Category{}, fmt.Errorf("%w %s", core.ErrCategoryNotFound, id)
	}
	return c, nil
}

func (t *tx) ListCategories(_ context.Context, scope core.Scope) ([]core.Category, error) {
	var out []core.Category
	for _, c := range t.st.categories {
		if c.Scope.Key() == scope.Key() {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Category) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (t *tx) InsertCategory(_ context.Context, c core.Category) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.categories[c.ID]; exists {
		return fmt.Errorf("%w: category %s exists", core.ErrConflict, c.ID)
	}
	t.st.categories[c.ID] = c
	return nil
}

func copyTransaction(tr core.Transaction) core.Transaction {
	if tr.BillRef != nil {
		ref := *tr.BillRef
		tr.BillRef = &ref
	}
	return tr
}

func (t *tx) GetTransaction(_ context.Context, scope core.Scope, id string) (core.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok || tr.Scope.Key() != scope.Key() {
		return core.Transaction{}, fmt.Errorf("%w %s", core.ErrTransactionNotFound, id)
	}
	return copyTransaction(tr), nil
}

func (t *tx) InsertTransaction(_ context.Context, tr core.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.transactions[tr.ID]; exists {
		return fmt.Errorf("%w: transaction %s exists", core.ErrConflict, tr.ID)
	}
	t.st.transactions[tr.ID] = copyTransaction(tr)
	return nil
}

func (t *tx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetTransaction(ctx, tr.Scope, tr.ID); err != nil {
		return err
	}
	t.st.transactions[tr.ID] = copyTransaction(tr)
	return nil
}

func (t *tx) DeleteTransaction(ctx context.Context, scope core.Scope, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetTransaction(ctx, scope, id); err != nil {
		return err
	}
	delete(t.st.transactions, id)
	return nil
}

func (t *tx) ListTransactions(_ context.Context, scope core.Scope, f storage.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tr := range t.st.transactions {
		if tr.Scope.Key() != scope.Key() || !matches(tr, f) {
			continue
		}
		out = append(out, copyTransaction(tr))
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		return cmp.Or(a.Date.Compare(b.Date.Time), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func matches(tr core.Transaction, f storage.TransactionFilter) bool {
	if !f.From.IsZero() && tr.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tr.Date.Before(f.To) {
		return false
	}
	if f.AccountID != "" && tr.AccountID != f.AccountID {
		return false
	}
	if f.TransferID != "" && tr.TransferID != f.TransferID {
		return false
	}
	if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, tr.CategoryID) {
		return false
	}
	return true
}

func (t *tx) GetBill(_ context.Context, scope core.Scope, id string) (core.Bill, error) {
	b, ok := t.st.bills[id]
	if !ok || b.Scope.Key() != scope.Key() {
		return core.Bill{}, fmt.Errorf("%w %s", core.ErrBillNotFound, id)
	}
	b.Segments = slices.Clone(t.st.segments[id])
	return b, nil
}

func (t *tx) ListBills(ctx context.Context, scope core.Scope) ([]core.Bill, error) {
	var out []core.Bill
	for id, b := range t.st.bills {
		if b.Scope.Key() != scope.Key() {
			continue
		}
		full, err := t.GetBill(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	sortBills(out)
	return out, nil
}

func (t *tx) AllBills(_ context.Context) ([]core.Bill, error) {
	out := make([]core.Bill, 0, len(t.st.bills))
	for id, b := range t.st.bills {
		b.Segments = slices.Clone(t.st.segments[id])
		out = append(out, b)
	}
	sortBills(out)
	return out, nil
}

func sortBills(bills []core.Bill) {
	slices.SortFunc(bills, func(a, b core.Bill) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

func (t *tx) InsertBill(_ context.Context, b core.Bill) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := t.st.bills[b.ID]; exists {
		return fmt.Errorf("%w: bill %s exists", core.ErrConflict, b.ID)
	}
	t.st.segments[b.ID] = sortedSegments(b.Segments)
	b.Segments = nil
	t.st.bills[b.ID] = b
	return nil
}

func (t *tx) DeleteBill(ctx context.Context, scope core.Scope, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetBill(ctx, scope, id); err != nil {
		return err
	}
	delete(t.st.bills, id)
	delete(t.st.segments, id)
	delete(t.st.overrides, id)
	return nil
}

func (t *tx) ReplaceSegments(ctx context.Context, scope core.Scope, billID string, segments []core.Segment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetBill(ctx, scope, billID); err != nil {
		return err
	}
	t.st.segments[billID] = sortedSegments(segments)
	return nil
}

func sortedSegments(segs []core.Segment) []core.Segment {
	out := slices.Clone(segs)
	slices.SortFunc(out, func(a, b core.Segment) int { return a.Start.Compare(b.Start.Time) })
	return out
}

func (t *tx) GetOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) (core.Override, bool, error) {
	if _, err := t.GetBill(ctx, scope, billID); err != nil {
		return core.Override{}, false, err
	}
	o, ok := t.st.overrides[billID][date.String()]
	return o, ok, nil
}

func (t *tx) ListOverrides(ctx context.Context, scope core.Scope, billID string, from, to core.Date) ([]core.Override, error) {
	if _, err := t.GetBill(ctx, scope, billID); err != nil {
		return nil, err
	}
	var out []core.Override
	for _, o := range t.st.overrides[billID] {
		if !from.IsZero() && o.Date.Before(from) {
			continue
		}
		if !to.IsZero() && !o.Date.Before(to) {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b core.Override) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (t *tx) UpsertOverride(ctx context.Context, scope core.Scope, o core.Override) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetBill(ctx, scope, o.BillID); err != nil {
		return err
	}
	ovs := t.st.overrides[o.BillID]
	if ovs == nil {
		ovs = map[string]core.Override{}
		t.st.overrides[o.BillID] = ovs
	}
	ovs[o.Date.String()] = o
	return nil
}

func (t *tx) DeleteOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetBill(ctx, scope, billID); err != nil {
		return err
	}
	delete(t.st.overrides[billID], date.String())
	return nil
}

func (t *tx) DeleteOverridesFrom(ctx context.Context, scope core.Scope, billID string, from core.Date) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetBill(ctx, scope, billID); err != nil {
		return err
	}
	for key, o := range t.st.overrides[billID] {
		if !o.Date.Before(from) {
			delete(t.st.overrides[billID], key)
		}
	}
	return nil
}
