package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conti/internal/core"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var errReadOnly = errors.New("write in read-only unit")

// SQLiteStore implements Store on a single sqlite file. Atomic units take the
// write lock up front with BEGIN IMMEDIATE so two units never interleave.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite store ready", "path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return classify(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	rollback := func() {
		if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
	}

	if err := fn(&sqlTx{q: conn}); err != nil {
		rollback()
		return classify(err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback()
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *SQLiteStore) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin read: %w", err))
	}
	defer tx.Rollback()
	return classify(fn(&sqlTx{q: tx, readOnly: true}))
}

// classify tags lock contention with ErrBusy, keeping the driver error.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrBusy) || !isBusy(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBusy, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	q        querier
	readOnly bool
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(d core.Date) sql.NullString {
	return nullString(d.String())
}

func scanDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}

// Accounts

const accountColumns = `id, name, currency, kind, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }, scope core.Scope) (core.Account, error) {
	var (
		a       core.Account
		created string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Currency, &a.Kind, &a.Balance, &created); err != nil {
		return core.Account{}, err
	}
	a.Scope = scope
	a.CreatedAt = parseTime(created)
	return a, nil
}

func (t *sqlTx) GetAccount(ctx context.Context, scope core.Scope, id string) (core.Account, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND scope_key = ?`, id, scope.Key())
	a, err := scanAccount(row, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w %s", core.ErrAccountNotFound, id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (t *sqlTx) ListAccounts(ctx context.Context, scope core.Scope) ([]core.Account, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE scope_key = ? ORDER BY created_at, id`, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := t.exec(ctx,
		`INSERT INTO accounts (id, scope_key, name, currency, kind, balance, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Scope.Key(), a.Name, a.Currency, string(a.Kind), a.Balance.String(), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (t *sqlTx) AdjustBalance(ctx context.Context, scope core.Scope, id string, delta decimal.Decimal) error {
	a, err := t.GetAccount(ctx, scope, id)
	if err != nil {
		return err
	}
	return t.setBalance(ctx, scope, id, a.Balance.Add(delta))
}

func (t *sqlTx) setBalance(ctx context.Context, scope core.Scope, id string, balance decimal.Decimal) error {
	n, err := t.exec(ctx, `UPDATE accounts SET balance = ? WHERE id = ? AND scope_key = ?`,
		balance.String(), id, scope.Key())
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w %s", core.ErrAccountNotFound, id)
	}
	return nil
}

// Categories

func scanCategory(row interface{ Scan(...any) error }, scope core.Scope) (core.Category, error) {
	var (
		c      core.Category
		parent sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Type, &parent); err != nil {
		return core.Category{}, err
	}
	c.Scope = scope
	c.ParentID = parent.String
	return c, nil
}

func (t *sqlTx) GetCategory(ctx context.Context, scope core.Scope, id string) (core.Category, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT id, name, type, parent_id FROM categories WHERE id = ? AND scope_key = ?`, id, scope.Key())
	c, err := scanCategory(row, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w %s", core.ErrCategoryNotFound, id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (t *sqlTx) ListCategories(ctx context.Context, scope core.Scope) ([]core.Category, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, name, type, parent_id FROM categories WHERE scope_key = ? ORDER BY name, id`, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := t.exec(ctx,
		`INSERT INTO categories (id, scope_key, name, type, parent_id) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Scope.Key(), c.Name, string(c.Type), nullString(c.ParentID))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// Transactions

const transactionColumns = `id, account_id, category_id, amount, date, description, notes,
	is_transfer, transfer_id, bill_id, bill_date, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }, scope core.Scope) (core.Transaction, error) {
	var (
		tr                     core.Transaction
		category, transfer     sql.NullString
		billID, billDate       sql.NullString
		date, created, updated string
	)
	err := row.Scan(&tr.ID, &tr.AccountID, &category, &tr.Amount, &date, &tr.Description, &tr.Notes,
		&tr.IsTransfer, &transfer, &billID, &billDate, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	if tr.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	if billID.Valid {
		d, err := scanDate(billDate)
		if err != nil {
			return core.Transaction{}, err
		}
		tr.BillRef = &core.BillRef{BillID: billID.String, Date: d}
	}
	tr.Scope = scope
	tr.CategoryID = category.String
	tr.TransferID = transfer.String
	tr.CreatedAt = parseTime(created)
	tr.UpdatedAt = parseTime(updated)
	return tr, nil
}

func billRefArgs(ref *core.BillRef) (sql.NullString, sql.NullString) {
	if ref == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return nullString(ref.BillID), nullDate(ref.Date)
}

func (t *sqlTx) GetTransaction(ctx context.Context, scope core.Scope, id string) (core.Transaction, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND scope_key = ?`, id, scope.Key())
	tr, err := scanTransaction(row, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w %s", core.ErrTransactionNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr core.Transaction) error {
	billID, billDate := billRefArgs(tr.BillRef)
	_, err := t.exec(ctx,
		`INSERT INTO transactions (id, scope_key, account_id, category_id, amount, date, description, notes,
			is_transfer, transfer_id, bill_id, bill_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Scope.Key(), tr.AccountID, nullString(tr.CategoryID), tr.Amount.String(), tr.Date.String(),
		tr.Description, tr.Notes, tr.IsTransfer, nullString(tr.TransferID), billID, billDate,
		formatTime(tr.CreatedAt), formatTime(tr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	billID, billDate := billRefArgs(tr.BillRef)
	n, err := t.exec(ctx,
		`UPDATE transactions SET account_id = ?, category_id = ?, amount = ?, date = ?, description = ?, notes = ?,
			is_transfer = ?, transfer_id = ?, bill_id = ?, bill_date = ?, updated_at = ?
		WHERE id = ? AND scope_key = ?`,
		tr.AccountID, nullString(tr.CategoryID), tr.Amount.String(), tr.Date.String(), tr.Description, tr.Notes,
		tr.IsTransfer, nullString(tr.TransferID), billID, billDate, formatTime(tr.UpdatedAt),
		tr.ID, tr.Scope.Key())
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w %s", core.ErrTransactionNotFound, tr.ID)
	}
	return nil
}

func (t *sqlTx) DeleteTransaction(ctx context.Context, scope core.Scope, id string) error {
	n, err := t.exec(ctx, `DELETE FROM transactions WHERE id = ? AND scope_key = ?`, id, scope.Key())
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w %s", core.ErrTransactionNotFound, id)
	}
	return nil
}

func (t *sqlTx) ListTransactions(ctx context.Context, scope core.Scope, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"scope_key = ?"}
		args  = []any{scope.Key()}
	)
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, f.To.String())
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.TransferID != "" {
		where = append(where, "transfer_id = ?")
		args = append(args, f.TransferID)
	}
	if len(f.CategoryIDs) > 0 {
		where = append(where, "category_id IN (?"+strings.Repeat(", ?", len(f.CategoryIDs)-1)+")")
		for _, id := range f.CategoryIDs {
			args = append(args, id)
		}
	}

	rows, err := t.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date, created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows, scope)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Bills

func (t *sqlTx) GetBill(ctx context.Context, scope core.Scope, id string) (core.Bill, error) {
	var (
		b               core.Bill
		anchor, created string
	)
	err := t.q.QueryRowContext(ctx,
		`SELECT id, anchor_date, created_at FROM bills WHERE id = ? AND scope_key = ?`, id, scope.Key()).
		Scan(&b.ID, &anchor, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, fmt.Errorf("%w %s", core.ErrBillNotFound, id)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	if b.AnchorDate, err = core.ParseDate(anchor); err != nil {
		return core.Bill{}, err
	}
	b.Scope = scope
	b.CreatedAt = parseTime(created)
	if b.Segments, err = t.segments(ctx, b.ID); err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

func (t *sqlTx) ListBills(ctx context.Context, scope core.Scope) ([]core.Bill, error) {
	return t.listBills(ctx, `WHERE scope_key = ?`, scope.Key())
}

func (t *sqlTx) AllBills(ctx context.Context) ([]core.Bill, error) {
	return t.listBills(ctx, ``)
}

func (t *sqlTx) listBills(ctx context.Context, where string, args ...any) ([]core.Bill, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, user_id, workspace_id, anchor_date, created_at FROM bills `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	var bills []core.Bill
	for rows.Next() {
		var (
			b               core.Bill
			anchor, created string
		)
		if err := rows.Scan(&b.ID, &b.Scope.UserID, &b.Scope.WorkspaceID, &anchor, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		if b.AnchorDate, err = core.ParseDate(anchor); err != nil {
			rows.Close()
			return nil, err
		}
		b.CreatedAt = parseTime(created)
		bills = append(bills, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bills {
		if bills[i].Segments, err = t.segments(ctx, bills[i].ID); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (t *sqlTx) segments(ctx context.Context, billID string) ([]core.Segment, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, start_date, end_date, anchor_date, name, amount, account_id, category_id, cadence
		FROM bill_segments WHERE bill_id = ? ORDER BY start_date`, billID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []core.Segment
	for rows.Next() {
		var (
			s             core.Segment
			start, anchor string
			end           sql.NullString
		)
		if err := rows.Scan(&s.ID, &start, &end, &anchor, &s.Name, &s.Amount, &s.AccountID, &s.CategoryID, &s.Cadence); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		s.BillID = billID
		if s.Start, err = core.ParseDate(start); err != nil {
			return nil, err
		}
		if s.End, err = scanDate(end); err != nil {
			return nil, err
		}
		if s.Anchor, err = core.ParseDate(anchor); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertBill(ctx context.Context, b core.Bill) error {
	_, err := t.exec(ctx,
		`INSERT INTO bills (id, scope_key, user_id, workspace_id, anchor_date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Scope.Key(), b.Scope.UserID, b.Scope.WorkspaceID, b.AnchorDate.String(), formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return t.insertSegments(ctx, b.ID, b.Segments)
}

func (t *sqlTx) insertSegments(ctx context.Context, billID string, segments []core.Segment) error {
	for _, s := range segments {
		_, err := t.exec(ctx,
			`INSERT INTO bill_segments (id, bill_id, start_date, end_date, anchor_date, name, amount, account_id, category_id, cadence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, billID, s.Start.String(), nullDate(s.End), s.Anchor.String(), s.Name, s.Amount.String(),
			s.AccountID, s.CategoryID, string(s.Cadence))
		if err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) DeleteBill(ctx context.Context, scope core.Scope, id string) error {
	n, err := t.exec(ctx, `DELETE FROM bills WHERE id = ? AND scope_key = ?`, id, scope.Key())
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w %s", core.ErrBillNotFound, id)
	}
	return nil
}

func (t *sqlTx) ReplaceSegments(ctx context.Context, scope core.Scope, billID string, segments []core.Segment) error {
	if err := t.ownsBill(ctx, scope, billID); err != nil {
		return err
	}
	if _, err := t.exec(ctx, `DELETE FROM bill_segments WHERE bill_id = ?`, billID); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	return t.insertSegments(ctx, billID, segments)
}

func (t *sqlTx) ownsBill(ctx context.Context, scope core.Scope, billID string) error {
	var one int
	err := t.q.QueryRowContext(ctx, `SELECT 1 FROM bills WHERE id = ? AND scope_key = ?`, billID, scope.Key()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w %s", core.ErrBillNotFound, billID)
	}
	if err != nil {
		return fmt.Errorf("check bill: %w", err)
	}
	return nil
}

// Overrides

const overrideColumns = `date, name, amount, account_id, category_id, deleted, status, transaction_id, paid_date`

func scanOverride(row interface{ Scan(...any) error }, billID string) (core.Override, error) {
	var (
		o                       core.Override
		date                    string
		name, account, category sql.NullString
		txID, paid              sql.NullString
		amount                  decimal.NullDecimal
	)
	err := row.Scan(&date, &name, &amount, &account, &category, &o.Deleted, &o.Status, &txID, &paid)
	if err != nil {
		return core.Override{}, err
	}
	o.BillID = billID
	if o.Date, err = core.ParseDate(date); err != nil {
		return core.Override{}, err
	}
	if o.PaidDate, err = scanDate(paid); err != nil {
		return core.Override{}, err
	}
	if name.Valid {
		o.Fields.Name = &name.String
	}
	if amount.Valid {
		o.Fields.Amount = &amount.Decimal
	}
	if account.Valid {
		o.Fields.AccountID = &account.String
	}
	if category.Valid {
		o.Fields.CategoryID = &category.String
	}
	o.TransactionID = txID.String
	return o, nil
}

func (t *sqlTx) GetOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) (core.Override, bool, error) {
	if err := t.ownsBill(ctx, scope, billID); err != nil {
		return core.Override{}, false, err
	}
	row := t.q.QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM bill_overrides WHERE bill_id = ? AND date = ?`, billID, date.String())
	o, err := scanOverride(row, billID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Override{}, false, nil
	}
	if err != nil {
		return core.Override{}, false, fmt.Errorf("get override: %w", err)
	}
	return o, true, nil
}

func (t *sqlTx) ListOverrides(ctx context.Context, scope core.Scope, billID string, from, to core.Date) ([]core.Override, error) {
	if err := t.ownsBill(ctx, scope, billID); err != nil {
		return nil, err
	}
	query := `SELECT ` + overrideColumns + ` FROM bill_overrides WHERE bill_id = ?`
	args := []any{billID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += ` AND date < ?`
		args = append(args, to.String())
	}
	rows, err := t.q.QueryContext(ctx, query+` ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []core.Override
	for rows.Next() {
		o, err := scanOverride(rows, billID)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *sqlTx) UpsertOverride(ctx context.Context, scope core.Scope, o core.Override) error {
	if err := t.ownsBill(ctx, scope, o.BillID); err != nil {
		return err
	}
	var amount decimal.NullDecimal
	if o.Fields.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *o.Fields.Amount, Valid: true}
	}
	status := o.Status
	if status == "" {
		status = core.Pending
	}
	_, err := t.exec(ctx,
		`INSERT INTO bill_overrides (bill_id, date, name, amount, account_id, category_id, deleted, status, transaction_id, paid_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bill_id, date) DO UPDATE SET
			name = excluded.name,
			amount = excluded.amount,
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			deleted = excluded.deleted,
			status = excluded.status,
			transaction_id = excluded.transaction_id,
			paid_date = excluded.paid_date`,
		o.BillID, o.Date.String(), optString(o.Fields.Name), amount, optString(o.Fields.AccountID),
		optString(o.Fields.CategoryID), o.Deleted, string(status), nullString(o.TransactionID), nullDate(o.PaidDate))
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

func optString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (t *sqlTx) DeleteOverride(ctx context.Context, scope core.Scope, billID string, date core.Date) error {
	if err := t.ownsBill(ctx, scope, billID); err != nil {
		return err
	}
	if _, err := t.exec(ctx, `DELETE FROM bill_overrides WHERE bill_id = ? AND date = ?`, billID, date.String()); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteOverridesFrom(ctx context.Context, scope core.Scope, billID string, from core.Date) error {
	if err := t.ownsBill(ctx, scope, billID); err != nil {
		return err
	}
	if _, err := t.exec(ctx, `DELETE FROM bill_overrides WHERE bill_id = ? AND date >= ?`, billID, from.String()); err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}
	return nil
}
