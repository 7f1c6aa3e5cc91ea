package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Once     Cadence = "ONCE"
	Daily    Cadence = "DAILY"
	Weekly   Cadence = "WEEKLY"
	Biweekly Cadence = "BIWEEKLY"
	Monthly  Cadence = "MONTHLY"
	Yearly   Cadence = "YEARLY"
)

const (
	ExpenseCategory CategoryType = "EXPENSE"
	IncomeCategory  CategoryType = "INCOME"
)

const (
	Asset     AccountKind = "ASSET"
	Liability AccountKind = "LIABILITY"
)

const (
	Pending InstanceStatus = "PENDING"
	Paid    InstanceStatus = "PAID"
)

type (
	Cadence        string
	CategoryType   string
	AccountKind    string
	InstanceStatus string

	// Scope is the tenancy filter applied to every store access.
	Scope struct {
		UserID      string
		WorkspaceID string
	}

	Account struct {
		ID        string          `json:"id"`
		Scope     Scope           `json:"-"`
		Name      string          `json:"name"`
		Currency  string          `json:"currency"`
		Kind      AccountKind     `json:"kind"`
		Balance   decimal.Decimal `json:"balance"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	Category struct {
		ID       string       `json:"id"`
		Scope    Scope        `json:"-"`
		Name     string       `json:"name"`
		Type     CategoryType `json:"type"`
		ParentID string       `json:"parentId,omitempty"`
	}

	// BillRef identifies the bill occurrence a payment transaction settles.
	BillRef struct {
		BillID string `json:"billId"`
		Date   Date   `json:"date"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Scope       Scope           `json:"-"`
		AccountID   string          `json:"accountId"`
		CategoryID  string          `json:"categoryId,omitempty"`
		Amount      decimal.Decimal `json:"amount"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
		Notes       string          `json:"notes,omitempty"`
		IsTransfer  bool            `json:"isTransfer"`
		TransferID  string          `json:"transferId,omitempty"`
		BillRef     *BillRef        `json:"billInstance,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// Snapshot holds the mutable bill fields valid inside one segment.
	Snapshot struct {
		Name       string          `json:"name"`
		Amount     decimal.Decimal `json:"amount"`
		AccountID  string          `json:"accountId"`
		CategoryID string          `json:"categoryId"`
		Cadence    Cadence         `json:"cadence"`
	}

	// Segment covers [Start, End) of a bill series. A zero End is unbounded.
	// Anchor is the date the segment's cadence steps from.
	Segment struct {
		ID     string `json:"id"`
		BillID string `json:"billId"`
		Start  Date   `json:"start"`
		End    Date   `json:"end"`
		Anchor Date   `json:"anchor"`
		Snapshot
	}

	Bill struct {
		ID         string    `json:"id"`
		Scope      Scope     `json:"-"`
		AnchorDate Date      `json:"anchorDate"`
		Segments   []Segment `json:"segments"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	// OverrideFields is a partial patch applied on top of a segment snapshot.
	OverrideFields struct {
		Name       *string          `json:"name,omitempty"`
		Amount     *decimal.Decimal `json:"amount,omitempty"`
		AccountID  *string          `json:"accountId,omitempty"`
		CategoryID *string          `json:"categoryId,omitempty"`
	}

	Override struct {
		BillID        string         `json:"billId"`
		Date          Date           `json:"date"`
		Fields        OverrideFields `json:"fields"`
		Deleted       bool           `json:"deleted"`
		Status        InstanceStatus `json:"status"`
		TransactionID string         `json:"transactionId,omitempty"`
		PaidDate      Date           `json:"paidDate"`
	}

	// Instance is one virtual occurrence of a bill. It is never stored.
	Instance struct {
		BillID        string          `json:"billId"`
		Date          Date            `json:"date"`
		Name          string          `json:"name"`
		Amount        decimal.Decimal `json:"amount"`
		AccountID     string          `json:"accountId"`
		CategoryID    string          `json:"categoryId"`
		Cadence       Cadence         `json:"cadence"`
		Status        InstanceStatus  `json:"status"`
		TransactionID string          `json:"transactionId,omitempty"`
		PaidDate      Date            `json:"paidDate"`
		Overridden    bool            `json:"overridden"`
	}

	// BillPatch carries the fields changed by an instance edit. EndDate is
	// inclusive; ClearEndDate reopens a bounded series.
	BillPatch struct {
		Name         *string
		Amount       *decimal.Decimal
		AccountID    *string
		CategoryID   *string
		Cadence      *Cadence
		EndDate      *Date
		ClearEndDate bool
	}
)

// Key returns the opaque tenancy key stored with every record.
func (s Scope) Key() string {
	if s.WorkspaceID != "" {
		return "w:" + s.WorkspaceID
	}
	return "u:" + s.UserID
}

func (s Scope) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingScope
	}
	return nil
}

func (c Cadence) Valid() bool {
	switch c {
	case Once, Daily, Weekly, Biweekly, Monthly, Yearly:
		return true
	}
	return false
}

func (t CategoryType) Valid() bool {
	return t == ExpenseCategory || t == IncomeCategory
}

func (k AccountKind) Valid() bool {
	return k == Asset || k == Liability
}

// Signed applies the category sign convention to a magnitude.
func (t CategoryType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == ExpenseCategory {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// Open reports whether the segment has no end.
func (s Segment) Open() bool {
	return s.End.IsZero()
}

// Contains reports whether d falls inside [Start, End).
func (s Segment) Contains(d Date) bool {
	if d.Before(s.Start) {
		return false
	}
	return s.Open() || d.Before(s.End)
}

// Overlaps reports whether the segment intersects [from, to).
func (s Segment) Overlaps(from, to Date) bool {
	if !s.Start.Before(to) {
		return false
	}
	return s.Open() || from.Before(s.End)
}

// EndDate returns the inclusive last day of the series, or zero when open.
func (b Bill) EndDate() Date {
	if len(b.Segments) == 0 {
		return Date{}
	}
	last := b.Segments[len(b.Segments)-1]
	if last.Open() {
		return Date{}
	}
	return last.End.AddDays(-1)
}

// Apply merges the override fields on top of a snapshot.
func (f OverrideFields) Apply(s Snapshot) Snapshot {
	if f.Name != nil {
		s.Name = *f.Name
	}
	if f.Amount != nil {
		s.Amount = *f.Amount
	}
	if f.AccountID != nil {
		s.AccountID = *f.AccountID
	}
	if f.CategoryID != nil {
		s.CategoryID = *f.CategoryID
	}
	return s
}

func (f OverrideFields) IsEmpty() bool {
	return f.Name == nil && f.Amount == nil && f.AccountID == nil && f.CategoryID == nil
}

// Merge returns f with every field set in other taking precedence.
func (f OverrideFields) Merge(other OverrideFields) OverrideFields {
	if other.Name != nil {
		f.Name = other.Name
	}
	if other.Amount != nil {
		f.Amount = other.Amount
	}
	if other.AccountID != nil {
		f.AccountID = other.AccountID
	}
	if other.CategoryID != nil {
		f.CategoryID = other.CategoryID
	}
	return f
}

// Fields projects the snapshot portion of the patch.
func (p BillPatch) Fields() OverrideFields {
	return OverrideFields{
		Name:       p.Name,
		Amount:     p.Amount,
		AccountID:  p.AccountID,
		CategoryID: p.CategoryID,
	}
}

func (p BillPatch) IsEmpty() bool {
	return p.Fields().IsEmpty() && p.Cadence == nil && p.EndDate == nil && !p.ClearEndDate
}

func (p BillPatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.AccountID != nil && strings.TrimSpace(*p.AccountID) == "" {
		return ErrEmptyAccount
	}
	if p.CategoryID != nil && strings.TrimSpace(*p.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if p.Cadence != nil && !p.Cadence.Valid() {
		return ErrInvalidCadence
	}
	if p.EndDate != nil && p.ClearEndDate {
		return fmt.Errorf("%w: endDate and clearEndDate are exclusive", ErrValidation)
	}
	if p.EndDate != nil {
		if err := p.EndDate.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Snapshot) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if !s.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(s.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(s.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !s.Cadence.Valid() {
		return ErrInvalidCadence
	}
	return nil
}

func validateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyDescription
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	return nil
}

var errZeroDate = errors.New("date cannot be zero")
