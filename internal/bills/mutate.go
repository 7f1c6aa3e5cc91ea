package bills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/recurrence"
	"conti/internal/storage"
)

// target is one calendar occurrence of a bill together with its override.
type target struct {
	bill        core.Bill
	date        core.Date
	idx         int
	override    core.Override
	hasOverride bool
}

// load resolves date to a calendar occurrence of billID. Deleted occurrences
// still resolve; callers decide what a deletion marker means for them.
func load(ctx context.Context, r storage.BillTx, scope core.Scope, billID string, date core.Date) (target, error) {
	bill, err := r.GetBill(ctx, scope, billID)
	if err != nil {
		return target{}, err
	}
	idx := covering(bill.Segments, date)
	if idx < 0 {
		return target{}, fmt.Errorf("%w: %s on %s", core.ErrInstanceNotFound, billID, date)
	}
	seg := bill.Segments[idx]
	if !recurrence.IsOccurrence(seg.Anchor, seg.Cadence, date) {
		return target{}, fmt.Errorf("%w: %s on %s", core.ErrInstanceNotFound, billID, date)
	}
	o, ok, err := r.GetOverride(ctx, scope, billID, date)
	if err != nil {
		return target{}, fmt.Errorf("load override: %w", err)
	}
	return target{bill: bill, date: date, idx: idx, override: o, hasOverride: ok}, nil
}

// instance returns the materialized occurrence, or nil when it is deleted.
func (t target) instance() *core.Instance {
	if t.hasOverride && t.override.Deleted {
		return nil
	}
	inst := compose(t.bill.ID, t.bill.Segments[t.idx], t.date, t.override, t.hasOverride)
	return &inst
}

func (t target) overrideOrNew() core.Override {
	if t.hasOverride {
		return t.override
	}
	return core.Override{BillID: t.bill.ID, Date: t.date, Status: core.Pending}
}

func (s *Service) result(ctx context.Context, u *ledger.Unit, billID string, date core.Date) (EditResult, error) {
	t, err := load(ctx, u.Bills(), u.Scope(), billID, date)
	if errors.Is(err, core.ErrNotFound) {
		bill, err := u.Bills().GetBill(ctx, u.Scope(), billID)
		if errors.Is(err, core.ErrBillNotFound) {
			return EditResult{}, nil
		}
		return EditResult{Bill: bill}, err
	}
	if err != nil {
		return EditResult{}, err
	}
	return EditResult{Bill: t.bill, Instance: t.instance()}, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Edit changes the occurrence on date, or with applyToFuture every
// occurrence from date onward. Earlier occurrences never change.
func (s *Service) Edit(ctx context.Context, scope core.Scope, billID string, date core.Date, patch core.BillPatch, applyToFuture bool) (EditResult, error) {
	if err := date.Validate(); err != nil {
		return EditResult{}, err
	}
	if err := patch.Validate(); err != nil {
		return EditResult{}, err
	}
	if !applyToFuture && (patch.Cadence != nil || patch.EndDate != nil || patch.ClearEndDate) {
		return EditResult{}, fmt.Errorf("%w: cadence and end date only change with applyToFuture", core.ErrValidation)
	}
	if patch.EndDate != nil && patch.EndDate.Before(date) {
		return EditResult{}, fmt.Errorf("%w: end date before the edited occurrence", core.ErrValidation)
	}
	if patch.Amount != nil {
		amount := core.Normalize(*patch.Amount)
		patch.Amount = &amount
	}

	var out EditResult
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		t, err := load(ctx, u.Bills(), scope, billID, date)
		if err != nil {
			return err
		}
		if err := checkRefs(ctx, u.Reader(), scope, deref(patch.AccountID), deref(patch.CategoryID)); err != nil {
			return err
		}
		if applyToFuture {
			err = s.editFuture(ctx, u, t, patch)
		} else {
			err = editSingle(ctx, u, t, patch)
		}
		if err != nil {
			return err
		}
		out, err = s.result(ctx, u, billID, date)
		return err
	})
	if err != nil {
		return EditResult{}, fmt.Errorf("edit bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill edited", "bill_id", billID, "occurrence_date", date.String(), "apply_to_future", applyToFuture)
	return out, nil
}

func editSingle(ctx context.Context, u *ledger.Unit, t target, patch core.BillPatch) error {
	if t.instance() == nil {
		return fmt.Errorf("%w: %s on %s is deleted", core.ErrInstanceNotFound, t.bill.ID, t.date)
	}
	o := t.overrideOrNew()
	o.Fields = o.Fields.Merge(patch.Fields())
	if err := u.Bills().UpsertOverride(ctx, u.Scope(), o); err != nil {
		return fmt.Errorf("save override: %w", err)
	}
	return nil
}

// editFuture splits the covering segment at the pivot and applies the patch
// to the new segment and every later one.
func (s *Service) editFuture(ctx context.Context, u *ledger.Unit, t target, patch core.BillPatch) error {
	segs := t.bill.Segments
	pivot := t.date
	fields := patch.Fields()

	apply := func(sg core.Segment) core.Segment {
		sg.Snapshot = fields.Apply(sg.Snapshot)
		if patch.Cadence != nil && *patch.Cadence != sg.Cadence {
			sg.Cadence = *patch.Cadence
			sg.Anchor = pivot
		}
		return sg
	}

	next := slices.Clone(segs[:t.idx])
	cur := segs[t.idx]
	first := apply(cur)
	if !pivot.Equal(cur.Start) {
		closed := cur
		closed.End = pivot
		next = append(next, closed)
		first.ID = s.ledger.NewID()
		first.Start = pivot
	}
	next = append(next, first)
	for _, later := range segs[t.idx+1:] {
		next = append(next, apply(later))
	}

	switch {
	case patch.EndDate != nil:
		next = capSegments(next, patch.EndDate.AddDays(1))
	case patch.ClearEndDate:
		next[len(next)-1].End = core.Date{}
	}

	edited := t.bill
	edited.Segments = next
	overrides, err := u.Bills().ListOverrides(ctx, u.Scope(), t.bill.ID, pivot, core.Date{})
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	for _, o := range overrides {
		if o.Status == core.Paid && !Reachable(edited, o.Date) {
			return fmt.Errorf("%w: paid on %s", core.ErrPaidOccurrenceOrphaned, o.Date)
		}
	}
	if err := u.Bills().ReplaceSegments(ctx, u.Scope(), t.bill.ID, next); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	return stripFields(ctx, u, overrides, fields)
}

// capSegments drops the segments starting at or after end and closes the
// last remaining one at end.
func capSegments(segs []core.Segment, end core.Date) []core.Segment {
	var out []core.Segment
	for _, sg := range segs {
		if !sg.Start.Before(end) {
			break
		}
		out = append(out, sg)
	}
	last := &out[len(out)-1]
	if last.Open() || end.Before(last.End) {
		last.End = end
	}
	return out
}

// stripFields removes the patched fields from later single overrides so the
// new series values show through.
func stripFields(ctx context.Context, u *ledger.Unit, overrides []core.Override, patched core.OverrideFields) error {
	for _, o := range overrides {
		before := o.Fields
		if patched.Name != nil {
			o.Fields.Name = nil
		}
		if patched.Amount != nil {
			o.Fields.Amount = nil
		}
		if patched.AccountID != nil {
			o.Fields.AccountID = nil
		}
		if patched.CategoryID != nil {
			o.Fields.CategoryID = nil
		}
		if o.Fields == before {
			continue
		}
		var err error
		if o.Fields.IsEmpty() && !o.Deleted && o.Status != core.Paid {
			err = u.Bills().DeleteOverride(ctx, u.Scope(), o.BillID, o.Date)
		} else {
			err = u.Bills().UpsertOverride(ctx, u.Scope(), o)
		}
		if err != nil {
			return fmt.Errorf("update override: %w", err)
		}
	}
	return nil
}

// Delete suppresses the occurrence on date, or with applyToFuture ends the
// series before date. Paid occurrences lose their transaction first.
func (s *Service) Delete(ctx context.Context, scope core.Scope, billID string, date core.Date, applyToFuture bool) (EditResult, error) {
	if err := date.Validate(); err != nil {
		return EditResult{}, err
	}

	var out EditResult
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		t, err := load(ctx, u.Bills(), scope, billID, date)
		if err != nil {
			return err
		}
		if applyToFuture {
			err = deleteFuture(ctx, u, t)
		} else {
			err = deleteSingle(ctx, u, t)
		}
		if err != nil {
			return err
		}
		out, err = s.result(ctx, u, billID, date)
		return err
	})
	if err != nil {
		return EditResult{}, fmt.Errorf("delete bill occurrence: %w", err)
	}

	slog.InfoContext(ctx, "Bill occurrence deleted", "bill_id", billID, "occurrence_date", date.String(), "apply_to_future", applyToFuture)
	return out, nil
}

func deleteSingle(ctx context.Context, u *ledger.Unit, t target) error {
	if t.hasOverride && t.override.Deleted {
		return core.ErrAlreadyDeleted
	}
	if t.hasOverride && t.override.Status == core.Paid {
		if err := reversePayment(ctx, u, t.bill.ID, t.override); err != nil {
			return err
		}
	}
	o, ok, err := u.Bills().GetOverride(ctx, u.Scope(), t.bill.ID, t.date)
	if err != nil {
		return fmt.Errorf("reload override: %w", err)
	}
	if !ok {
		o = core.Override{BillID: t.bill.ID, Date: t.date, Status: core.Pending}
	}
	o.Deleted = true
	if err := u.Bills().UpsertOverride(ctx, u.Scope(), o); err != nil {
		return fmt.Errorf("save override: %w", err)
	}
	return nil
}

func deleteFuture(ctx context.Context, u *ledger.Unit, t target) error {
	overrides, err := u.Bills().ListOverrides(ctx, u.Scope(), t.bill.ID, t.date, core.Date{})
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	for _, o := range overrides {
		if o.Status == core.Paid {
			if err := reversePayment(ctx, u, t.bill.ID, o); err != nil {
				return err
			}
		}
	}
	if err := u.Bills().DeleteOverridesFrom(ctx, u.Scope(), t.bill.ID, t.date); err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}

	// a pivot on the anchor leaves one empty segment [anchor, anchor), so
	// the bill stays addressable with no occurrences
	segs := slices.Clone(t.bill.Segments[:t.idx])
	if cur := t.bill.Segments[t.idx]; cur.Start.Before(t.date) || t.idx == 0 {
		cur.End = t.date
		segs = append(segs, cur)
	}
	if err := u.Bills().ReplaceSegments(ctx, u.Scope(), t.bill.ID, segs); err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	return nil
}

// reversePayment deletes the transaction behind a PAID override through the
// ledger, which also resets the override.
func reversePayment(ctx context.Context, u *ledger.Unit, billID string, o core.Override) error {
	ref := core.BillRef{BillID: billID, Date: o.Date}
	_, err := u.DeleteTransaction(ctx, o.TransactionID)
	if errors.Is(err, core.ErrTransactionNotFound) {
		slog.WarnContext(ctx, "Paid occurrence lost its transaction, releasing marker",
			"bill_id", billID, "occurrence_date", o.Date.String(), "transaction_id", o.TransactionID)
		return u.ReleasePayment(ctx, ref, o.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("reverse payment: %w", err)
	}
	return nil
}

// Pay books the occurrence on date as a transaction dated paidDate (today
// when zero) and marks it PAID, all in one unit.
func (s *Service) Pay(ctx context.Context, scope core.Scope, billID string, date, paidDate core.Date) (core.Instance, error) {
	if err := date.Validate(); err != nil {
		return core.Instance{}, err
	}
	if paidDate.IsZero() {
		paidDate = s.ledger.Today()
	}

	var out core.Instance
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		t, err := load(ctx, u.Bills(), scope, billID, date)
		if err != nil {
			return err
		}
		inst := t.instance()
		if inst == nil {
			return fmt.Errorf("%w: %s on %s is deleted", core.ErrInstanceNotFound, billID, date)
		}
		if inst.Status == core.Paid {
			return core.ErrAlreadyPaid
		}

		tr, err := u.CreateTransaction(ctx, ledger.NewTransaction{
			AccountID:   inst.AccountID,
			CategoryID:  inst.CategoryID,
			Amount:      inst.Amount,
			Date:        paidDate,
			Description: inst.Name,
			BillRef:     &core.BillRef{BillID: billID, Date: date},
		})
		if err != nil {
			return fmt.Errorf("book payment: %w", err)
		}

		o := t.overrideOrNew()
		o.Status = core.Paid
		o.TransactionID = tr.ID
		o.PaidDate = paidDate
		if err := u.Bills().UpsertOverride(ctx, scope, o); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		t.override, t.hasOverride = o, true
		out = *t.instance()

		u.Record(ledger.BillPaid, ledger.Event{TransactionIDs: []string{tr.ID}, BillID: billID, Date: date})
		return nil
	})
	if err != nil {
		return core.Instance{}, fmt.Errorf("pay bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill paid", "bill_id", billID, "occurrence_date", date.String(),
		"transaction_id", out.TransactionID, "amount", out.Amount.String())
	return out, nil
}

// Unpay removes the payment transaction of the occurrence on date and
// returns it to PENDING.
func (s *Service) Unpay(ctx context.Context, scope core.Scope, billID string, date core.Date) (core.Instance, error) {
	if err := date.Validate(); err != nil {
		return core.Instance{}, err
	}

	var out core.Instance
	err := s.ledger.Atomic(ctx, scope, func(u *ledger.Unit) error {
		t, err := load(ctx, u.Bills(), scope, billID, date)
		if err != nil {
			return err
		}
		inst := t.instance()
		if inst == nil {
			return fmt.Errorf("%w: %s on %s is deleted", core.ErrInstanceNotFound, billID, date)
		}
		if inst.Status != core.Paid {
			return core.ErrNotPaid
		}
		if err := reversePayment(ctx, u, billID, t.override); err != nil {
			return err
		}

		if t, err = load(ctx, u.Bills(), scope, billID, date); err != nil {
			return err
		}
		out = *t.instance()
		u.Record(ledger.BillUnpaid, ledger.Event{TransactionIDs: []string{inst.TransactionID}, BillID: billID, Date: date})
		return nil
	})
	if err != nil {
		return core.Instance{}, fmt.Errorf("unpay bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill unpaid", "bill_id", billID, "occurrence_date", date.String())
	return out, nil
}
