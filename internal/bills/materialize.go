package bills

import (
	"slices"

	"conti/internal/core"
	"conti/internal/recurrence"
)

// Materialize computes the instances of bill inside [from, to). overrides may
// hold any overrides of the bill; those outside the window are ignored.
// The result is sorted by date and depends only on its inputs.
func Materialize(bill core.Bill, overrides []core.Override, from, to core.Date) ([]core.Instance, error) {
	if !from.Before(to) {
		return nil, nil
	}
	byDate := make(map[string]core.Override, len(overrides))
	for _, o := range overrides {
		byDate[o.Date.String()] = o
	}

	found := map[string]core.Instance{}
	for _, seg := range bill.Segments {
		if !seg.Overlaps(from, to) {
			continue
		}
		subFrom := core.MaxDate(from, seg.Start)
		subTo := to
		if !seg.Open() {
			subTo = core.MinDate(to, seg.End)
		}
		dates, err := recurrence.Occurrences(seg.Anchor, seg.Cadence, subFrom, subTo)
		if err != nil {
			return nil, err
		}
		for d := range dates {
			o, ok := byDate[d.String()]
			if ok && o.Deleted {
				delete(found, d.String())
				continue
			}
			// segments are disjoint; if two ever yield a date the later one wins
			found[d.String()] = compose(bill.ID, seg, d, o, ok)
		}
	}

	out := make([]core.Instance, 0, len(found))
	for _, inst := range found {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b core.Instance) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func compose(billID string, seg core.Segment, d core.Date, o core.Override, hasOverride bool) core.Instance {
	snap := seg.Snapshot
	status := core.Pending
	inst := core.Instance{BillID: billID, Date: d}
	if hasOverride {
		snap = o.Fields.Apply(snap)
		if o.Status == core.Paid {
			status = core.Paid
			inst.TransactionID = o.TransactionID
			inst.PaidDate = o.PaidDate
		}
		inst.Overridden = !o.Fields.IsEmpty()
	}
	inst.Name = snap.Name
	inst.Amount = snap.Amount
	inst.AccountID = snap.AccountID
	inst.CategoryID = snap.CategoryID
	inst.Cadence = snap.Cadence
	inst.Status = status
	return inst
}

// covering returns the index of the segment whose window holds d, or -1.
func covering(segments []core.Segment, d core.Date) int {
	for i, s := range segments {
		if s.Contains(d) {
			return i
		}
	}
	return -1
}

// Reachable reports whether d is a calendar occurrence of some segment,
// ignoring overrides.
func Reachable(bill core.Bill, d core.Date) bool {
	i := covering(bill.Segments, d)
	if i < 0 {
		return false
	}
	s := bill.Segments[i]
	return recurrence.IsOccurrence(s.Anchor, s.Cadence, d)
}

// CheckCoverage verifies that segments are ordered and that each one starts
// where the previous ended, beginning at the anchor. Only a lone segment may
// be empty, which is a series ended on its anchor.
func CheckCoverage(bill core.Bill) bool {
	if len(bill.Segments) == 0 || !bill.Segments[0].Start.Equal(bill.AnchorDate) {
		return false
	}
	for i, s := range bill.Segments {
		if !s.Open() && s.End.Before(s.Start) {
			return false
		}
		if !s.Open() && s.End.Equal(s.Start) && len(bill.Segments) > 1 {
			return false
		}
		if i == 0 {
			continue
		}
		prev := bill.Segments[i-1]
		if prev.Open() || !prev.End.Equal(s.Start) {
			return false
		}
	}
	return true
}
