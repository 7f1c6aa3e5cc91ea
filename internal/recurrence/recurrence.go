// Package recurrence expands a cadence and an anchor date into the calendar
// dates of its occurrences.
//
// Each cadence has its own Stepper strategy. Steppers address occurrences by
// index from the anchor so a window far from the anchor is reached by
// arithmetic, never by walking every step in between.
package recurrence

import (
	"fmt"
	"iter"

	"conti/internal/core"
)

// Stepper is the strategy interface for one cadence.
type Stepper interface {
	// Nth returns the n-th occurrence (n >= 0) counted from anchor, and false
	// when the series has fewer than n+1 occurrences.
	Nth(anchor core.Date, n int) (core.Date, bool)

	// FirstIndex returns the smallest n whose occurrence is not before from.
	FirstIndex(anchor, from core.Date) int
}

// OnceStepper has a single occurrence on the anchor.
type OnceStepper struct{}

func (OnceStepper) Nth(anchor core.Date, n int) (core.Date, bool) {
	return anchor, n == 0
}

func (OnceStepper) FirstIndex(anchor, from core.Date) int {
	if anchor.Before(from) {
		return 1
	}
	return 0
}

// DayStepper steps a fixed number of days.
type DayStepper struct {
	Days int
}

func (s DayStepper) Nth(anchor core.Date, n int) (core.Date, bool) {
	return anchor.AddDays(n * s.Days), true
}

func (s DayStepper) FirstIndex(anchor, from core.Date) int {
	if !from.After(anchor) {
		return 0
	}
	diff := from.DaysSince(anchor)
	return (diff + s.Days - 1) / s.Days
}

// MonthStepper steps a fixed number of months, keeping the anchor's day of
// month clamped to the length of each month. Twelve months gives a yearly
// cadence where a Feb 29 anchor lands on Feb 28 in non-leap years.
type MonthStepper struct {
	Months int
}

func (s MonthStepper) Nth(anchor core.Date, n int) (core.Date, bool) {
	return anchor.AddMonthsClamped(n * s.Months), true
}

func (s MonthStepper) FirstIndex(anchor, from core.Date) int {
	if !from.After(anchor) {
		return 0
	}
	months := (from.Year()-anchor.Year())*12 + from.Month() - anchor.Month()
	n := months / s.Months
	if d, _ := s.Nth(anchor, n); d.Before(from) {
		n++
	}
	return n
}

// steppers maps cadences to their strategies.
var steppers = map[core.Cadence]Stepper{
	core.Once:     OnceStepper{},
	core.Daily:    DayStepper{Days: 1},
	core.Weekly:   DayStepper{Days: 7},
	core.Biweekly: DayStepper{Days: 14},
	core.Monthly:  MonthStepper{Months: 1},
	core.Yearly:   MonthStepper{Months: 12},
}

// StepperFor returns the strategy for a cadence.
func StepperFor(c core.Cadence) (Stepper, error) {
	s, ok := steppers[c]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cadence %q", core.ErrValidation, c)
	}
	return s, nil
}

// Occurrences returns the ascending occurrence dates of the series inside
// [from, to). The sequence is lazy and may be ranged over any number of times.
func Occurrences(anchor core.Date, cadence core.Cadence, from, to core.Date) (iter.Seq[core.Date], error) {
	s, err := StepperFor(cadence)
	if err != nil {
		return nil, err
	}
	return func(yield func(core.Date) bool) {
		if !from.Before(to) {
			return
		}
		for n := s.FirstIndex(anchor, from); ; n++ {
			d, ok := s.Nth(anchor, n)
			if !ok || !d.Before(to) {
				return
			}
			if !yield(d) {
				return
			}
		}
	}, nil
}

// IsOccurrence reports whether d is an occurrence date of the series.
func IsOccurrence(anchor core.Date, cadence core.Cadence, d core.Date) bool {
	seq, err := Occurrences(anchor, cadence, d, d.AddDays(1))
	if err != nil {
		return false
	}
	for range seq {
		return true
	}
	return false
}

// Collect drains a sequence into a slice.
func Collect(seq iter.Seq[core.Date]) []core.Date {
	var out []core.Date
	for d := range seq {
		out = append(out, d)
	}
	return out
}
