package core

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the ledger and bill services wraps
// exactly one of these so the boundary layer can map it with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrAtomicity  = errors.New("atomic unit could not commit")
)

var (
	ErrMissingScope     = fmt.Errorf("%w: missing user scope", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyAccount     = fmt.Errorf("%w: empty account", ErrValidation)
	ErrEmptyCategory    = fmt.Errorf("%w: empty category", ErrValidation)
	ErrInvalidCadence   = fmt.Errorf("%w: invalid cadence", ErrValidation)
	ErrInvalidCurrency  = fmt.Errorf("%w: invalid currency code", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: invalid account kind", ErrValidation)
	ErrInvalidType      = fmt.Errorf("%w: invalid category type", ErrValidation)
	ErrInvalidWindow    = fmt.Errorf("%w: window end must be after start", ErrValidation)
	ErrEmptyPatch       = fmt.Errorf("%w: nothing to update", ErrValidation)
	ErrNestingTooDeep   = fmt.Errorf("%w: categories nest at most one level", ErrValidation)
)

var (
	ErrAccountNotFound     = fmt.Errorf("%w: account", ErrNotFound)
	ErrCategoryNotFound    = fmt.Errorf("%w: category", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ErrNotFound)
	ErrBillNotFound        = fmt.Errorf("%w: bill", ErrNotFound)
	ErrInstanceNotFound    = fmt.Errorf("%w: bill instance", ErrNotFound)
)

var (
	ErrAlreadyPaid            = fmt.Errorf("%w: instance already paid", ErrConflict)
	ErrNotPaid                = fmt.Errorf("%w: instance not paid", ErrConflict)
	ErrAlreadyDeleted         = fmt.Errorf("%w: instance already deleted", ErrConflict)
	ErrNotATransfer           = fmt.Errorf("%w: transaction is not a transfer", ErrConflict)
	ErrTransferLeg            = fmt.Errorf("%w: transaction is a transfer leg", ErrConflict)
	ErrSameAccountTransfer    = fmt.Errorf("%w: transfer origin and destination are the same account", ErrConflict)
	ErrPaidOccurrenceOrphaned = fmt.Errorf("%w: edit would orphan a paid occurrence", ErrConflict)
)
