package core

import (
	"errors"
	"fmt"
)

var (
	ErrDateFormat      = errors.New("invalid date format, expected DD-MM-YYYY")
	ErrInvalidRange    = errors.New("start date is after end date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrCorruptData     = errors.New("corrupt ledger data")
	ErrStore           = errors.New("ledger store failure")
)

// CorruptDataError reports a stored row that does not conform to the row schema.
// Row is 1-based and counts the header line.
type CorruptDataError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *CorruptDataError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("corrupt row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("corrupt row %d: field %s=%q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

func (e *CorruptDataError) Is(target error) bool { return target == ErrCorruptData }

// StoreError reports that the backing medium could not be read or written.
type StoreError struct {
	Op       string
	Location string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
