// Package records declares the record store port and the canonical row
// schema shared by every tabular backend.
package records

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// Store is an append-only record store.
	Store interface {
		// EnsureInitialized creates the store with the canonical header when it
		// is absent. It never truncates or rewrites an existing store.
		EnsureInitialized(ctx context.Context) error
		// Append writes one record at the end of the store, whole or not at all.
		Append(ctx context.Context, r core.Record) error
		// LoadAll returns every record in append order. A row that does not
		// match the schema aborts the load with a *core.CorruptDataError.
		LoadAll(ctx context.Context) ([]core.Record, error)
	}

	// Locator is implemented by stores that can describe where they live.
	Locator interface {
		Location() string
	}
)

// Header is the canonical column order of every tabular store.
var Header = []string{"Date", "Amount", "Category", "Description"}

// EncodeRow renders a record in Header order.
func EncodeRow(r core.Record) []string {
	return []string{r.Date.String(), r.Amount.String(), r.Category.String(), r.Description}
}

// CheckHeader verifies the first row of a store.
func CheckHeader(fields []string) error {
	if len(fields) != len(Header) {
		return &core.CorruptDataError{Row: 1, Err: fmt.Errorf("header has %d columns, want %v", len(fields), Header)}
	}
	for i, name := range Header {
		if fields[i] != name {
			return &core.CorruptDataError{Row: 1, Field: name, Value: fields[i], Err: fmt.Errorf("unexpected header column %d", i+1)}
		}
	}
	return nil
}

// DecodeRow parses one data row against the strict schema. row is the 1-based
// line number including the header, used only for error reporting.
func DecodeRow(row int, fields []string) (core.Record, error) {
	if len(fields) != len(Header) {
		return core.Record{}, &core.CorruptDataError{Row: row, Err: fmt.Errorf("row has %d columns, want %d", len(fields), len(Header))}
	}
	date, err := core.ParseDate(fields[0])
	if err != nil {
		return core.Record{}, &core.CorruptDataError{Row: row, Field: Header[0], Value: fields[0], Err: err}
	}
	amount, err := core.ParseAmount(fields[1])
	if err != nil {
		return core.Record{}, &core.CorruptDataError{Row: row, Field: Header[1], Value: fields[1], Err: err}
	}
	category, err := core.ParseCategory(fields[2])
	if err != nil {
		return core.Record{}, &core.CorruptDataError{Row: row, Field: Header[2], Value: fields[2], Err: err}
	}
	return core.Record{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: fields[3],
	}, nil
}
