// Package ledger is the query and aggregation engine: it filters a record set
// by an inclusive date range, totals it per category and resamples it into
// daily series aligned on a shared date index.
//
// Everything here is a pure function over an explicit record slice; loading
// and persisting records is the job of the records package.
package ledger

import (
	"fmt"

	"fintrack/internal/core"
)

// Range is an inclusive [Start, End] calendar interval.
type Range struct {
	Start core.Date
	End   core.Date
}

// NewRange checks start <= end. A reversed range is an error, never swapped.
func NewRange(start, end core.Date) (Range, error) {
	if start.Compare(end) > 0 {
		return Range{}, fmt.Errorf("%w: %s > %s", core.ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// ParseRange parses both bounds as DD-MM-YYYY and validates their order.
func ParseRange(start, end string) (Range, error) {
	s, err := core.ParseDate(start)
	if err != nil {
		return Range{}, fmt.Errorf("start date: %w", err)
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return Range{}, fmt.Errorf("end date: %w", err)
	}
	return NewRange(s, e)
}

// Contains reports whether d's calendar day lies within the range, both
// ends included, the same day bucketing DailySeries uses.
func (r Range) Contains(d core.Date) bool {
	return r.Start.Compare(d) <= 0 && d.Compare(r.End) <= 0
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// Filter returns the records dated within [start, end], in their original
// order. An empty result is a valid answer, not an error.
func Filter(records []core.Record, start, end core.Date) ([]core.Record, error) {
	rng, err := NewRange(start, end)
	if err != nil {
		return nil, err
	}
	return rng.Apply(records), nil
}

// Apply is Filter for an already validated range.
func (r Range) Apply(records []core.Record) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, rec := range records {
		if r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}
