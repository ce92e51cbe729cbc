package ledger

import (
	"fintrack/internal/core"
)

// Result is everything a presentation sink needs for one range query.
type Result struct {
	Range   Range
	Records []core.Record
	Totals  Summary
	Index   []core.Date
	Income  Series
	Expense Series
}

// Empty reports whether no record matched the range.
func (r Result) Empty() bool {
	return len(r.Records) == 0
}

// Query filters records to [start, end] and derives the totals and both
// aligned daily series from the filtered view.
func Query(records []core.Record, start, end core.Date) (Result, error) {
	rng, err := NewRange(start, end)
	if err != nil {
		return Result{}, err
	}
	return rng.Query(records), nil
}

// Query runs the full pipeline for an already validated range.
func (r Range) Query(records []core.Record) Result {
	view := r.Apply(records)
	index := DateIndex(view)
	return Result{
		Range:   r,
		Records: view,
		Totals:  Totals(view),
		Index:   index,
		Income:  Align(DailySeries(view, core.Income), index),
		Expense: Align(DailySeries(view, core.Expense), index),
	}
}
