package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Point is one day of a series.
type Point struct {
	Date   core.Date
	Amount decimal.Decimal
}

// Series is an ordered list of daily points.
type Series []Point

// DailySeries sums the amounts of one category per calendar date. Only dates
// on which that category had activity are present.
func DailySeries(records []core.Record, category core.Category) map[core.Date]decimal.Decimal {
	out := make(map[core.Date]decimal.Decimal)
	for _, r := range records {
		if r.Category != category {
			continue
		}
		d := core.DateOf(r.Date.Time)
		if sum, ok := out[d]; ok {
			out[d] = sum.Add(r.Amount)
		} else {
			out[d] = r.Amount
		}
	}
	return out
}

// DateIndex returns the distinct dates present in records, ascending. Gaps
// between dates are not filled.
func DateIndex(records []core.Record) []core.Date {
	seen := make(map[core.Date]struct{}, len(records))
	index := make([]core.Date, 0, len(records))
	for _, r := range records {
		d := core.DateOf(r.Date.Time)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		index = append(index, d)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j].Time) })
	return index
}

// Align reindexes a sparse series onto index: one point per index date, in
// index order, zero where the series has no entry.
func Align(series map[core.Date]decimal.Decimal, index []core.Date) Series {
	out := make(Series, len(index))
	for i, d := range index {
		amount, ok := series[d]
		if !ok {
			amount = decimal.Zero
		}
		out[i] = Point{Date: d, Amount: amount}
	}
	return out
}

// Dates returns the dates of the series in order.
func (s Series) Dates() []core.Date {
	out := make([]core.Date, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Max returns the largest amount in the series, or zero when empty.
func (s Series) Max() decimal.Decimal {
	m := decimal.Zero
	for _, p := range s {
		if p.Amount.GreaterThan(m) {
			m = p.Amount
		}
	}
	return m
}
