package ledger

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Summary holds the aggregate totals of a record set.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// Totals sums amounts per category. Net is Income - Expense; an empty input
// yields all zeros.
func Totals(records []core.Record) Summary {
	income, expense := decimal.Zero, decimal.Zero
	for _, r := range records {
		switch r.Category {
		case core.Income:
			income = income.Add(r.Amount)
		case core.Expense:
			expense = expense.Add(r.Amount)
		}
	}
	return Summary{
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}
}
