// Package report renders query results for people: a record table with
// totals, a terminal chart of the aligned daily series, and chart data for
// JSON clients.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// NoEntries is printed instead of a table when the range matched nothing.
const NoEntries = "No entries found for the given date range."

// WriteTable prints the filtered records followed by the three totals.
func WriteTable(w io.Writer, res ledger.Result, symbol string) error {
	if res.Empty() {
		_, err := fmt.Fprintln(w, NoEntries)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tAmount\tCategory\tDescription")
	for _, r := range res.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.Date.String(),
			r.Amount.StringFixed(2),
			r.Category.String(),
			r.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	return WriteTotals(w, res.Totals, symbol)
}

// WriteTotals prints income, expense and net income lines.
func WriteTotals(w io.Writer, s ledger.Summary, symbol string) error {
	_, err := fmt.Fprintf(w, "Total Income: %s\nTotal Expense: %s\nNet Income: %s\n",
		core.FormatAmount(s.Income, symbol),
		core.FormatAmount(s.Expense, symbol),
		core.FormatAmount(s.Net, symbol))
	return err
}
