package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const (
	ChartTitle      = "Income and Expense Over Time"
	defaultBarWidth = 40
)

var (
	incomeColor  = lipgloss.Color("#2e7d32")
	expenseColor = lipgloss.Color("#c62828")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	incomeStyle  = lipgloss.NewStyle().Foreground(incomeColor)
	expenseStyle = lipgloss.NewStyle().Foreground(expenseColor)
	emptyStyle   = lipgloss.NewStyle().Faint(true)
	dateStyle    = lipgloss.NewStyle().Bold(true)
)

// ChartOptions controls terminal chart rendering.
type ChartOptions struct {
	// BarWidth is the length of the longest bar; zero means 40 cells.
	BarWidth int
	Symbol   string
}

// RenderChart draws one income bar and one expense bar per date of the
// result's shared index, scaled to the largest amount in either series.
func RenderChart(res ledger.Result, opts ChartOptions) string {
	if res.Empty() {
		return NoEntries
	}
	width := opts.BarWidth
	if width <= 0 {
		width = defaultBarWidth
	}

	peak := decimal.Max(res.Income.Max(), res.Expense.Max())

	var b strings.Builder
	b.WriteString(titleStyle.Render(ChartTitle))
	b.WriteString("\n")
	b.WriteString(incomeStyle.Render("█ Income") + "  " + expenseStyle.Render("█ Expense"))
	b.WriteString("\n")

	for i, date := range res.Index {
		b.WriteString("\n")
		b.WriteString(dateStyle.Render(date.String()))
		b.WriteString("\n")
		b.WriteString(bar("Income ", res.Income[i].Amount, peak, width, incomeStyle, opts.Symbol))
		b.WriteString("\n")
		b.WriteString(bar("Expense", res.Expense[i].Amount, peak, width, expenseStyle, opts.Symbol))
		b.WriteString("\n")
	}
	return b.String()
}

func bar(label string, amount, peak decimal.Decimal, width int, style lipgloss.Style, symbol string) string {
	filled := barLength(amount, peak, width)
	return fmt.Sprintf("  %s %s%s %s",
		style.Render(label),
		style.Render(strings.Repeat("█", filled)),
		emptyStyle.Render(strings.Repeat("░", width-filled)),
		core.FormatAmount(amount, symbol))
}

// barLength scales amount to width cells; any positive amount gets at least one.
func barLength(amount, peak decimal.Decimal, width int) int {
	if !amount.IsPositive() || !peak.IsPositive() {
		return 0
	}
	n := int(amount.Mul(decimal.NewFromInt(int64(width))).Div(peak).Round(0).IntPart())
	if n < 1 {
		n = 1
	}
	if n > width {
		n = width
	}
	return n
}
