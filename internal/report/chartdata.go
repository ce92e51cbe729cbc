package report

import (
	"fintrack/internal/ledger"
)

// ChartDataPoint represents a single data point for charts. Value is the
// exact decimal text with two places, e.g. "40.00".
type ChartDataPoint struct {
	Date  string `json:"date"`
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// ChartData is one named series over the shared date index.
type ChartData struct {
	ChartType string           `json:"chart_type"`
	Title     string           `json:"title"`
	Data      []ChartDataPoint `json:"data"`
	Period    string           `json:"period"`
}

// SeriesChart is the JSON shape of both aligned series.
type SeriesChart struct {
	Title   string    `json:"title"`
	Index   []string  `json:"index"`
	Income  ChartData `json:"income"`
	Expense ChartData `json:"expense"`
}

// NewSeriesChart converts a query result into chart data. Both series carry
// one point per index date, in index order.
func NewSeriesChart(res ledger.Result) SeriesChart {
	index := make([]string, len(res.Index))
	for i, d := range res.Index {
		index[i] = d.String()
	}
	period := res.Range.String()
	return SeriesChart{
		Title:   ChartTitle,
		Index:   index,
		Income:  chartData("Income", res.Income, period),
		Expense: chartData("Expense", res.Expense, period),
	}
}

func chartData(label string, s ledger.Series, period string) ChartData {
	points := make([]ChartDataPoint, len(s))
	for i, p := range s {
		points[i] = ChartDataPoint{
			Date:  p.Date.String(),
			Value: p.Amount.StringFixed(2),
			Label: label,
		}
	}
	return ChartData{
		ChartType: "line",
		Title:     label,
		Data:      points,
		Period:    period,
	}
}
