package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/entry"
	"fintrack/internal/ledger"
	"fintrack/internal/report"
)

type rangeFlags struct {
	start string
	end   string
	width int
}

func (f *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first date, DD-MM-YYYY (asked for when omitted)")
	cmd.Flags().StringVar(&f.end, "end", "", "last date, DD-MM-YYYY (asked for when omitted)")
	cmd.Flags().IntVar(&f.width, "width", 0, "length of the longest chart bar")
}

func (a *app) queryCmd() *cobra.Command {
	var (
		f    rangeFlags
		plot bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List transactions and totals for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.runQuery(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := report.WriteTable(a.out, res, a.cfg.CurrencySymbol); err != nil {
				return err
			}
			if plot && !res.Empty() {
				a.printf("\n%s\n", a.chart(res, f))
			}
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&plot, "plot", false, "also draw the income and expense chart")
	return cmd
}

func (a *app) plotCmd() *cobra.Command {
	var f rangeFlags
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Chart daily income and expense for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.runQuery(cmd.Context(), f)
			if err != nil {
				return err
			}
			a.printf("%s\n", a.chart(res, f))
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) chart(res ledger.Result, f rangeFlags) string {
	return report.RenderChart(res, report.ChartOptions{BarWidth: f.width, Symbol: a.cfg.CurrencySymbol})
}

func (a *app) runQuery(ctx context.Context, f rangeFlags) (ledger.Result, error) {
	start, end, err := a.resolveRange(f)
	if err != nil {
		return ledger.Result{}, err
	}

	svc, res, err := a.openService(ctx)
	if err != nil {
		return ledger.Result{}, err
	}
	defer res.Close()

	return svc.Query(ctx, start, end)
}

// resolveRange parses the bounds given as flags and asks for the missing
// ones. Neither bound has a default.
func (a *app) resolveRange(f rangeFlags) (core.Date, core.Date, error) {
	if f.start == "" && f.end == "" {
		return a.prompter.Range()
	}

	bound := func(flag, prompt, label string) (core.Date, error) {
		if flag == "" {
			return a.prompter.Date(prompt, false)
		}
		d, err := core.ParseDate(flag)
		if err != nil {
			return core.Date{}, fmt.Errorf("%s: %w", label, err)
		}
		return d, nil
	}

	start, err := bound(f.start, entry.PromptStart, "start date")
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	end, err := bound(f.end, entry.PromptEnd, "end date")
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	return start, end, nil
}
