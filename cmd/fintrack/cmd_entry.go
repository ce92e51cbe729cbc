package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/records"
)

// initializer is implemented by stores that can report whether
// initialization created them.
type initializer interface {
	Initialize(ctx context.Context) (bool, error)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger with its header if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			_, err = a.initialize(cmd.Context(), res.Store)
			return err
		},
	}
}

// initialize prepares store and tells the user when a new file was made.
func (a *app) initialize(ctx context.Context, store records.Store) (bool, error) {
	ini, ok := store.(initializer)
	if !ok {
		if err := store.EnsureInitialized(ctx); err != nil {
			return false, fmt.Errorf("initialize store: %w", err)
		}
		return false, nil
	}

	created, err := ini.Initialize(ctx)
	if err != nil {
		return false, fmt.Errorf("initialize store: %w", err)
	}
	if created {
		a.printf("Created new CSV file: %s\n", location(store))
	}
	return created, nil
}

func location(store records.Store) string {
	if l, ok := store.(records.Locator); ok {
		return l.Location()
	}
	return "unknown"
}

type addFlags struct {
	date        string
	amount      string
	category    string
	description string
}

// given reports whether the record was given on the command line.
func (f addFlags) given() bool {
	return f.date != "" || f.amount != "" || f.category != "" || f.description != ""
}

func (a *app) addCmd() *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction",
		Long: "Add one income or expense transaction. Without flags every field is\n" +
			"asked for interactively; with flags --amount and --category are required\n" +
			"and --date defaults to today.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAdd(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date, DD-MM-YYYY (default today)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "positive amount, e.g. 40.50")
	cmd.Flags().StringVar(&f.category, "category", "", "I/Income or E/Expense")
	cmd.Flags().StringVar(&f.description, "description", "", "free text description")
	return cmd
}

func (a *app) runAdd(ctx context.Context, f addFlags) error {
	svc, res, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	if _, err := a.initialize(ctx, res.Store); err != nil {
		return err
	}

	var r core.Record
	if f.given() {
		r, err = a.recordFromFlags(f)
	} else {
		r, err = a.prompter.Record()
	}
	if err != nil {
		return err
	}

	if err := svc.AddRecord(ctx, r); err != nil {
		return err
	}
	a.printf("Entry added successfully\n")
	return nil
}

func (a *app) recordFromFlags(f addFlags) (core.Record, error) {
	date := core.DateOf(a.now())
	if f.date != "" {
		d, err := core.ParseDate(strings.TrimSpace(f.date))
		if err != nil {
			return core.Record{}, err
		}
		date = d
	}

	if f.amount == "" {
		return core.Record{}, fmt.Errorf("%w: --amount is required", core.ErrInvalidAmount)
	}
	amount, err := core.ParseUserAmount(f.amount)
	if err != nil {
		return core.Record{}, err
	}

	category, err := parseCategoryFlag(f.category)
	if err != nil {
		return core.Record{}, err
	}

	r := core.Record{Date: date, Amount: amount, Category: category, Description: f.description}
	return r, r.Validate()
}

// parseCategoryFlag accepts a category word or its initial, case-insensitively.
func parseCategoryFlag(s string) (core.Category, error) {
	in := strings.TrimSpace(s)
	for _, c := range core.Categories() {
		word := c.String()
		if strings.EqualFold(in, word) || strings.EqualFold(in, word[:1]) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (use I/Income or E/Expense)", core.ErrInvalidCategory, s)
}
