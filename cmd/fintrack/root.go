package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/entry"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// app carries what every subcommand needs once flags and config are
// resolved.
type app struct {
	in  io.Reader
	out io.Writer
	err io.Writer
	now func() time.Time

	envFile string
	file    string
	backend string
	verbose bool

	cfg      *config.Config
	logger   *log.Logger
	prompter *entry.Prompter
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, err: errOut, now: time.Now}

	root := &cobra.Command{
		Use:   "fintrack",
		Short: "Personal finance ledger",
		Long: "fintrack records income and expense transactions in a CSV ledger and\n" +
			"reports totals and daily series over a date range.\n\n" +
			"Run without a subcommand to add a transaction interactively.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAdd(cmd.Context(), addFlags{})
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.envFile, "env-file", "", "load environment from this file instead of ./.env")
	pf.StringVarP(&a.file, "file", "f", "", "ledger CSV file (overrides LEDGER_FILE)")
	pf.StringVar(&a.backend, "backend", "", "storage backend: csv, sqlite, sheets or memory (overrides DATA_BACKEND)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log at LOG_LEVEL instead of warnings only")

	root.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.queryCmd(),
		a.plotCmd(),
		a.serveCmd(),
		a.sheetsAuthCmd(),
	)
	return root
}

// setup loads .env and config, applies flag overrides and validates.
func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := cli.LoadEnvFile(a.envFile); err != nil {
			return err
		}
	} else {
		_ = cli.LoadEnvFile()
	}

	cfg := config.Load()
	if a.file != "" {
		cfg.LedgerFile = a.file
	}
	if a.backend != "" {
		cfg.DataBackend = a.backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	// Interactive commands keep stderr quiet unless asked; the server logs
	// at the configured level.
	level := cfg.SlogLevel()
	if !a.verbose && cmd.Name() != "serve" && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	a.logger = cli.SetupLogger(a.err, level, log.ComponentCLI)
	a.prompter = entry.NewPrompter(a.in, a.out).WithClock(a.now)
	return nil
}

// openBackend creates the configured store. Callers must Close the result.
func (a *app) openBackend(ctx context.Context) (*backend.BackendResult, error) {
	return cli.InitBackend(ctx, a.cfg, a.logger)
}

// openService wraps the configured store in a ledger service.
func (a *app) openService(ctx context.Context, opts ...services.Option) (*services.LedgerService, *backend.BackendResult, error) {
	res, err := a.openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]services.Option{services.WithMetrics(nil, a.cfg.DataBackend)}, opts...)
	return services.NewLedgerService(res.Store, opts...), res, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
