// Command fintrack-worker mirrors appended ledger records from the AMQP
// queue into a Google Sheets tab and exposes its metrics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(os.Stderr, slog.LevelInfo, log.ComponentWorker).Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Stdout, cfg.SlogLevel(), log.ComponentWorker)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config, logger *log.Logger) error {
	if err := cfg.ValidateMirror(); err != nil {
		return err
	}

	ctx, stop := cli.GracefulShutdown(parent, logger)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewPrometheus("fintrack_worker")
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	bc, err := mirrorConfig(cfg)
	if err != nil {
		return err
	}
	mirror, err := backend.NewSheetsStore(ctx, bc)
	if err != nil {
		return fmt.Errorf("create sheets mirror: %w", err)
	}
	logger.Info("Google Sheets mirror ready", "sheet", cfg.GoogleSheetName)

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect AMQP: %w", err)
	}
	defer consumer.Close()
	consumer.OnCircuitStateChange(func(name string, state gobreaker.State) {
		m.RecordCircuitState(name, int(state))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           metricsMux(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewMirrorWorker(mirror, m).Run(gctx, consumer)
	})
	g.Go(func() error {
		logger.Info("Serving worker metrics", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		logger.Info("Worker shutdown complete")
	}
	return err
}

// mirrorConfig points the backend config at the Sheets tab whatever
// DATA_BACKEND the service itself uses.
func mirrorConfig(cfg *config.Config) (backend.Config, error) {
	mirrored := *cfg
	mirrored.DataBackend = string(backend.SheetsBackend)
	return backend.FromAppConfig(&mirrored)
}

func metricsMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
