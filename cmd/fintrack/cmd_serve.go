package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func (a *app) serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func (a *app) runServe(parent context.Context) error {
	logger := a.logger.WithComponent(log.ComponentApp)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewPrometheus("fintrack")
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	res, err := a.openBackend(parent)
	if err != nil {
		return err
	}

	opts := []services.Option{
		services.WithMetrics(m, a.cfg.DataBackend),
		services.WithQueryCache(a.cfg.QueryCacheSize, a.cfg.QueryCacheTTL),
	}

	// Event publishing is optional and never blocks startup: the ledger
	// works without a broker.
	var events *amqp.Client
	if a.cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, record events disabled", log.FieldError, err)
		} else {
			publisher.OnCircuitStateChange(func(name string, state gobreaker.State) {
				m.RecordCircuitState(name, int(state))
			})
			events = publisher
			opts = append(opts, services.WithPublisher(publisher))
			logger.Info("Publishing record events", "exchange", a.cfg.AMQPExchange)
		}
	}

	// svc.Close releases the publisher and the store.
	svc := services.NewLedgerService(res.Store, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Close failed", log.FieldError, err)
		}
	}()

	if err := svc.Init(parent); err != nil {
		return err
	}

	caches := cache.NewManager()
	if c := svc.Cache(); c != nil {
		caches.Register(c)
	}
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	serverOpts := []apphttp.Option{
		apphttp.WithLogger(a.logger),
		apphttp.WithMetrics(m, registry),
		apphttp.WithRateLimit(a.cfg.RateLimitRPM),
	}
	if events != nil {
		serverOpts = append(serverOpts, apphttp.WithEventCircuit(events))
	}
	srv := apphttp.NewServer(":"+a.cfg.Port, svc, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting fintrack server", "port", a.cfg.Port, log.FieldBackend, a.cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-parent.Done():
		logger.Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}
