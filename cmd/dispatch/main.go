// Command dispatch is the composition root of the payment dispatch engine:
// a single cobra root command that wires every adapter explicitly (no
// package-level singletons) and bounds its lifecycle to a graceful HTTP
// shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lucas-de-lima/paydispatch/internal/audit"
	"github.com/lucas-de-lima/paydispatch/internal/breaker"
	"github.com/lucas-de-lima/paydispatch/internal/cache"
	"github.com/lucas-de-lima/paydispatch/internal/config"
	"github.com/lucas-de-lima/paydispatch/internal/dispatch"
	"github.com/lucas-de-lima/paydispatch/internal/health"
	"github.com/lucas-de-lima/paydispatch/internal/httpapi"
	"github.com/lucas-de-lima/paydispatch/internal/ledger"
	"github.com/lucas-de-lima/paydispatch/internal/logging"
	"github.com/lucas-de-lima/paydispatch/internal/metrics"
	"github.com/lucas-de-lima/paydispatch/internal/model"
	"github.com/lucas-de-lima/paydispatch/internal/processor"
	"github.com/lucas-de-lima/paydispatch/internal/retry"
	"github.com/lucas-de-lima/paydispatch/internal/summary"
)

func main() {
	root := &cobra.Command{
		Use:   "dispatch",
		Short: "Payment dispatch engine",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(context.Background())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, cfg.NodeEnv)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Connect(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	redisCache, err := cache.NewRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	auditStore, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	defaultClient := processor.New(model.ProcessorDefault, cfg.DefaultProcessorURL, nil)
	fallbackClient := processor.New(model.ProcessorFallback, cfg.FallbackProcessorURL, nil)

	recorder := metrics.New(time.Duration(cfg.P99ThresholdMs) * time.Millisecond)
	for _, c := range recorder.Collectors() {
		if err := prometheus.Register(c); err != nil {
			log.Warn().Err(err).Msg("metrics collector registration failed")
		}
	}

	aggregator := summary.New(redisCache, store)
	dispatcher := dispatch.New(
		defaultClient, fallbackClient,
		breaker.DefaultConfig(), retry.DefaultConfig(),
		store, aggregator, recorder, auditStore,
		cfg.SimulatePayments,
	)

	poller := health.New(map[model.ProcessorName]*processor.Client{
		model.ProcessorDefault:  defaultClient,
		model.ProcessorFallback: fallbackClient,
	}, redisCache)
	go poller.Run(ctx)

	server := httpapi.New(dispatcher, aggregator, redisCache, store, recorder, auditStore)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("dispatch engine listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

