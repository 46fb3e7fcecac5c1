package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/handlers"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/router"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/metrics"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage"
	"github.com/JeanGrijp/tryon-quota/internal/config"
	"github.com/JeanGrijp/tryon-quota/internal/core/services"
	"github.com/JeanGrijp/tryon-quota/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	policy, err := services.ParsePolicy(cfg.Quota.Policy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer closeStore()

	var (
		sink           metrics.Sink = metrics.NewNoopSink()
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink = metrics.NewPrometheusSink(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	svcCfg := services.Config{
		HourlyLimit: cfg.Quota.HourlyLimit,
		DailyLimit:  cfg.Quota.DailyLimit,
		Policy:      policy,
		Logger:      logger,
		Metrics:     sink,
	}
	limiter, err := services.NewRateLimiterService(store, svcCfg)
	if err != nil {
		return fmt.Errorf("failed to create limiter: %w", err)
	}
	admin, err := services.NewAdminService(store, svcCfg)
	if err != nil {
		return fmt.Errorf("failed to create admin service: %w", err)
	}

	if cfg.TryOn.UpstreamURL == "" {
		logger.Warn("TRYON_UPSTREAM_URL not set, /v2/tryon will answer 503 after admission")
	}
	if cfg.Admin.Token == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are disabled")
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router.New(router.Deps{
			Limiter:        limiter,
			Admin:          admin,
			Store:          store,
			Generator:      handlers.NewUpstreamGenerator(cfg.TryOn.UpstreamURL, cfg.TryOn.Timeout),
			Logger:         logger,
			Metrics:        sink,
			FailOpen:       cfg.Quota.FailOpen,
			AdminToken:     cfg.Admin.Token,
			MetricsHandler: metricsHandler,
			MetricsPath:    cfg.Metrics.Path,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"storage", cfg.Storage.Type,
			"policy", policy,
			"hourly_limit", cfg.Quota.HourlyLimit,
			"daily_limit", cfg.Quota.DailyLimit,
			"fail_open", cfg.Quota.FailOpen,
		)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}
