package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"orcamento/internal/amqp"
	"orcamento/internal/cache"
	"orcamento/internal/cli"
	apphttp "orcamento/internal/http"
	"orcamento/internal/log"
	"orcamento/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	logger.Info("Starting orcamento server", "port", cfg.Port, "backend", cfg.LedgerBackend)

	// Initialize AMQP publisher (optional)
	var (
		amqpClient *amqp.Client
		publisher  services.JobPublisher
	)
	if cfg.AMQPEnabled() {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, running jobs inline", log.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	app, err := cli.NewApp(context.Background(), cfg, publisher, logger)
	if err != nil {
		logger.Error("Failed to initialize report stack", log.FieldError, err)
		os.Exit(1)
	}

	// Periodic cleanup of both cache tiers
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(app.Reports.TreeCache())
	if app.Store != nil {
		cacheManager.Register(app.Store)
	}
	cacheManager.StartCleanup(cfg.CacheCleanupInterval)

	var warmer *services.CacheWarmer
	if cfg.CacheEnabled && cfg.CacheWarmInterval > 0 {
		warmer = services.NewCacheWarmer(app.Provider, services.CacheWarmerConfig{Interval: cfg.CacheWarmInterval}, logger)
	}

	checks := map[string]apphttp.Check{
		"ledger": app.Source.Ping,
	}
	if app.Store != nil {
		checks["cache"] = func(context.Context) error {
			_, err := os.Stat(app.Store.Dir())
			return err
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr: ":" + cfg.Port,
		Bounds: apphttp.SelectorBounds{
			MinFiscalYear: cfg.MinFiscalYear,
			MaxFiscalYear: cfg.MaxFiscalYear,
		},
		RequestsPerMinute: cfg.RateLimitPerMinute,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}, app.Reports, checks, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if warmer != nil {
			if err := warmer.Stop(shutdownCtx); err != nil {
				logger.Warn("Cache warmer stop error", log.FieldError, err)
			}
		}
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := app.Close(); err != nil {
			logger.Error("Ledger close error", log.FieldError, err)
		}
	})

	if err := app.Watch(ctx); err != nil {
		logger.Warn("Ledger watcher disabled", log.FieldError, err)
	}
	if warmer != nil {
		if err := warmer.Start(ctx); err != nil {
			logger.Warn("Cache warmer not started", log.FieldError, err)
		}
	}

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
