package main

import (
	"context"
	"errors"
	"os"
	"time"

	"orcamento/internal/amqp"
	"orcamento/internal/cli"
	"orcamento/internal/log"
	"orcamento/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	logger.Info("Starting orcamento-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	// Jobs run against the stack directly; the worker never re-queues.
	app, err := cli.NewApp(context.Background(), cfg, nil, logger)
	if err != nil {
		logger.Error("Failed to initialize report stack", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	jobs := worker.NewJobWorker(app.Reports, cfg.MinFiscalYear, cfg.MaxFiscalYear, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		amqpClient.Close()
		if err := app.Close(); err != nil {
			logger.Error("Ledger close error", log.FieldError, err)
		}
	})

	if err := amqpClient.Consume(ctx, jobs.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
