package main

import (
	"context"
	"errors"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	"conti/internal/log"
	"conti/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Startup failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	if cfg.DataBackend != backend.SQLiteBackend.String() {
		logger.Warn("The worker reads its own copy of a memory backend; exports will not see API writes",
			"backend", cfg.DataBackend)
	}
	store := cli.OpenStore(logger, cfg)
	defer store.Cleanup()

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exporter, err := backend.NewFactory(logger.Logger).CreateExporter(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err)
		os.Exit(1)
	}
	exportWorker := worker.NewExportWorker(store.Store, exporter)

	janitor := worker.NewJanitor(store.Store)
	if err := janitor.Schedule(ctx, cfg.JanitorSchedule); err != nil {
		logger.Error("Failed to schedule janitor", log.FieldError, err)
		os.Exit(1)
	}
	if removed, err := janitor.RunOnce(ctx); err != nil {
		logger.Error("Startup override sweep failed", log.FieldError, err)
	} else {
		logger.Info("Startup override sweep complete", "removed", removed)
	}
	janitor.Start()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		cancel()
		janitor.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
	})

	go func() {
		err := amqpClient.ConsumeLedgerEvents(ctx, exportWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped", "janitor_runs", janitor.Runs())
}
