package main

import (
	"context"
	"errors"
	"os"
	"time"

	"famfinance/internal/amqp"
	"famfinance/internal/backend"
	"famfinance/internal/cli"
	"famfinance/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger-worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	mirrorCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", "error", err)
		os.Exit(1)
	}
	mirror, err := backend.NewMirror(context.Background(), mirrorCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger mirror", "error", err, "backend", mirrorCfg.Type)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPNotifyQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(repo, mirror, mirror, worker.MirrorConfig{
		PollInterval: cfg.MirrorInterval,
		BatchSize:    cfg.MirrorBatchSize,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mirrorWorker.Stop(stopCtx); err != nil {
			logger.Error("Failed to stop mirror worker", "error", err)
		}
	})

	// Rows written while the worker was down are only found by a sweep.
	logger.Info("Performing startup sync check...")
	if err := mirrorWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := mirrorWorker.Start(ctx); err != nil {
		logger.Error("Failed to start mirror worker", "error", err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeLedgerEvents(ctx, mirrorWorker.HandleLedgerEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ledger event consumption failed", "error", err)
		}
	}()

	logger.Info("Ledger-worker running",
		"poll_interval", cfg.MirrorInterval,
		"batch_size", cfg.MirrorBatchSize,
		"backend", mirrorCfg.Type,
		"queue", cfg.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger-worker stopped")
}
