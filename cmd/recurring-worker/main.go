package main

import (
	"context"
	"os"
	"time"

	"famfinance/internal/amqp"
	"famfinance/internal/cli"
	"famfinance/internal/services"
)

const familyConcurrency = 4

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	converter := cli.InitConverter(cfg)

	// Transactions written here are announced so the ledger-worker mirrors them.
	var opts []services.Option
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPNotifyQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client), services.WithNotifier(amqp.NewNotifier(client)))
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled, executions will be mirrored by the periodic sweep only")
	}

	recurring := services.NewRecurringService(repo, converter, opts...)
	processor := services.NewRecurringProcessor(repo, recurring, familyConcurrency)
	processor.SetConvertOverdue(cfg.ConvertOverdue)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	go converter.Run(ctx, cfg.RatesRefreshInterval)

	logger.Info("Recurring expense processor configured",
		"interval", cfg.RecurringInterval,
		"convert_overdue", cfg.ConvertOverdue,
		"sqlite_db", cfg.SQLiteDBPath)

	run := func(ctx context.Context) {
		res, err := processor.ProcessAll(ctx)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		logger.Info("Recurring processing complete",
			"families", res.Families,
			"transactions_created", res.TransactionsCreated,
			"debts_created", res.DebtsCreated,
			"failed", res.Failed,
			"next_check", time.Now().Add(cfg.RecurringInterval).Format("15:04:05"))
	}

	logger.Info("Running initial recurring expense processing...")
	run(ctx)

	go func() {
		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped")
}
