package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"famfinance/internal/amqp"
	"famfinance/internal/attachments"
	"famfinance/internal/auth"
	"famfinance/internal/cache"
	"famfinance/internal/cli"
	apphttp "famfinance/internal/http"
	"famfinance/internal/log"
	"famfinance/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	converter := cli.InitConverter(cfg)

	var opts []services.Option
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPNotifyQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, ledger events disabled", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client), services.WithNotifier(amqp.NewNotifier(client)))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled, ledger events will not be published")
	}

	var files *attachments.FileStore
	if cfg.AttachmentsDir != "" {
		fs, err := attachments.NewFileStore(cfg.AttachmentsDir, cfg.AttachmentsBaseURL)
		if err != nil {
			logger.Warn("Attachment storage unavailable", "error", err, "dir", cfg.AttachmentsDir)
		} else {
			files = fs
		}
	}

	janitor := cache.NewJanitor()
	categories := services.NewCategoryCatalog(repo, time.Hour)
	janitor.Register(categories.Cache())
	janitor.Start(10 * time.Minute)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	deps := apphttp.Deps{
		Store:              repo,
		Rates:              converter,
		Tokens:             tokens,
		Auth:               services.NewAuthService(repo, tokens),
		Ledger:             services.NewLedgerService(repo, converter, opts...),
		Debts:              services.NewDebtService(repo, converter, opts...),
		Goals:              services.NewGoalService(repo, converter, opts...),
		Recurring:          services.NewRecurringService(repo, converter, opts...),
		Budgets:            services.NewBudgetService(repo, converter, opts...),
		Settings:           services.NewSettingsService(repo, converter, opts...),
		Categories:         categories,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             log.FromSlog(logger, log.ComponentHTTP),
	}
	if files != nil {
		deps.Attachments = files
		deps.AttachmentsDir = files.Dir()
		deps.AttachmentsPath = cfg.AttachmentsBaseURL
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		janitor.Stop()
	})

	go converter.Run(ctx, cfg.RatesRefreshInterval)

	logger.Info("Starting famfinance server",
		"port", cfg.Port,
		"base_currency", cfg.BaseCurrency,
		"db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
