package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/amqp"
	"finanzas/internal/cli"
	"finanzas/internal/statement/google"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting finanzas-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// The worker reads committed transactions straight from SQLite; it is
	// the only writer of the sync_status column.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Statement export target (optional)
	var statementClient *google.Client
	if cfg.StatementSpreadsheetID != "" {
		var err error
		statementClient, err = google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize statement client", "error", err)
			os.Exit(1)
		}
		logger.Info("Statement client initialized", "spreadsheet_id", cfg.StatementSpreadsheetID)
	} else {
		logger.Info("Statement export disabled - no STATEMENT_SPREADSHEET_ID provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without a statement target there is nothing to consume or scan, so
	// the broker is not required either.
	if statementClient == nil {
		logger.Info("No statement target configured, idling until shutdown")
		<-ctx.Done()
		logger.Info("Worker stopped")
		return
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	statementWorker := worker.NewStatementWorker(sqliteRepo, statementClient, cfg.SyncBatchSize)

	// On startup, export anything left pending while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := statementWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit - continue with normal operation
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeTransactionRecorded(gctx, statementWorker.HandleRecordedMessage)
	})

	// Periodic pending scan backs up the message path.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := statementWorker.ProcessPendingTransactions(gctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
