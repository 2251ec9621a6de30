package main

import (
	"context"
	"errors"
	"os"
	"time"

	"paga/internal/amqp"
	"paga/internal/cache"
	"paga/internal/cli"
	"paga/internal/log"
	"paga/internal/sheets"
	gsheet "paga/internal/sheets/google"
	mem "paga/internal/sheets/memory"
	"paga/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(nil, log.ComponentWorker, os.Stdout)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg, log.ComponentWorker, os.Stdout)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the journal worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	var journal sheets.JournalWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		journal = client
		logger.Info("Journaling to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		journal = mem.New()
		logger.Info("Google Sheets disabled - journaling in memory only")
	}

	amqpClient, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 5)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	journalWorker := worker.NewJournalWorker(journal, logger)
	caches := cache.NewManager(logger)
	caches.Register(journalWorker.SeenCache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
	err = amqpClient.ConsumeLedgerEvents(ctx, journalWorker.HandleLedgerEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
