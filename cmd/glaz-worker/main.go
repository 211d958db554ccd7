package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"glaz/internal/amqp"
	"glaz/internal/cli"
	"glaz/internal/log"
	"glaz/internal/storage"
	"glaz/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent("worker")
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting glaz-worker")

	// The scheduler backs up the file store directly; it runs alongside the
	// server process and must point at the same DATA_DIR.
	store, err := storage.NewFileStore(cfg.DataDir, cfg.BackupRetention)
	if err != nil {
		logger.Error("Failed to open data directory", log.FieldError, err, "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	defer store.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, audit journal disabled", log.FieldError, err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, running backup scheduler only")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	g, ctx := errgroup.WithContext(shutdownCtx)

	scheduler := worker.NewBackupScheduler(store, cfg.BackupInterval)
	logger.Info("Backup scheduler configured", "interval", cfg.BackupInterval)
	g.Go(func() error {
		err := scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if amqpClient != nil {
		audit := worker.NewAuditWorker(cfg.AuditJournalPath)
		logger.Info("Audit journal configured", "path", cfg.AuditJournalPath)
		g.Go(func() error {
			err := audit.Consume(ctx, amqpClient)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped gracefully")
}
