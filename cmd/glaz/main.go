package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"glaz/internal/accounttypes"
	"glaz/internal/amqp"
	"glaz/internal/backend"
	"glaz/internal/cache"
	"glaz/internal/cli"
	"glaz/internal/currency"
	apphttp "glaz/internal/http"
	"glaz/internal/log"
	"glaz/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	logger.Info("Storage backend initialized", "backend", backendCfg.Type)

	registry := accounttypes.NewRegistry(result.Backend, result.Backend)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, account events disabled", log.FieldError, err)
			amqpClient = nil
		} else {
			logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	rates := currency.NewService(currency.NewCBRClient(cfg.RatesURL, cfg.RatesTimeout), cfg.RatesCacheTTL)

	accounts, err := services.NewAccountService(result.Backend, registry, rates, amqpClient)
	if err != nil {
		logger.Error("Failed to load accounts", log.FieldError, err)
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
		os.Exit(1)
	}

	// File-level backups are only available when the backend exposes them.
	backupMgr, _ := result.Backend.(backend.BackupManager)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Accounts:      accounts,
		Registry:      registry,
		Rates:         rates,
		BackupManager: backupMgr,
		Retention:     cfg.BackupRetention,
		Port:          cfg.Port,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	caches := cache.NewManager()
	rates.RegisterCaches(caches)
	srv.RegisterCaches(caches)
	caches.StartCleanup(time.Minute)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		// Closes the backend and the AMQP connection.
		if err := accounts.Close(); err != nil {
			logger.Error("Failed to close account service", log.FieldError, err)
		}
	})

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.Info("Starting glaz server", "port", cfg.Port, "backend", backendCfg.Type)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
