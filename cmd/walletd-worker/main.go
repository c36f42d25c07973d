package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"walletd/internal/amqp"
	"walletd/internal/backend"
	"walletd/internal/cli"
	"walletd/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting walletd-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := backend.NewFactory(logger)
	result, err := factory.CreateBackend(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cleanupCancel()
			if err := result.Cleanup(cleanupCtx); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()
	amqpClient.SetPrefetch(cfg.AuditBatchSize)

	auditWorker := worker.NewAuditWorker(result.Audit)

	go func() {
		err := amqpClient.ConsumeMutationEvents(ctx, func(ev *amqp.MutationEvent) error {
			return auditWorker.HandleMutationEvent(ctx, ev)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Event consumption failed", "error", err)
		}
		cancel()
	}()

	// Periodic progress log so a stalled consumer is visible in the logs.
	ticker := time.NewTicker(cfg.AuditInterval)
	defer ticker.Stop()

	go func() {
		var last int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				total := auditWorker.Processed()
				logger.Info("Audit worker progress",
					"processed_total", total,
					"processed_since_last", total-last)
				last = total
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(2 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
