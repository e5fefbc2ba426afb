package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"openmetric/internal/amqp"
	"openmetric/internal/backend"
	"openmetric/internal/cli"
	"openmetric/internal/log"
	"openmetric/internal/worker"
)

const statsInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(logger *log.Logger) error {
	logger.Info("Starting openmetric-worker")
	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required")
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close()
	if !backend.BackendType(be.Name).IsSQL() {
		logger.Warn("Worker is writing to a non-SQL backend, stored data will not be shared",
			log.FieldSource, be.Name)
	}

	ingest, err := worker.NewIngestWorker(be.Events, be.Cohorts, logger)
	if err != nil {
		return err
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer amqpClient.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.Consume(gctx, ingest.HandleMessage)
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats := ingest.Stats()
				logger.Info("Ingest stats", "stored", stats.Stored, "rejected", stats.Rejected)
			}
		}
	})

	return g.Wait()
}
