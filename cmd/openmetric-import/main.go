package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"openmetric/internal/amqp"
	"openmetric/internal/backend"
	"openmetric/internal/cli"
	"openmetric/internal/config"
	"openmetric/internal/core"
	"openmetric/internal/log"
	"openmetric/internal/sources/files"
	"openmetric/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	var (
		dir       = flag.String("dir", "", "directory holding .evnt/.ret pairs (default DATA_DIR)")
		name      = flag.String("name", "", "base name of the pair to import (default DATA_BASE_NAME or the first pair)")
		events    = flag.String("events", "", "explicit events file, overrides -dir/-name")
		retention = flag.String("retention", "", "explicit retention file, used with -events")
		publish   = flag.Bool("publish", false, "publish records to AMQP instead of writing the SQL store")
	)
	flag.Parse()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentImport)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	pair, err := resolvePair(cfg, *dir, *name, *events, *retention)
	if err != nil {
		logger.Error("No data to import", log.FieldError, err)
		os.Exit(1)
	}

	ds, err := files.ReadPair(pair)
	if err != nil {
		logger.Error("Failed to read data pair", log.FieldError, err, log.FieldDataset, pair.Name)
		os.Exit(1)
	}

	bar := progressbar.Default(int64(len(ds.Events)+len(ds.Cohorts)), "importing "+ds.Name)
	step := func() { _ = bar.Add(1) }

	if *publish {
		err = publishDataset(ctx, logger, cfg, ds, step)
	} else {
		err = storeDataset(ctx, logger, cfg, ds, step)
	}
	_ = bar.Finish()

	if err != nil {
		logger.Error("Import failed", log.FieldError, err, log.FieldDataset, ds.Name)
		os.Exit(1)
	}
	logger.Info("Import complete",
		log.FieldDataset, ds.Name,
		log.FieldEvents, len(ds.Events),
		log.FieldCohorts, len(ds.Cohorts),
		"published", *publish)
}

// resolvePair picks explicit files when given, otherwise a pair from the
// data directory.
func resolvePair(cfg *config.Config, dir, name, events, retention string) (files.Pair, error) {
	if events != "" {
		if retention == "" {
			retention = strings.TrimSuffix(events, files.EventsExt) + files.RetentionExt
		}
		return files.Pair{
			Name:          strings.TrimSuffix(filepath.Base(events), filepath.Ext(events)),
			EventsPath:    events,
			RetentionPath: retention,
		}, nil
	}
	if dir == "" {
		dir = cfg.DataDir
	}
	if name == "" {
		name = cfg.DataBaseName
	}
	return files.New(dir, name).Resolve()
}

func storeDataset(ctx context.Context, logger *log.Logger, cfg *config.Config, ds core.Dataset, step func()) error {
	if !backend.BackendType(cfg.DataBackend).IsSQL() {
		return fmt.Errorf("direct import needs DATA_BACKEND sqlite or mysql, got %q", cfg.DataBackend)
	}
	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close()

	ingest, err := worker.NewIngestWorker(be.Events, be.Cohorts, logger)
	if err != nil {
		return err
	}
	return ingest.ImportDataset(ctx, ds, step)
}

func publishDataset(ctx context.Context, logger *log.Logger, cfg *config.Config, ds core.Dataset, step func()) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required with -publish")
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	for i, e := range ds.Events {
		if err := client.PublishEvent(ctx, e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		step()
	}
	for month, c := range ds.Cohorts {
		if err := client.PublishCohort(ctx, month, c); err != nil {
			return fmt.Errorf("cohort %s: %w", month, err)
		}
		step()
	}
	return nil
}
