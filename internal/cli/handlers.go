package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/BartekS5/crm-migrate/internal/config"
	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/internal/metrics"
	"github.com/BartekS5/crm-migrate/internal/schema"
	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/store"
)

// connections holds the opened source and destination. They are the same
// connection when DEST_URL is unset or equal to SOURCE_URL.
type connections struct {
	source *store.Opened
	dest   *store.Opened
}

func openStores(ctx context.Context, cfg *config.Config) (*connections, error) {
	if cfg.SourceURL == "" {
		return nil, errors.New("SOURCE_URL (or --source) is required")
	}
	opts := store.Options{
		MongoDatabase: cfg.MongoDatabase,
		SupabaseURL:   cfg.SupabaseURL,
		SupabaseKey:   cfg.SupabaseKey,
	}

	src, err := store.Open(ctx, cfg.SourceURL, opts)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	conns := &connections{source: src, dest: src}
	if dst := cfg.Destination(); dst != cfg.SourceURL {
		conns.dest, err = store.Open(ctx, dst, opts)
		if err != nil {
			src.Store.Close()
			return nil, fmt.Errorf("open destination: %w", err)
		}
	}
	return conns, nil
}

func (c *connections) Close() {
	if c.dest != c.source {
		c.dest.Store.Close()
	}
	c.source.Store.Close()
}

// schemaManager returns what can create destination tables for o, or nil.
func schemaManager(o *store.Opened) store.SchemaManager {
	if o.DB != nil {
		return schema.NewManager(o.DB, o.Dialect)
	}
	if sm, ok := o.Store.(store.SchemaManager); ok {
		return sm
	}
	return nil
}

func pipelineOptions(cfg *config.Config) etl.Options {
	return etl.Options{
		DryRun:         cfg.DryRun,
		BatchSize:      cfg.BatchSize,
		WriteBatchSize: cfg.WriteBatchSize,
		MaxIterations:  cfg.MaxIterations,
		MaxRows:        cfg.MaxRows,
		CapPolicy:      etl.CapPolicy(cfg.CapPolicy),
		OnReadError:    etl.ReadErrorPolicy(cfg.OnReadError),
		ReadRetries:    cfg.ReadRetries,
		BatchDelay:     cfg.BatchDelay,
		CreateSchema:   cfg.CreateSchema,
		Verify:         cfg.Verify,
		CheckpointPath: cfg.CheckpointPath,
	}
}

// runJob runs job end to end and always prints the report, even when the
// run failed.
func runJob(ctx context.Context, cfg *config.Config, job etl.Job) error {
	conns, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	if cfg.DryRun {
		logger.Info("[DRY RUN] No destination writes will be made.")
	}

	pipeline := etl.NewPipeline(job, conns.source.Store, conns.dest.Store, schemaManager(conns.dest), pipelineOptions(cfg))
	report, runErr := pipeline.Run(ctx)

	report.Print(os.Stdout)
	if cfg.ReportPath != "" {
		if err := report.WriteJSON(cfg.ReportPath); err != nil {
			logger.Errorf("Could not write report: %v", err)
		} else {
			logger.Infof("Report written to %s", cfg.ReportPath)
		}
	}
	if cfg.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.MetricsPath, report); err != nil {
			logger.Errorf("Could not write metrics: %v", err)
		}
	}
	return runErr
}
