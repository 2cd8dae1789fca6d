// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/BartekS5/crm-migrate/internal/config"
	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/spf13/cobra"
)

// Exit codes returned by the binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitAborted = 130
)

// RootOptions holds the flags shared by every command. Flags override the
// environment only when given explicitly.
type RootOptions struct {
	Config *config.Config

	SourceURL      string
	DestURL        string
	DryRun         bool
	BatchSize      int
	WriteBatchSize int
	MaxIterations  int
	MaxRows        int
	BatchDelay     time.Duration
	ReadRetries    int
	MonthsBack     int
	CutoffDate     string
	CapPolicy      string
	OnReadError    string
	CreateSchema   bool
	Verify         bool
	ReportPath     string
	MetricsPath    string
	CheckpointPath string
	LogLevel       string
	LogFile        string
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}

	rootCmd := &cobra.Command{
		Use:   "crm-migrate",
		Short: "crm-migrate - batched, resumable data migrations for the CRM",
		Long: `crm-migrate pages through a source table, transforms each row and writes the
result in bounded batches with idempotent upserts or key-list deletes. Runs can be
dry-run, capped, verified and resumed from a checkpoint.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.SourceURL, "source", "", "Source store URL (SOURCE_URL)")
	f.StringVar(&opts.DestURL, "dest", "", "Destination store URL, defaults to the source (DEST_URL)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "Read and transform but do not write (DRY_RUN)")
	f.IntVarP(&opts.BatchSize, "batch-size", "b", 100, "Rows per read page (BATCH_SIZE)")
	f.IntVar(&opts.WriteBatchSize, "write-batch-size", 50, "Records per write call (WRITE_BATCH_SIZE)")
	f.IntVar(&opts.MaxIterations, "max-iterations", 0, "Stop after this many pages, 0 for no cap (MAX_ITERATIONS)")
	f.IntVar(&opts.MaxRows, "max-rows", 0, "Stop after this many source rows, 0 for no cap (MAX_ROWS)")
	f.DurationVar(&opts.BatchDelay, "batch-delay", 0, "Pause between pages, e.g. 200ms (BATCH_DELAY)")
	f.IntVar(&opts.ReadRetries, "read-retries", 2, "Retries for a failed page read (READ_RETRIES)")
	f.IntVar(&opts.MonthsBack, "months-back", 0, "Scope rows by age in months (MONTHS_BACK)")
	f.StringVar(&opts.CutoffDate, "cutoff-date", "", "Scope rows by date, YYYY-MM-DD (CUTOFF_DATE)")
	f.StringVar(&opts.CapPolicy, "cap-policy", config.CapPolicyStop, "What a cap does: stop or fail (CAP_POLICY)")
	f.StringVar(&opts.OnReadError, "on-read-error", config.ReadErrorAbort, "What a failed page read does: abort or skip (ON_READ_ERROR)")
	f.BoolVar(&opts.CreateSchema, "create-schema", false, "Create missing destination tables (CREATE_SCHEMA)")
	f.BoolVar(&opts.Verify, "verify", true, "Re-count the destination after the run (VERIFY)")
	f.StringVar(&opts.ReportPath, "report", "", "Write the JSON report to this file (REPORT_PATH)")
	f.StringVar(&opts.MetricsPath, "metrics", "", "Write Prometheus textfile metrics to this file (METRICS_PATH)")
	f.StringVar(&opts.CheckpointPath, "checkpoint", "", "Resume from and save progress to this file (CHECKPOINT_PATH)")
	f.StringVar(&opts.LogLevel, "log-level", "info", "debug, info, warn or error (LOG_LEVEL)")
	f.StringVar(&opts.LogFile, "log-file", "", "Also append logs to this file (LOG_FILE)")

	rootCmd.AddCommand(NewMigrateCmd(opts), NewCleanupCmd(opts), NewCountCmd(opts))
	return rootCmd
}

// load reads the environment, applies explicitly set flags on top, validates
// and configures logging.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("source", func() { cfg.SourceURL = o.SourceURL })
	set("dest", func() { cfg.DestURL = o.DestURL })
	set("dry-run", func() { cfg.DryRun = o.DryRun })
	set("batch-size", func() { cfg.BatchSize = o.BatchSize })
	set("write-batch-size", func() { cfg.WriteBatchSize = o.WriteBatchSize })
	set("max-iterations", func() { cfg.MaxIterations = o.MaxIterations })
	set("max-rows", func() { cfg.MaxRows = o.MaxRows })
	set("batch-delay", func() { cfg.BatchDelay = o.BatchDelay })
	set("read-retries", func() { cfg.ReadRetries = o.ReadRetries })
	set("months-back", func() { cfg.MonthsBack = o.MonthsBack })
	set("cap-policy", func() { cfg.CapPolicy = o.CapPolicy })
	set("on-read-error", func() { cfg.OnReadError = o.OnReadError })
	set("create-schema", func() { cfg.CreateSchema = o.CreateSchema })
	set("verify", func() { cfg.Verify = o.Verify })
	set("report", func() { cfg.ReportPath = o.ReportPath })
	set("metrics", func() { cfg.MetricsPath = o.MetricsPath })
	set("checkpoint", func() { cfg.CheckpointPath = o.CheckpointPath })
	set("log-level", func() { cfg.LogLevel = o.LogLevel })
	set("log-file", func() { cfg.LogFile = o.LogFile })
	if flags.Changed("cutoff-date") {
		t, err := config.ParseDate(o.CutoffDate)
		if err != nil {
			return err
		}
		cfg.CutoffDate = t
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, etl.ErrAborted), errors.Is(err, context.Canceled):
		return ExitAborted
	default:
		return ExitFailure
	}
}
