package cli

import (
	"errors"
	"time"

	"github.com/BartekS5/crm-migrate/internal/jobs"
	"github.com/spf13/cobra"
)

type CleanupOptions struct {
	All     bool
	Confirm bool
}

func NewCleanupCmd(root *RootOptions) *cobra.Command {
	opts := &CleanupOptions{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete rows in bounded batches",
	}

	emails := &cobra.Command{
		Use:   "emails",
		Short: "Delete emails older than the cutoff, or all of them with --all",
		RunE: func(c *cobra.Command, args []string) error {
			cfg := root.Config
			cutoff := cfg.Cutoff(time.Now())
			if opts.All {
				cutoff = time.Time{}
			} else if cutoff.IsZero() {
				return errors.New("cleanup needs --months-back, --cutoff-date or --all")
			}
			if !cfg.DryRun && !opts.Confirm {
				return errors.New("refusing to delete without --confirm (use --dry-run to preview)")
			}
			return runJob(c.Context(), cfg, jobs.CleanupJob(cutoff))
		},
	}
	emails.Flags().BoolVar(&opts.All, "all", false, "Delete every email regardless of age")
	emails.Flags().BoolVar(&opts.Confirm, "confirm", false, "Actually delete (required unless --dry-run)")

	cmd.AddCommand(emails)
	return cmd
}
