package cli

import (
	"time"

	"github.com/BartekS5/crm-migrate/internal/config"
	"github.com/BartekS5/crm-migrate/internal/jobs"
	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	MappingFile string
}

func NewMigrateCmd(root *RootOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy or reshape rows into destination tables",
	}

	emails := &cobra.Command{
		Use:   "emails",
		Short: "Split emails into email_index and email_cache",
		Long: `Reads the emails table page by page and upserts one email_index row (listing
fields and a snippet) and one email_cache row (bodies) per email, keyed by
message_id. Rows without a message_id are skipped. MONTHS_BACK or CUTOFF_DATE
restrict the run to emails created since then.`,
		RunE: func(c *cobra.Command, args []string) error {
			job := jobs.EmailsJob(root.Config.Cutoff(time.Now()))
			return runJob(c.Context(), root.Config, job)
		},
	}

	table := &cobra.Command{
		Use:   "table",
		Short: "Copy a table as described by a mapping file",
		RunE: func(c *cobra.Command, args []string) error {
			mapping, err := config.LoadMapping(opts.MappingFile)
			if err != nil {
				return err
			}
			job := jobs.TableJob(mapping, root.Config.Cutoff(time.Now()))
			return runJob(c.Context(), root.Config, job)
		},
	}
	table.Flags().StringVarP(&opts.MappingFile, "mapping", "m", "configs/mapping.json", "Path to mapping file (JSON or YAML)")

	cmd.AddCommand(emails, table)
	return cmd
}
