package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/spf13/cobra"
)

func NewCountCmd(root *RootOptions) *cobra.Command {
	var column string

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Print the row count of a source table",
		Long: `Prints the number of rows in a table of the source store. With
--months-back or --cutoff-date it also prints how many rows are older than
the cutoff, judged by --column.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg := root.Config
			table := args[0]
			if cfg.SourceURL == "" {
				return errors.New("SOURCE_URL (or --source) is required")
			}

			src, err := store.Open(c.Context(), cfg.SourceURL, store.Options{
				MongoDatabase: cfg.MongoDatabase,
				SupabaseURL:   cfg.SupabaseURL,
				SupabaseKey:   cfg.SupabaseKey,
			})
			if err != nil {
				return err
			}
			defer src.Store.Close()

			total, err := src.Store.Count(c.Context(), table, nil)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows\n", table, total)

			if cutoff := cfg.Cutoff(time.Now()); !cutoff.IsZero() {
				older, err := src.Store.Count(c.Context(), table, &store.Filter{Column: column, Before: cutoff})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d rows with %s before %s\n", table, older, column, cutoff.Format("2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "created_at", "Timestamp column used with a cutoff")
	return cmd
}
