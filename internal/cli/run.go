package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest and transform once",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := getApp().RunPipeline(cmd.Context())
		if err != nil {
			return err
		}
		if summary.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "run skipped: another run holds the lock")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: cleaned %d rows, enriched %d rows\n",
			summary.RunID, summary.RowsCleaned(), summary.RowsEnriched())
		return nil
	},
}
