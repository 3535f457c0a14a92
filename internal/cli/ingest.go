package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Validate raw stock files into the cleaned dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Ingest(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d rows from %d files (%d failed) -> %s\n",
			report.RowsWritten, len(report.Files), report.Failed(), report.OutputPath)
		return nil
	},
}
