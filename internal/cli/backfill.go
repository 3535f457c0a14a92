package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stock-analytics/internal/app"
)

var (
	backfillInput  string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load an enriched file into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			InputPath: backfillInput,
			DryRun:    backfillDryRun,
		}

		stored, err := getApp().Backfill(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if !backfillDryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d rows\n", stored)
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillInput, "input", "", "Enriched CSV to load (defaults to paths.enriched_file)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Read the file without writing to storage")
}
