package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stock-analytics/internal/app"
)

var (
	generateSeed    int64
	generatePeriods int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic per-symbol price files and portfolio transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.GenerateOptions{Periods: generatePeriods}
		if cmd.Flags().Changed("seed") {
			if generateSeed < 0 {
				return fmt.Errorf("--seed must not be negative")
			}
			seed := uint64(generateSeed)
			opts.Seed = &seed
		}

		summary, err := getApp().Generate(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files, %d price rows, %d transactions\n",
			len(summary.Files), summary.Rows, summary.Transactions)
		return nil
	},
}

func init() {
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Random seed (defaults to config)")
	generateCmd.Flags().IntVar(&generatePeriods, "periods", 0, "Business days per symbol (defaults to config)")
}
