package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Compute returns, moving averages and volatility per company",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Transform(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enriched %d rows for %d companies\n", len(result.Rows), result.Companies)
		return nil
	},
}
