package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stock-analytics/internal/app"
)

var (
	showLimit   int
	showCompany string
	showRuns    bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest enriched rows per company",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:   showLimit,
			Company: showCompany,
			Runs:    showRuns,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 5, "Rows per company (or runs with --runs)")
	showCmd.Flags().StringVar(&showCompany, "company", "", "Only show this company")
	showCmd.Flags().BoolVar(&showRuns, "runs", false, "Show recent pipeline runs from the database")
}
