package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stock-analytics/internal/app"
)

var (
	triggerSchedule bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start the downstream analytics job on the remote workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Trigger(cmd.Context(), app.TriggerOptions{Schedule: triggerSchedule})
		if err != nil {
			return err
		}
		if !triggerSchedule {
			fmt.Fprintf(cmd.OutOrStdout(), "run_id: %d\n", result.RunID)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().BoolVar(&triggerSchedule, "schedule", false, "Trigger on the orchestrator cron until interrupted")
}
