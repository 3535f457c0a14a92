package cli

import (
	"github.com/spf13/cobra"
)

var (
	simulateFailed bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "发送一条模拟的运行摘要以验证告警通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateFailed)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simulateFailed, "failed", false, "模拟失败的运行")
}
