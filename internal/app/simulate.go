package app

import (
	"context"
	"errors"
	"time"

	"stock-analytics/internal/alerting"
)

// SimulateAlert 发送一条模拟的运行摘要, 用于验证告警通道配置。
func (a *App) SimulateAlert(ctx context.Context, failed bool) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	return notifier.Notify(ctx, simulatedNotification(time.Now().UTC(), failed))
}

func simulatedNotification(now time.Time, failed bool) alerting.Notification {
	note := alerting.Notification{
		RunID:        "simulated",
		StartedAt:    now,
		Duration:     1500 * time.Millisecond,
		Succeeded:    !failed,
		FilesTotal:   4,
		RowsCleaned:  20800,
		RowsEnriched: 20800,
	}
	if failed {
		note.FilesFailed = []string{"JPM.csv"}
		note.RowsCleaned = 15600
		note.RowsEnriched = 0
		note.Err = errors.New("simulated failure")
	}
	return note
}
