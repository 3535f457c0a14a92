package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notification 封装一次流水线运行的结果摘要。
type Notification struct {
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Succeeded    bool
	FilesTotal   int
	FilesFailed  []string
	RowsCleaned  int
	RowsEnriched int
	Err          error
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   client,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode())
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Bool("succeeded", note.Succeeded).
		Int("files_failed", len(note.FilesFailed)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// RenderMessage 生成纯文本消息体。
func RenderMessage(note Notification) string {
	status := "SUCCEEDED"
	if !note.Succeeded {
		status = "FAILED"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Stock Pipeline %s]\n", status))
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	builder.WriteString(fmt.Sprintf("Started: %s UTC\n", note.StartedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Duration: %s\n", note.Duration.Round(time.Millisecond)))
	builder.WriteString(fmt.Sprintf("Files: %d total, %d failed\n", note.FilesTotal, len(note.FilesFailed)))
	builder.WriteString(fmt.Sprintf("Rows: %d cleaned, %d enriched\n", note.RowsCleaned, note.RowsEnriched))
	if len(note.FilesFailed) > 0 {
		builder.WriteString(fmt.Sprintf("Failed: %s\n", strings.Join(note.FilesFailed, ",")))
	}
	if note.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %s\n", note.Err))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
