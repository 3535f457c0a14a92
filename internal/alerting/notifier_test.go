package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{RunID: "run-1", StartedAt: time.Now(), Succeeded: true, FilesTotal: 4, RowsCleaned: 10, RowsEnriched: 10}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "run-1") {
		t.Fatalf("text 应包含 run id: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{StartedAt: time.Now()}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), Notification{StartedAt: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("非 2xx 应报错并包含状态码, 实际 %v", err)
	}
}

func TestRenderMessageFailure(t *testing.T) {
	msg := RenderMessage(Notification{
		StartedAt:   time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
		FilesTotal:  2,
		FilesFailed: []string{"bad.csv"},
		Err:         errors.New("no valid rows"),
	})

	for _, want := range []string{"FAILED", "2024-03-01T18:00:00Z", "1 failed", "bad.csv", "no valid rows"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息缺少 %q: %s", want, msg)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
