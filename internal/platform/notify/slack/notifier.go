// Package slack はパイプライン実行結果を Slack の Incoming Webhook に通知します。
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	slackapi "github.com/slack-go/slack"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

const (
	// SuccessText is the headline of a success notification.
	SuccessText = "Stock Market DAG completed successfully!"
	// FailureText is the headline of a failure notification.
	FailureText = "Stock Market DAG failed!"
)

// Config holds Slack webhook settings.
type Config struct {
	WebhookURL string        `env:"WEBHOOK_URL"` // Empty disables posting; notifications are only logged
	Channel    string        `env:"CHANNEL"`     // Overrides the webhook's default channel when set
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// LoadConfig loads Slack configuration from SLACK_* environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "SLACK_"})
}

// Notifier は実行ごとに1件の終了通知を送信します。
type Notifier struct {
	cfg    Config
	client *http.Client
}

// NotifierがNotifierポートを実装していることをコンパイル時に検証します。
var _ usecase.Notifier = (*Notifier)(nil)

// NewNotifier は新しい Notifier を作成します。client が nil なら http.DefaultClient を使います。
func NewNotifier(cfg Config, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{cfg: cfg, client: client}
}

// Notify は通知を送信します。失敗時は失敗ステージとエラー種別を本文に含めます。
func (n *Notifier) Notify(ctx context.Context, note entity.Notification) error {
	text := Format(note)
	if n.cfg.WebhookURL == "" {
		slog.Info("slack webhook not configured, notification logged only",
			"run_id", note.RunID, "succeeded", note.Succeeded, "text", text)
		return nil
	}

	msg := &slackapi.WebhookMessage{Text: text, Channel: n.cfg.Channel}
	if err := slackapi.PostWebhookCustomHTTPContext(ctx, n.cfg.WebhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// Format renders the notification text.
func Format(note entity.Notification) string {
	var b strings.Builder
	if note.Succeeded {
		b.WriteString(SuccessText)
	} else {
		b.WriteString(FailureText)
	}
	fmt.Fprintf(&b, "\nsymbol: %s  run_date: %s  run_id: %s", note.Symbol, note.RunDate.Format(time.DateOnly), note.RunID)
	if !note.Succeeded {
		fmt.Fprintf(&b, "\nstage: %s  kind: %s", note.Stage, note.Kind)
		if note.Message != "" {
			fmt.Fprintf(&b, "\nerror: %s", note.Message)
		}
	}
	return b.String()
}
