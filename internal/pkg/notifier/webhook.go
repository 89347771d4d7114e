package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"go.uber.org/zap"
)

// WebhookConfig for the webhook sink.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Webhook posts {"message": "..."} to a configured URL.
type Webhook struct {
	url    string
	http   *http.Client
	logger *logger.Logger
}

// NewWebhook creates a webhook sink; nil when no URL is configured.
func NewWebhook(cfg *WebhookConfig, log *logger.Logger) *Webhook {
	if cfg == nil || cfg.URL == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Webhook{
		url:    cfg.URL,
		http:   &http.Client{Timeout: timeout},
		logger: log,
	}
}

// Send posts the message; failures are logged at warn and swallowed.
func (w *Webhook) Send(ctx context.Context, message string) bool {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		w.logger.Warn("webhook notification failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook notification rejected",
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	return true
}
