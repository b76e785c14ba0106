package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier posts each message as JSON to the chat gateway.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier builds a notifier for url with a per-request timeout.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send delivers msg. Chat ID 0 is an unconfigured destination and is dropped.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	if msg.ChatID == 0 {
		w.logger.Warn("dropping message with no destination", zap.String("text", msg.Text))
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("chat gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes messages to the log. It is used when no gateway is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs msg.
func (l *LogNotifier) Send(_ context.Context, msg Message) error {
	l.logger.Info("chat message",
		zap.Int64("chat_id", msg.ChatID),
		zap.String("text", msg.Text),
		zap.Int("buttons", len(msg.Buttons)),
		zap.Int("photos", len(msg.PhotoIDs)),
	)
	return nil
}
