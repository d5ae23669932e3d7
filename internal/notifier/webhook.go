package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload is the body contract of the webhook receiver.
type webhookPayload struct {
	Message   string `json:"mensaje"`
	Recipient string `json:"email"`
}

// WebhookSink posts transitions to an HTTP endpoint. An empty URL makes it a no-op.
type WebhookSink struct {
	URL       string
	Recipient string
	Client    *http.Client
}

// NewWebhookSink creates a webhook sink. An empty url turns Notify into a no-op.
func NewWebhookSink(url, recipient string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		URL:       url,
		Recipient: recipient,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Notify posts the message and recipient as JSON. Non-2xx responses are errors.
func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	if s.URL == "" {
		return nil
	}
	body, err := json.Marshal(webhookPayload{Message: n.Message, Recipient: s.Recipient})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
