package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quarrylane/riskwatch/pkg/risk"
)

// webhookPayload is the JSON body sent to webhook endpoints.
type webhookPayload struct {
	EventType    string            `json:"event_type"`
	Notification risk.Notification `json:"notification"`
	Timestamp    time.Time         `json:"timestamp"`
}

// WebhookSender delivers notifications via HTTP POST to channel URLs.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a sender with the given delivery timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts a notification to one channel. The body is signed with
// HMAC-SHA256 when the channel has a secret.
func (w *WebhookSender) Send(ctx context.Context, ch Channel, n risk.Notification) error {
	payload := webhookPayload{
		EventType:    n.Kind,
		Notification: n,
		Timestamp:    time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RiskWatch-Webhook/0.1")

	if ch.Secret != "" {
		mac := hmac.New(sha256.New, []byte(ch.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST %s: %w", ch.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST %s: status %d", ch.URL, resp.StatusCode)
	}
	return nil
}
