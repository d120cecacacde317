package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"prescreen-backend/internal/shared/telemetry"
)

// WebhookNotifier POSTs signed events to an operator endpoint. The signature
// header covers timestamp and body so receivers can reject replays.
type WebhookNotifier struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
	Now        func() time.Time
}

// NewWebhookNotifier constructs a WebhookNotifier.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Secret: secret,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Now: time.Now,
	}
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify implements Notifier. Failures are logged and swallowed.
func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		telemetry.Error("notify marshal failed", map[string]any{"error": err.Error()})
		return
	}

	ts := n.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		telemetry.Error("notify request build failed", map[string]any{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Prescreen-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Prescreen-Signature", Sign(n.Secret, ts, body))

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		telemetry.Warn("notify delivery failed", map[string]any{
			"type":        ev.Type,
			"interviewId": ev.InterviewID,
			"error":       err.Error(),
		})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.Warn("notify delivery rejected", map[string]any{
			"type":        ev.Type,
			"interviewId": ev.InterviewID,
			"status":      resp.StatusCode,
		})
	}
}

var _ Notifier = (*WebhookNotifier)(nil)
