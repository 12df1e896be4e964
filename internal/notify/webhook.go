// Package notify posts run outcomes to an operator-supplied webhook. The
// destination URL passes the same SSRF validation as every other outbound
// URL in the tool; there is no bypass for "trusted" callers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaymarket/secgate/internal/validate"
)

const defaultTimeout = 10 * time.Second

// Webhook delivers JSON payloads to a single validated endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook validates the destination against the host allowlist before
// any request can be made. An empty allowlist rejects every URL.
func NewWebhook(rawURL string, allowedHosts []string, client *http.Client) (*Webhook, error) {
	if err := validate.URL(rawURL, allowedHosts); err != nil {
		return nil, fmt.Errorf("webhook url rejected: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Webhook{url: rawURL, client: client}, nil
}

// Send posts the payload as JSON. Non-2xx responses are errors; the
// response body is drained and discarded either way.
func (w *Webhook) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "secgate")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
