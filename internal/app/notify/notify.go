// Package notify is the Notification Collaborator: an out-of-process sink
// for workflow notification events. Failure is swallowed per spec.md §6/§7
// — a bad webhook endpoint must never fail a workflow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// Event is one notification to deliver.
type Event struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notifier delivers notification Events to an external collaborator.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// WebhookNotifier posts Event as a JSON body to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

// NewWebhookNotifier returns a WebhookNotifier posting to url. A nil client
// falls back to a 10s-timeout client, matching this codebase's default
// outbound HTTP client.
func NewWebhookNotifier(url string, client *http.Client, log *logger.Logger) *WebhookNotifier {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		url:    url,
		client: client,
		log:    log,
	}
}

// Notify posts event to the webhook URL. Errors are logged, not returned, so
// callers can treat notification delivery as best-effort.
func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		w.log.WithError(err).Warn("notify: marshal event failed")
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.WithError(err).Warn("notify: build request failed")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.WithError(err).Warn("notify: webhook delivery failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.log.WithField("status", resp.StatusCode).Warn("notify: webhook returned non-2xx")
	}
	return nil
}
