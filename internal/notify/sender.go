package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookSender posts rendered notifications to a configured transport
// endpoint (the mail relay sits behind it; SMTP itself is external).
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender creates a sender for the given endpoint.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, tenantID, recipient, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"tenant_id": tenantID,
		"recipient": recipient,
		"subject":   subject,
		"body":      body,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes notifications to the process log. Used in development
// and when no transport endpoint is configured.
type LogSender struct {
	logger *log.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender() *LogSender {
	return &LogSender{logger: log.New(log.Writer(), "[MAIL] ", log.LstdFlags)}
}

func (s *LogSender) Send(_ context.Context, tenantID, recipient, subject, _ string) error {
	s.logger.Printf("→ %s (tenant=%s): %s", recipient, tenantID, subject)
	return nil
}
