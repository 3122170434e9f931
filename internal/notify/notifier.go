// Package notify sends remediation notifications for high priority
// requests.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsforge/remediator/internal/domain"
	"golang.org/x/time/rate"
)

// Notification is one message to the security operations channel.
type Notification struct {
	TenantID  string          `json:"tenant_id"`
	RequestID string          `json:"request_id"`
	Priority  domain.Priority `json:"priority"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
}

// Sink delivers notifications.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// WebhookConfig holds webhook sender configuration.
type WebhookConfig struct {
	Enabled   bool
	URL       string
	RateLimit float64 // messages per second, 0 means unlimited
}

// WebhookSender posts notifications to a webhook URL.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewWebhookSender creates a webhook sender. Returns an error if
// enabled without a URL.
func NewWebhookSender(config WebhookConfig) (*WebhookSender, error) {
	if config.Enabled && config.URL == "" {
		return nil, errors.New("webhook sender: url is required when enabled")
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("webhook sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &WebhookSender{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
	}, nil
}

// Send posts the notification.
func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	if !s.config.Enabled {
		slog.Debug("webhook sender disabled, skipping",
			"tenant_id", n.TenantID,
			"request_id", n.RequestID,
		)
		return nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}
