package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider delivers one message to one device.
type Provider interface {
	Send(ctx context.Context, deviceToken string, msg Message) error
}

type ProviderConfig struct {
	Kind         string
	WebhookURL   string
	WebhookToken string
	Timeout      time.Duration
}

// NewProvider picks the delivery backend. A kind that is itself an http(s) URL is
// treated as a webhook endpoint; unknown kinds fall back to logging.
func NewProvider(cfg ProviderConfig, logger zerolog.Logger) Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Kind)); kind {
	case "", "log", "stub":
		return logProvider{logger: logger}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			logger.Warn().Msg("push webhook url not set, falling back to log provider")
			return logProvider{logger: logger}
		}
		return newWebhookProvider(cfg.WebhookURL, cfg.WebhookToken, timeout)
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return newWebhookProvider(strings.TrimSpace(cfg.Kind), cfg.WebhookToken, timeout)
		}
		logger.Warn().Str("provider", kind).Msg("unknown push provider, falling back to log provider")
		return logProvider{logger: logger}
	}
}

type logProvider struct {
	logger zerolog.Logger
}

func (p logProvider) Send(ctx context.Context, deviceToken string, msg Message) error {
	p.logger.Info().
		Str("device", maskToken(deviceToken)).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("push notification")
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, deviceToken string, msg Message) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, deviceToken string, msg Message) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func newWebhookProvider(url, token string, timeout time.Duration) webhookProvider {
	return webhookProvider{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Token        string            `json:"token"`
	Notification webhookNotice     `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type webhookNotice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (p webhookProvider) Send(ctx context.Context, deviceToken string, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Token:        deviceToken,
		Notification: webhookNotice{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider rejected request: status %d", resp.StatusCode)
	}
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
