package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// WebhookConfig configures the operator webhook adapter.
type WebhookConfig struct {
	URL         string
	BearerToken string
}

// Webhook POSTs the notification view as JSON to an operator-configured
// endpoint, with an optional bearer token.
type Webhook struct {
	cfg        WebhookConfig
	httpClient *http.Client
}

// NewWebhook creates the webhook adapter after validating the URL.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %s", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook url scheme %q", u.Scheme)
	}
	return &Webhook{cfg: cfg, httpClient: &http.Client{}}, nil
}

// Type implements Adapter.
func (w *Webhook) Type() notifications.ChannelType {
	return notifications.ChannelWebhook
}

// Send implements Adapter.
func (w *Webhook) Send(ctx context.Context, view View) (*Result, error) {
	postData, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook JSON: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewBuffer(postData))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.BearerToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing webhook: %s", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error().Err(err).Msg("closing webhook response body")
		}
	}()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webhook request failed with status code: %d", resp.StatusCode)
	}
	return &Result{
		ExternalID: uuid.NewString(),
		SentTo:     w.cfg.URL,
	}, nil
}
