package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// PushConfig configures the FCM-style push adapter.
type PushConfig struct {
	URL       string
	ServerKey string
}

// Push delivers notifications to the mobile apps through an FCM-compatible
// HTTP endpoint. The device topic is derived from the recipient id; the
// mobile client subscribes to its own topic after login.
type Push struct {
	cfg        PushConfig
	httpClient *http.Client
}

// NewPush creates the push adapter.
func NewPush(cfg PushConfig) *Push {
	if cfg.URL == "" {
		cfg.URL = "https://fcm.googleapis.com/fcm/send"
	}
	return &Push{cfg: cfg, httpClient: &http.Client{}}
}

// Type implements Adapter.
func (p *Push) Type() notifications.ChannelType {
	return notifications.ChannelPush
}

type pushMessage struct {
	To           string                 `json:"to"`
	Notification pushNotification       `json:"notification"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Priority     string                 `json:"priority"`
}

type pushNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"click_action,omitempty"`
}

// Send implements Adapter.
func (p *Push) Send(ctx context.Context, view View) (*Result, error) {
	topic := "/topics/user-" + view.RecipientID.String()
	msg := pushMessage{
		To: topic,
		Notification: pushNotification{
			Title:       view.Title,
			Body:        view.Message,
			ClickAction: view.DeepLink,
		},
		Data:     view.Data,
		Priority: "normal",
	}
	if view.Priority.Critical() {
		msg.Priority = "high"
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling push JSON: %s", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.cfg.ServerKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing push request: %s", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error().Err(err).Msg("closing push response body")
		}
	}()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("push request failed with status code: %d", resp.StatusCode)
	}

	var result struct {
		MessageID json.Number `json:"message_id"`
	}
	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading push response: %s", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decoding push response: %s", err)
		}
	}
	return &Result{
		ExternalID: result.MessageID.String(),
		SentTo:     topic,
	}, nil
}
