package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// SMSConfig configures the Twilio-style SMS adapter.
type SMSConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
}

// SMS delivers notifications as text messages through a Twilio-compatible
// messages endpoint.
type SMS struct {
	cfg        SMSConfig
	httpClient *http.Client
}

// NewSMS creates the SMS adapter.
func NewSMS(cfg SMSConfig) *SMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &SMS{cfg: cfg, httpClient: &http.Client{}}
}

// Type implements Adapter.
func (s *SMS) Type() notifications.ChannelType {
	return notifications.ChannelSMS
}

// Send implements Adapter.
func (s *SMS) Send(ctx context.Context, view View) (*Result, error) {
	if view.RecipientPhone == "" {
		return nil, fmt.Errorf("recipient has no phone number")
	}

	body := view.Title
	if view.Message != "" {
		body = view.Title + ": " + view.Message
	}
	form := url.Values{}
	form.Set("To", view.RecipientPhone)
	form.Set("From", s.cfg.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, s.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %s", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing sms request: %s", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error().Err(err).Msg("closing sms response body")
		}
	}()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sms request failed with status code: %d", resp.StatusCode)
	}

	var created struct {
		SID string `json:"sid"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading sms response: %s", err)
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decoding sms response: %s", err)
	}
	return &Result{
		ExternalID: created.SID,
		SentTo:     view.RecipientPhone,
	}, nil
}
