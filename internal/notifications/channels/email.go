package channels

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// EmailConfig configures the SMTP email adapter.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email delivers notifications over SMTP.
type Email struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the SMTP adapter.
func NewEmail(cfg EmailConfig) *Email {
	return &Email{cfg: cfg, send: smtp.SendMail}
}

// Type implements Adapter.
func (e *Email) Type() notifications.ChannelType {
	return notifications.ChannelEmail
}

// Send implements Adapter. net/smtp has no context support; the dispatcher's
// timeout covers the whole call through the goroutine it runs in.
func (e *Email) Send(ctx context.Context, view View) (*Result, error) {
	if view.RecipientEmail == "" {
		return nil, fmt.Errorf("recipient has no email address")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", view.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(view.Title))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(view.Message)
	if view.ActionURL != "" {
		fmt.Fprintf(&b, "\r\n\r\n%s", view.ActionURL)
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	if err := e.send(addr, auth, e.cfg.From, []string{view.RecipientEmail}, []byte(b.String())); err != nil {
		return nil, fmt.Errorf("sending mail: %s", err)
	}
	return &Result{
		ExternalID: uuid.NewString(),
		SentTo:     view.RecipientEmail,
	}, nil
}

// sanitizeHeader strips CR/LF so notification titles cannot inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
