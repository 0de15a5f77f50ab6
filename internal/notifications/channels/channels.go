// Package channels holds the delivery channel adapters of the notification
// dispatcher: email, SMS, push, webhook and the in-app websocket feed. An
// adapter failure is always a delivery-level failure; it never reaches the
// business operation that created the notification.
package channels

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// DefaultTimeout bounds one adapter call when the channel sets none.
const DefaultTimeout = time.Second * 30

// View is the flattened notification an adapter delivers. It carries the
// recipient contact data resolved from the user directory so adapters never
// reach back into the platform.
type View struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	RecipientID    uuid.UUID              `json:"recipient_id"`
	RecipientEmail string                 `json:"recipient_email,omitempty"`
	RecipientPhone string                 `json:"recipient_phone,omitempty"`
	RecipientName  string                 `json:"recipient_name,omitempty"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Priority       notifications.Priority `json:"priority"`
	Category       notifications.Category `json:"category"`
	ActionURL      string                 `json:"action_url,omitempty"`
	DeepLink       string                 `json:"deep_link,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Result is the adapter-reported outcome of a successful send.
type Result struct {
	ExternalID string
	SentTo     string
}

// Adapter delivers one notification view over one channel.
type Adapter interface {
	Type() notifications.ChannelType
	Send(ctx context.Context, view View) (*Result, error)
}

// Channel pairs an adapter with its dispatch policy.
type Channel struct {
	Adapter Adapter

	// Priority orders delivery creation; lower dispatches first.
	Priority int

	// RetryAttempts bounds how often a failed delivery is retried.
	RetryAttempts int
	// RetryDelay is the base backoff; attempt n waits RetryDelay * n.
	RetryDelay time.Duration

	// PerMinute and PerHour are the sliding-window dispatch limits per
	// (user, channel). Zero disables the window.
	PerMinute uint64
	PerHour   uint64

	// Timeout bounds one adapter call; zero means DefaultTimeout.
	Timeout time.Duration
}

// Type returns the adapter's channel type.
func (c Channel) Type() notifications.ChannelType {
	return c.Adapter.Type()
}

// CallTimeout returns the effective adapter timeout.
func (c Channel) CallTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Manager resolves channel types to configured channels.
type Manager struct {
	channels map[notifications.ChannelType]Channel
}

// NewManager registers the given channels, one per type.
func NewManager(channels ...Channel) *Manager {
	m := &Manager{channels: make(map[notifications.ChannelType]Channel, len(channels))}
	for _, c := range channels {
		m.channels[c.Type()] = c
	}
	return m
}

// Get returns the channel for the type, if registered.
func (m *Manager) Get(t notifications.ChannelType) (Channel, bool) {
	c, ok := m.channels[t]
	return c, ok
}

// Resolve deduplicates the requested types, keeps the registered ones and
// returns them sorted by channel priority.
func (m *Manager) Resolve(requested []notifications.ChannelType) []Channel {
	seen := make(map[notifications.ChannelType]struct{}, len(requested))
	out := make([]Channel, 0, len(requested))
	for _, t := range requested {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if c, ok := m.channels[t]; ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Types returns every registered channel type.
func (m *Manager) Types() []notifications.ChannelType {
	out := make([]notifications.ChannelType, 0, len(m.channels))
	for t := range m.channels {
		out = append(out, t)
	}
	return out
}
