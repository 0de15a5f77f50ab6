// Package notifications implements the multi-channel notification dispatcher:
// template rendering, per-user preference gating, channel fan-out with rate
// limits and retries, digests and per-channel analytics.
package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications and decides quiet-hours bypass.
type Priority string

// All notification priorities.
const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical:
		return true
	}
	return false
}

// Critical reports whether the priority bypasses quiet hours.
func (p Priority) Critical() bool {
	return p == PriorityUrgent || p == PriorityCritical
}

// Status is the roll-up status of a notification.
type Status string

// All notification statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusRead       Status = "read"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ChannelType names a delivery channel.
type ChannelType string

// All channel types.
const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelPush    ChannelType = "push"
	ChannelInApp   ChannelType = "in_app"
	ChannelWebhook ChannelType = "webhook"
)

// Valid reports whether c is a known channel type.
func (c ChannelType) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp, ChannelWebhook:
		return true
	}
	return false
}

// Category buckets notifications for preference gating.
type Category string

// All notification categories.
const (
	CategoryMarketing Category = "marketing"
	CategorySystem    Category = "system"
	CategorySecurity  Category = "security"
	CategoryProperty  Category = "property"
	CategoryContract  Category = "contract"
	CategoryPayment   Category = "payment"
	CategoryMessage   Category = "message"
	CategoryRating    Category = "rating"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMarketing, CategorySystem, CategorySecurity, CategoryProperty,
		CategoryContract, CategoryPayment, CategoryMessage, CategoryRating:
		return true
	}
	return false
}

// ContentKind tags the polymorphic subject of a notification.
type ContentKind string

// All content kinds.
const (
	ContentContract     ContentKind = "contract"
	ContentMatchRequest ContentKind = "match_request"
	ContentProperty     ContentKind = "property"
	ContentRating       ContentKind = "rating"
	ContentMessage      ContentKind = "message"
)

// ContentRef points at the entity a notification is about. Reference is by id
// only; there is no back-pointer ownership.
type ContentRef struct {
	Kind ContentKind `json:"kind"`
	ID   uuid.UUID   `json:"id"`
}

// Notification is one message addressed to one user, fanned out over zero or
// more channel deliveries.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`

	Template string   `json:"template,omitempty"`
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	IsRead    bool                   `json:"is_read"`
	ActionURL string                 `json:"action_url,omitempty"`
	DeepLink  string                 `json:"deep_link,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Content   *ContentRef            `json:"content,omitempty"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExpiredNow reports whether the notification outlived its expiry unsent.
func (n *Notification) ExpiredNow(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// DeliveryStatus is the status of one channel attempt.
type DeliveryStatus string

// All delivery statuses.
const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// Delivery is one attempt lane: (notification, channel).
type Delivery struct {
	ID             uuid.UUID      `json:"id"`
	NotificationID uuid.UUID      `json:"notification_id"`
	Channel        ChannelType    `json:"channel"`
	Status         DeliveryStatus `json:"status"`

	RetryCount  int        `json:"retry_count"`
	CanRetry    bool       `json:"can_retry"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	ExternalID   string `json:"external_id,omitempty"`
	SentTo       string `json:"sent_to,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EmailFrequency picks between immediate mails and digest batching.
type EmailFrequency string

// All email frequencies.
const (
	EmailImmediate EmailFrequency = "immediate"
	EmailDaily     EmailFrequency = "daily"
	EmailWeekly    EmailFrequency = "weekly"
)

// DigestType is the aggregation window of a digest.
type DigestType string

// All digest types.
const (
	DigestDaily   DigestType = "daily"
	DigestWeekly  DigestType = "weekly"
	DigestMonthly DigestType = "monthly"
)

// Valid reports whether d is a known digest type.
func (d DigestType) Valid() bool {
	switch d {
	case DigestDaily, DigestWeekly, DigestMonthly:
		return true
	}
	return false
}

// Window returns the aggregation window length.
func (d DigestType) Window() time.Duration {
	switch d {
	case DigestWeekly:
		return 7 * 24 * time.Hour
	case DigestMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Preference is the per-user notification policy, one consistent record per
// user.
type Preference struct {
	UserID uuid.UUID `json:"user_id"`

	Enabled bool `json:"enabled"`

	AllowEmail bool `json:"allow_email"`
	AllowSMS   bool `json:"allow_sms"`
	AllowPush  bool `json:"allow_push"`
	AllowInApp bool `json:"allow_in_app"`

	Categories map[Category]bool `json:"categories"`

	QuietHoursStart    string `json:"quiet_hours_start,omitempty"` // "22:00"
	QuietHoursEnd      string `json:"quiet_hours_end,omitempty"`   // "08:00"
	QuietHoursTimezone string `json:"quiet_hours_timezone,omitempty"`

	EmailFrequency EmailFrequency `json:"email_frequency"`
	DigestEnabled  bool           `json:"digest_enabled"`
	DigestType     DigestType     `json:"digest_type"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreference is the policy used when a user never saved one: everything
// on, no quiet hours, immediate email, daily digest off.
func DefaultPreference(userID uuid.UUID) *Preference {
	return &Preference{
		UserID:         userID,
		Enabled:        true,
		AllowEmail:     true,
		AllowSMS:       true,
		AllowPush:      true,
		AllowInApp:     true,
		Categories:     map[Category]bool{},
		EmailFrequency: EmailImmediate,
		DigestType:     DigestDaily,
	}
}

// AllowsChannel reports whether the user accepts the given channel. Webhook
// deliveries are operator-configured and bypass per-user channel switches.
func (p *Preference) AllowsChannel(c ChannelType) bool {
	if !p.Enabled {
		return false
	}
	switch c {
	case ChannelEmail:
		return p.AllowEmail
	case ChannelSMS:
		return p.AllowSMS
	case ChannelPush:
		return p.AllowPush
	case ChannelInApp:
		return p.AllowInApp
	case ChannelWebhook:
		return true
	}
	return false
}

// AllowsCategory reports whether the user accepts the category. Unset
// categories default to allowed; security notifications cannot be disabled.
func (p *Preference) AllowsCategory(c Category) bool {
	if c == CategorySecurity {
		return true
	}
	if !p.Enabled {
		return false
	}
	allowed, ok := p.Categories[c]
	if !ok {
		return true
	}
	return allowed
}

// InQuietHours reports whether now falls inside the user's quiet window.
// A window spanning midnight ("22:00" to "08:00") is handled. Unparseable
// settings disable the window.
func (p *Preference) InQuietHours(now time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}
	loc := time.UTC
	if p.QuietHoursTimezone != "" {
		parsed, err := time.LoadLocation(p.QuietHoursTimezone)
		if err != nil {
			return false
		}
		loc = parsed
	}
	local := now.In(loc)
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Digest is one generated summary of delivered notifications for a window.
type Digest struct {
	ID                uuid.UUID              `json:"id"`
	UserID            uuid.UUID              `json:"user_id"`
	Type              DigestType             `json:"type"`
	PeriodStart       time.Time              `json:"period_start"`
	PeriodEnd         time.Time              `json:"period_end"`
	NotificationCount int                    `json:"notification_count"`
	SummaryData       map[string]interface{} `json:"summary_data,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// Analytics is the per (date, channel) counter row. Rates are recomputed on
// every increment.
type Analytics struct {
	Date    time.Time   `json:"date"`
	Channel ChannelType `json:"channel"`

	SentCount      int64 `json:"sent_count"`
	DeliveredCount int64 `json:"delivered_count"`
	FailedCount    int64 `json:"failed_count"`
	ReadCount      int64 `json:"read_count"`
	ClickedCount   int64 `json:"clicked_count"`

	DeliveryRate float64 `json:"delivery_rate"`
	ReadRate     float64 `json:"read_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// Recompute refreshes the derived rates from the counters.
func (a *Analytics) Recompute() {
	attempted := a.SentCount + a.FailedCount
	if attempted > 0 {
		a.DeliveryRate = float64(a.SentCount) / float64(attempted)
	} else {
		a.DeliveryRate = 0
	}
	if a.SentCount > 0 {
		a.ReadRate = float64(a.ReadCount) / float64(a.SentCount)
		a.ClickRate = float64(a.ClickedCount) / float64(a.SentCount)
	} else {
		a.ReadRate = 0
		a.ClickRate = 0
	}
}

// RetryDelay computes the backoff before retry n+1 given the channel's base
// delay: next_retry_at = now + delay * (retry_count + 1).
func RetryDelay(base time.Duration, retryCount int) time.Duration {
	return base * time.Duration(retryCount+1)
}
