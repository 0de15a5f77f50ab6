package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateParams carries a new notification for one recipient.
type CreateParams struct {
	RecipientID uuid.UUID
	Template    string
	Category    Category
	Title       string
	Message     string
	Priority    Priority
	Channels    []ChannelType
	ActionURL   string
	DeepLink    string
	Data        map[string]interface{}
	Content     *ContentRef
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
}

// BulkParams fans one notification out to many recipients.
type BulkParams struct {
	RecipientIDs []uuid.UUID
	Template     string
	Category     Category
	Title        string
	Message      string
	Priority     Priority
	Channels     []ChannelType
	Data         map[string]interface{}
	Content      *ContentRef
}

// BulkResult summarizes a bulk send.
type BulkResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SearchFilter narrows notification listings. Zero values mean "any".
type SearchFilter struct {
	RecipientID uuid.UUID
	Category    Category
	Status      Status
	Priority    Priority
	UnreadOnly  bool
	Query       string
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}

// DispatchResult summarizes one dispatcher sweep.
type DispatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"`
	Expired   int `json:"expired"`
}

// Stats is the aggregate view served on the dashboard endpoints.
type Stats struct {
	Total       int64                 `json:"total"`
	Unread      int64                 `json:"unread"`
	ByStatus    map[Status]int64      `json:"by_status"`
	ByChannel   map[ChannelType]int64 `json:"by_channel"`
	FailedToday int64                 `json:"failed_today"`
}

// Service is the notification engine: creation, preference-gated multichannel
// dispatch, digests and analytics.
type Service interface {
	// Create validates and stores a notification plus its per-channel
	// delivery lanes. Unscheduled notifications are dispatched by the next
	// sweep; scheduled ones wait for their time.
	Create(ctx context.Context, params CreateParams) (*Notification, error)

	// BulkSend creates one notification per recipient, skipping recipients
	// whose preferences reject the category outright.
	BulkSend(ctx context.Context, params BulkParams) (*BulkResult, error)

	// Get returns one notification with its deliveries.
	Get(ctx context.Context, id uuid.UUID) (*Notification, []Delivery, error)

	// Search lists notifications for the filter, newest first.
	Search(ctx context.Context, filter SearchFilter) ([]Notification, error)

	// MarkRead marks one notification read by its recipient.
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error

	// MarkAllRead marks every unread notification of the recipient read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)

	// UnreadCount returns the recipient's unread notification count.
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)

	// Cancel cancels a pending or scheduled notification.
	Cancel(ctx context.Context, id uuid.UUID) error

	// ProcessScheduled dispatches every due pending notification: preference
	// gates, quiet hours, rate limits, channel sends, analytics.
	ProcessScheduled(ctx context.Context) (*DispatchResult, error)

	// RetryFailed re-dispatches failed deliveries whose backoff elapsed.
	RetryFailed(ctx context.Context) (*DispatchResult, error)

	// CreateDigests builds digest notifications for every user whose
	// preference enables them and whose window closed.
	CreateDigests(ctx context.Context, digestType DigestType) (int, error)

	// GetPreference returns the user's preference, or the default policy if
	// the user never saved one.
	GetPreference(ctx context.Context, userID uuid.UUID) (*Preference, error)

	// PutPreference validates and upserts the user's preference.
	PutPreference(ctx context.Context, pref Preference) (*Preference, error)

	// Digests lists the user's generated digests, newest first.
	Digests(ctx context.Context, userID uuid.UUID, limit int) ([]Digest, error)

	// Analytics returns the per-channel counter rows covering [from, to].
	Analytics(ctx context.Context, from, to time.Time) ([]Analytics, error)

	// Statistics returns the aggregate notification stats.
	Statistics(ctx context.Context) (*Stats, error)
}
