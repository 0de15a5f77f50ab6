package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

// NotificationStore defines the methods for persisting notifications, their
// per-channel deliveries, user preferences, digests and channel analytics.
// Lookups report absence through the boolean instead of an error.
type NotificationStore interface {
	InsertNotification(context.Context, *notifications.Notification, []notifications.Delivery) error
	GetNotification(context.Context, uuid.UUID) (*notifications.Notification, bool, error)
	SearchNotifications(context.Context, notifications.SearchFilter) ([]notifications.Notification, error)
	UpdateNotification(context.Context, *notifications.Notification) error
	ListDueNotifications(context.Context, time.Time, int) ([]notifications.Notification, error)
	MarkNotificationRead(context.Context, uuid.UUID, uuid.UUID, time.Time) (bool, error)
	MarkAllNotificationsRead(context.Context, uuid.UUID, time.Time) (int64, error)
	UnreadNotificationCount(context.Context, uuid.UUID) (int64, error)
	CountRecentByTemplate(context.Context, uuid.UUID, string, time.Time) (int64, error)

	GetDeliveries(context.Context, uuid.UUID) ([]notifications.Delivery, error)
	UpdateDelivery(context.Context, *notifications.Delivery) error
	ListRetryableDeliveries(context.Context, time.Time, int) ([]notifications.Delivery, error)

	GetPreference(context.Context, uuid.UUID) (*notifications.Preference, bool, error)
	PutPreference(context.Context, *notifications.Preference) error
	ListDigestUsers(context.Context, notifications.DigestType) ([]uuid.UUID, error)
	ListNotificationsForDigest(context.Context, uuid.UUID, time.Time, time.Time) ([]notifications.Notification, error)
	HasDigest(context.Context, uuid.UUID, notifications.DigestType, time.Time) (bool, error)
	InsertDigest(context.Context, *notifications.Digest) error
	ListDigests(context.Context, uuid.UUID, int) ([]notifications.Digest, error)

	AddAnalytics(context.Context, notifications.Analytics) error
	AnalyticsRange(context.Context, time.Time, time.Time) ([]notifications.Analytics, error)
	NotificationStats(context.Context) (*notifications.Stats, error)
}
