package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

const notificationColumns = `id, recipient_id, template, category, title, message, priority, status,
	is_read, action_url, deep_link, data, content_kind, content_id,
	scheduled_at, expires_at, sent_at, delivered_at, read_at, created_at, updated_at`

func notificationArgs(n *notifications.Notification) ([]interface{}, error) {
	data, err := nullableJSON(n.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %s", err)
	}
	contentKind := ""
	var contentID interface{}
	if n.Content != nil {
		contentKind = string(n.Content.Kind)
		contentID = n.Content.ID.String()
	}
	return []interface{}{
		n.ID.String(), n.RecipientID.String(), n.Template, string(n.Category), n.Title, n.Message,
		string(n.Priority), string(n.Status),
		n.IsRead, n.ActionURL, n.DeepLink, data, contentKind, contentID,
		tsPtr(n.ScheduledAt), tsPtr(n.ExpiresAt), tsPtr(n.SentAt), tsPtr(n.DeliveredAt), tsPtr(n.ReadAt),
		tsOf(n.CreatedAt), tsOf(n.UpdatedAt),
	}, nil
}

func scanNotification(sc rowScanner) (*notifications.Notification, error) {
	var n notifications.Notification
	var id, recipientID, category, priority, status, contentKind string
	var data, contentID sql.NullString
	var scheduledAt, expiresAt, sentAt, deliveredAt, readAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := sc.Scan(
		&id, &recipientID, &n.Template, &category, &n.Title, &n.Message, &priority, &status,
		&n.IsRead, &n.ActionURL, &n.DeepLink, &data, &contentKind, &contentID,
		&scheduledAt, &expiresAt, &sentAt, &deliveredAt, &readAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if n.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if n.RecipientID, err = parseUUID(recipientID); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(data, &n.Data); err != nil {
		return nil, fmt.Errorf("data: %s", err)
	}
	if contentKind != "" && contentID.Valid {
		refID, err := parseUUID(contentID.String)
		if err != nil {
			return nil, err
		}
		n.Content = &notifications.ContentRef{Kind: notifications.ContentKind(contentKind), ID: refID}
	}
	n.Category = notifications.Category(category)
	n.Priority = notifications.Priority(priority)
	n.Status = notifications.Status(status)
	n.ScheduledAt = fromTSPtr(scheduledAt)
	n.ExpiresAt = fromTSPtr(expiresAt)
	n.SentAt = fromTSPtr(sentAt)
	n.DeliveredAt = fromTSPtr(deliveredAt)
	n.ReadAt = fromTSPtr(readAt)
	n.CreatedAt = fromTS(createdAt)
	n.UpdatedAt = fromTS(updatedAt)
	return &n, nil
}

const deliveryColumns = `id, notification_id, channel, status, retry_count, can_retry, next_retry_at,
	external_id, sent_to, error_message, sent_at, delivered_at, created_at, updated_at`

func insertDeliveryTx(ctx context.Context, tx *sql.Tx, d *notifications.Delivery) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notification_deliveries (`+deliveryColumns+`)
		 VALUES (`+placeholders(columnCount(deliveryColumns))+`)`,
		d.ID.String(), d.NotificationID.String(), string(d.Channel), string(d.Status),
		d.RetryCount, d.CanRetry, tsPtr(d.NextRetryAt),
		d.ExternalID, d.SentTo, d.ErrorMessage,
		tsPtr(d.SentAt), tsPtr(d.DeliveredAt), tsOf(d.CreatedAt), tsOf(d.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert into notification_deliveries: %s", err)
	}
	return nil
}

func scanDelivery(sc rowScanner) (*notifications.Delivery, error) {
	var d notifications.Delivery
	var id, notificationID, channel, status string
	var nextRetryAt, sentAt, deliveredAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := sc.Scan(
		&id, &notificationID, &channel, &status, &d.RetryCount, &d.CanRetry, &nextRetryAt,
		&d.ExternalID, &d.SentTo, &d.ErrorMessage, &sentAt, &deliveredAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if d.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if d.NotificationID, err = parseUUID(notificationID); err != nil {
		return nil, err
	}
	d.Channel = notifications.ChannelType(channel)
	d.Status = notifications.DeliveryStatus(status)
	d.NextRetryAt = fromTSPtr(nextRetryAt)
	d.SentAt = fromTSPtr(sentAt)
	d.DeliveredAt = fromTSPtr(deliveredAt)
	d.CreatedAt = fromTS(createdAt)
	d.UpdatedAt = fromTS(updatedAt)
	return &d, nil
}

// InsertNotification stores a notification together with its per-channel
// delivery lanes.
func (s *Store) InsertNotification(
	ctx context.Context, n *notifications.Notification, deliveries []notifications.Delivery,
) error {
	args, err := notificationArgs(n)
	if err != nil {
		return fmt.Errorf("serializing notification: %s", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (`+notificationColumns+`)
			 VALUES (`+placeholders(columnCount(notificationColumns))+`)`, args...); err != nil {
			return fmt.Errorf("insert into notifications: %s", err)
		}
		for i := range deliveries {
			if err := insertDeliveryTx(ctx, tx, &deliveries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNotification fetches a notification by id.
func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (*notifications.Notification, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?1`, id.String())
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select notification: %s", err)
	}
	return n, true, nil
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]notifications.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing notification rows")
		}
	}()

	out := make([]notifications.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %s", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %s", err)
	}
	return out, nil
}

// SearchNotifications lists notifications matching the filter, newest first.
func (s *Store) SearchNotifications(
	ctx context.Context, f notifications.SearchFilter,
) ([]notifications.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	var args []interface{}
	if f.RecipientID != uuid.Nil {
		query += ` AND recipient_id = ?`
		args = append(args, f.RecipientID.String())
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	if f.UnreadOnly {
		query += ` AND is_read = 0`
	}
	if f.Query != "" {
		query += ` AND (title LIKE ? OR message LIKE ?)`
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern)
	}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, tsOf(*f.Since))
	}
	if f.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, tsOf(*f.Until))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	return s.queryNotifications(ctx, query, args...)
}

// UpdateNotification persists a notification mutation.
func (s *Store) UpdateNotification(ctx context.Context, n *notifications.Notification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET
		 status = ?, is_read = ?, scheduled_at = ?, sent_at = ?, delivered_at = ?, read_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(n.Status), n.IsRead, tsPtr(n.ScheduledAt), tsPtr(n.SentAt), tsPtr(n.DeliveredAt), tsPtr(n.ReadAt),
		tsOf(n.UpdatedAt), n.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update notifications: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s not persisted", n.ID)
	}
	return nil
}

// ListDueNotifications lists pending notifications whose scheduled time, if
// any, already passed.
func (s *Store) ListDueNotifications(ctx context.Context, now time.Time, limit int) ([]notifications.Notification, error) {
	return s.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= ?1)
		 ORDER BY created_at LIMIT ?2`,
		tsOf(now), limit)
}

// MarkNotificationRead marks one notification read by its recipient and
// reports whether a row changed.
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID uuid.UUID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, status = 'read', read_at = ?1, updated_at = ?1
		 WHERE id = ?2 AND recipient_id = ?3 AND is_read = 0`,
		tsOf(now), id.String(), recipientID.String())
	if err != nil {
		return false, fmt.Errorf("marking notification read: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %s", err)
	}
	return affected > 0, nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient
// and returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, status = 'read', read_at = ?1, updated_at = ?1
		 WHERE recipient_id = ?2 AND is_read = 0`,
		tsOf(now), recipientID.String())
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %s", err)
	}
	return affected, nil
}

// UnreadNotificationCount returns the recipient's unread count.
func (s *Store) UnreadNotificationCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ?1 AND is_read = 0`,
		recipientID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %s", err)
	}
	return count, nil
}

// GetDeliveries lists the delivery lanes of a notification.
func (s *Store) GetDeliveries(ctx context.Context, notificationID uuid.UUID) ([]notifications.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM notification_deliveries
		 WHERE notification_id = ?1 ORDER BY channel`, notificationID.String())
}

func (s *Store) queryDeliveries(ctx context.Context, query string, args ...interface{}) ([]notifications.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select deliveries: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing delivery rows")
		}
	}()

	out := make([]notifications.Delivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %s", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %s", err)
	}
	return out, nil
}

// UpdateDelivery persists a delivery mutation.
func (s *Store) UpdateDelivery(ctx context.Context, d *notifications.Delivery) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET
		 status = ?, retry_count = ?, can_retry = ?, next_retry_at = ?,
		 external_id = ?, sent_to = ?, error_message = ?, sent_at = ?, delivered_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(d.Status), d.RetryCount, d.CanRetry, tsPtr(d.NextRetryAt),
		d.ExternalID, d.SentTo, d.ErrorMessage, tsPtr(d.SentAt), tsPtr(d.DeliveredAt), tsOf(d.UpdatedAt),
		d.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update notification_deliveries: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("delivery %s not persisted", d.ID)
	}
	return nil
}

// ListRetryableDeliveries lists failed deliveries whose backoff elapsed.
func (s *Store) ListRetryableDeliveries(ctx context.Context, now time.Time, limit int) ([]notifications.Delivery, error) {
	return s.queryDeliveries(ctx,
		`SELECT `+deliveryColumns+` FROM notification_deliveries
		 WHERE status = 'failed' AND can_retry = 1
		   AND (next_retry_at IS NULL OR next_retry_at <= ?1)
		 ORDER BY next_retry_at LIMIT ?2`,
		tsOf(now), limit)
}

const preferenceColumns = `user_id, enabled, allow_email, allow_sms, allow_push, allow_in_app,
	categories, quiet_hours_start, quiet_hours_end, quiet_hours_timezone,
	email_frequency, digest_enabled, digest_type, updated_at`

// GetPreference fetches the user's saved notification policy.
func (s *Store) GetPreference(ctx context.Context, userID uuid.UUID) (*notifications.Preference, bool, error) {
	var p notifications.Preference
	var id, frequency, digestType string
	var categories sql.NullString
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = ?1`,
		userID.String()).Scan(
		&id, &p.Enabled, &p.AllowEmail, &p.AllowSMS, &p.AllowPush, &p.AllowInApp,
		&categories, &p.QuietHoursStart, &p.QuietHoursEnd, &p.QuietHoursTimezone,
		&frequency, &p.DigestEnabled, &digestType, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select preference: %s", err)
	}
	if p.UserID, err = parseUUID(id); err != nil {
		return nil, false, err
	}
	if err := unmarshalJSON(categories, &p.Categories); err != nil {
		return nil, false, fmt.Errorf("categories: %s", err)
	}
	p.EmailFrequency = notifications.EmailFrequency(frequency)
	p.DigestType = notifications.DigestType(digestType)
	p.UpdatedAt = fromTS(updatedAt)
	return &p, true, nil
}

// PutPreference upserts the user's notification policy, one row per user.
func (s *Store) PutPreference(ctx context.Context, p *notifications.Preference) error {
	categories, err := marshalJSON(p.Categories)
	if err != nil {
		return fmt.Errorf("categories: %s", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (`+preferenceColumns+`)
		 VALUES (`+placeholders(columnCount(preferenceColumns))+`)
		 ON CONFLICT (user_id) DO UPDATE SET
		 enabled = excluded.enabled,
		 allow_email = excluded.allow_email,
		 allow_sms = excluded.allow_sms,
		 allow_push = excluded.allow_push,
		 allow_in_app = excluded.allow_in_app,
		 categories = excluded.categories,
		 quiet_hours_start = excluded.quiet_hours_start,
		 quiet_hours_end = excluded.quiet_hours_end,
		 quiet_hours_timezone = excluded.quiet_hours_timezone,
		 email_frequency = excluded.email_frequency,
		 digest_enabled = excluded.digest_enabled,
		 digest_type = excluded.digest_type,
		 updated_at = excluded.updated_at`,
		p.UserID.String(), p.Enabled, p.AllowEmail, p.AllowSMS, p.AllowPush, p.AllowInApp,
		categories, p.QuietHoursStart, p.QuietHoursEnd, p.QuietHoursTimezone,
		string(p.EmailFrequency), p.DigestEnabled, string(p.DigestType), tsOf(p.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert notification_preferences: %s", err)
	}
	return nil
}

// ListDigestUsers lists users whose preference enables digests of the given
// type.
func (s *Store) ListDigestUsers(ctx context.Context, digestType notifications.DigestType) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM notification_preferences
		 WHERE enabled = 1 AND digest_enabled = 1 AND digest_type = ?1
		 ORDER BY user_id`, string(digestType))
	if err != nil {
		return nil, fmt.Errorf("select digest users: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing digest user rows")
		}
	}()

	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning digest user: %s", err)
		}
		userID, err := parseUUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating digest users: %s", err)
	}
	return out, nil
}

// ListNotificationsForDigest lists the user's notifications created inside
// [from, to), excluding cancelled ones.
func (s *Store) ListNotificationsForDigest(
	ctx context.Context, userID uuid.UUID, from, to time.Time,
) ([]notifications.Notification, error) {
	return s.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE recipient_id = ?1 AND created_at >= ?2 AND created_at < ?3 AND status != 'cancelled'
		 ORDER BY created_at`,
		userID.String(), tsOf(from), tsOf(to))
}

// CountRecentByTemplate counts notifications created for the recipient from
// the given template since the given instant. Drives the per-template daily cap.
func (s *Store) CountRecentByTemplate(
	ctx context.Context, recipientID uuid.UUID, template string, since time.Time,
) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(1) FROM notifications
		 WHERE recipient_id = ?1 AND template = ?2 AND created_at >= ?3`,
		recipientID.String(), template, tsOf(since),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications by template: %s", err)
	}
	return count, nil
}

const digestColumns = `id, user_id, digest_type, period_start, period_end, notification_count, summary_data, created_at`

// HasDigest reports whether a digest for (user, type, period_start) was
// already generated.
func (s *Store) HasDigest(
	ctx context.Context, userID uuid.UUID, digestType notifications.DigestType, periodStart time.Time,
) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(1) FROM notification_digests
		 WHERE user_id = ?1 AND digest_type = ?2 AND period_start = ?3`,
		userID.String(), string(digestType), tsOf(periodStart),
	).Scan(&count); err != nil {
		return false, fmt.Errorf("count digests: %s", err)
	}
	return count > 0, nil
}

// InsertDigest stores a generated digest.
func (s *Store) InsertDigest(ctx context.Context, d *notifications.Digest) error {
	summary, err := nullableJSON(d.SummaryData)
	if err != nil {
		return fmt.Errorf("summary_data: %s", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_digests (`+digestColumns+`)
		 VALUES (`+placeholders(columnCount(digestColumns))+`)`,
		d.ID.String(), d.UserID.String(), string(d.Type),
		tsOf(d.PeriodStart), tsOf(d.PeriodEnd), d.NotificationCount, summary, tsOf(d.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert into notification_digests: %s", err)
	}
	return nil
}

// ListDigests lists the user's digests, newest first.
func (s *Store) ListDigests(ctx context.Context, userID uuid.UUID, limit int) ([]notifications.Digest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+digestColumns+` FROM notification_digests
		 WHERE user_id = ?1 ORDER BY created_at DESC LIMIT ?2`,
		userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("select digests: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing digest rows")
		}
	}()

	out := make([]notifications.Digest, 0)
	for rows.Next() {
		var d notifications.Digest
		var id, userID, digestType string
		var summary sql.NullString
		var periodStart, periodEnd, createdAt int64
		if err := rows.Scan(
			&id, &userID, &digestType, &periodStart, &periodEnd, &d.NotificationCount, &summary, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning digest: %s", err)
		}
		if d.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if d.UserID, err = parseUUID(userID); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(summary, &d.SummaryData); err != nil {
			return nil, fmt.Errorf("summary_data: %s", err)
		}
		d.Type = notifications.DigestType(digestType)
		d.PeriodStart = fromTS(periodStart)
		d.PeriodEnd = fromTS(periodEnd)
		d.CreatedAt = fromTS(createdAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating digests: %s", err)
	}
	return out, nil
}

// dayOf buckets an instant into its UTC day.
func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// AddAnalytics folds the delta counters into the (day, channel) row and
// refreshes its rates.
func (s *Store) AddAnalytics(ctx context.Context, delta notifications.Analytics) error {
	day := dayOf(delta.Date)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current := notifications.Analytics{Date: day, Channel: delta.Channel}
		err := tx.QueryRowContext(ctx,
			`SELECT sent_count, delivered_count, failed_count, read_count, clicked_count
			 FROM notification_analytics WHERE "date" = ?1 AND channel = ?2`,
			tsOf(day), string(delta.Channel)).Scan(
			&current.SentCount, &current.DeliveredCount, &current.FailedCount,
			&current.ReadCount, &current.ClickedCount,
		)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("select analytics row: %s", err)
		}
		current.SentCount += delta.SentCount
		current.DeliveredCount += delta.DeliveredCount
		current.FailedCount += delta.FailedCount
		current.ReadCount += delta.ReadCount
		current.ClickedCount += delta.ClickedCount
		current.Recompute()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_analytics
			 ("date", channel, sent_count, delivered_count, failed_count, read_count, clicked_count,
			  delivery_rate, read_rate, click_rate)
			 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)
			 ON CONFLICT ("date", channel) DO UPDATE SET
			 sent_count = excluded.sent_count,
			 delivered_count = excluded.delivered_count,
			 failed_count = excluded.failed_count,
			 read_count = excluded.read_count,
			 clicked_count = excluded.clicked_count,
			 delivery_rate = excluded.delivery_rate,
			 read_rate = excluded.read_rate,
			 click_rate = excluded.click_rate`,
			tsOf(day), string(current.Channel),
			current.SentCount, current.DeliveredCount, current.FailedCount,
			current.ReadCount, current.ClickedCount,
			current.DeliveryRate, current.ReadRate, current.ClickRate,
		); err != nil {
			return fmt.Errorf("upsert notification_analytics: %s", err)
		}
		return nil
	})
}

// AnalyticsRange returns the counter rows whose day falls inside [from, to].
func (s *Store) AnalyticsRange(ctx context.Context, from, to time.Time) ([]notifications.Analytics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT "date", channel, sent_count, delivered_count, failed_count, read_count, clicked_count,
		 delivery_rate, read_rate, click_rate
		 FROM notification_analytics
		 WHERE "date" >= ?1 AND "date" <= ?2
		 ORDER BY "date", channel`,
		tsOf(dayOf(from)), tsOf(dayOf(to)))
	if err != nil {
		return nil, fmt.Errorf("select analytics: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing analytics rows")
		}
	}()

	out := make([]notifications.Analytics, 0)
	for rows.Next() {
		var a notifications.Analytics
		var day int64
		var channel string
		if err := rows.Scan(
			&day, &channel, &a.SentCount, &a.DeliveredCount, &a.FailedCount, &a.ReadCount, &a.ClickedCount,
			&a.DeliveryRate, &a.ReadRate, &a.ClickRate,
		); err != nil {
			return nil, fmt.Errorf("scanning analytics row: %s", err)
		}
		a.Date = fromTS(day)
		a.Channel = notifications.ChannelType(channel)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analytics: %s", err)
	}
	return out, nil
}

// NotificationStats aggregates the notifications table. Failed-today is
// measured against the current UTC day.
func (s *Store) NotificationStats(ctx context.Context) (*notifications.Stats, error) {
	stats := &notifications.Stats{
		ByStatus:  map[notifications.Status]int64{},
		ByChannel: map[notifications.ChannelType]int64{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("select status counts: %s", err)
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning status count: %s", err)
		}
		stats.ByStatus[notifications.Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating status counts: %s", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing status count rows: %s", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT channel, COUNT(*) FROM notification_deliveries GROUP BY channel`)
	if err != nil {
		return nil, fmt.Errorf("select channel counts: %s", err)
	}
	for rows.Next() {
		var channel string
		var count int64
		if err := rows.Scan(&channel, &count); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning channel count: %s", err)
		}
		stats.ByChannel[notifications.ChannelType(channel)] = count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating channel counts: %s", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing channel count rows: %s", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE is_read = 0`).Scan(&stats.Unread); err != nil {
		return nil, fmt.Errorf("counting unread: %s", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = 'failed' AND updated_at >= ?1`,
		tsOf(dayOf(time.Now()))).Scan(&stats.FailedToday); err != nil {
		return nil, fmt.Errorf("counting failed today: %s", err)
	}
	return stats, nil
}
