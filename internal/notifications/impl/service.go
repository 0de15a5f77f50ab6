// Package impl implements the notification dispatcher: preference-gated
// creation, multi-channel fan-out with per-channel rate windows and retries,
// scheduled sweeps, digests and analytics.
package impl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"golang.org/x/sync/errgroup"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	"github.com/viviendahub/go-viviendahub/pkg/clock"
	"github.com/viviendahub/go-viviendahub/pkg/sqlstore"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// DefaultTemplateDailyCap caps notifications per (user, template) per day.
const DefaultTemplateDailyCap = 10

// DefaultBatchSize bounds one sweep of the scheduled and retry jobs.
const DefaultBatchSize = 200

// Dispatcher implements notifications.Service.
type Dispatcher struct {
	log      zerolog.Logger
	store    sqlstore.NotificationStore
	users    userdir.Directory
	channels *channels.Manager
	clock    clock.Clock

	templates        map[string]Template
	templateDailyCap int64
	batchSize        int

	minuteWindows map[notifications.ChannelType]limiter.Store
	hourWindows   map[notifications.ChannelType]limiter.Store
}

var _ notifications.Service = (*Dispatcher)(nil)

// Option modifies a Dispatcher default.
type Option func(*Dispatcher) error

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) error {
		d.clock = c
		return nil
	}
}

// WithTemplateDailyCap overrides the per-template daily cap. Zero disables it.
func WithTemplateDailyCap(limit int64) Option {
	return func(d *Dispatcher) error {
		if limit < 0 {
			return fmt.Errorf("template daily cap must be non-negative")
		}
		d.templateDailyCap = limit
		return nil
	}
}

// WithBatchSize overrides the sweep batch size.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive")
		}
		d.batchSize = size
		return nil
	}
}

// NewDispatcher creates the dispatcher and its per-channel dispatch windows.
func NewDispatcher(
	store sqlstore.NotificationStore,
	users userdir.Directory,
	manager *channels.Manager,
	opts ...Option,
) (*Dispatcher, error) {
	d := &Dispatcher{
		log:              logger.With().Str("component", "notifications").Logger(),
		store:            store,
		users:            users,
		channels:         manager,
		clock:            clock.System{},
		templates:        builtinTemplates,
		templateDailyCap: DefaultTemplateDailyCap,
		batchSize:        DefaultBatchSize,
		minuteWindows:    map[notifications.ChannelType]limiter.Store{},
		hourWindows:      map[notifications.ChannelType]limiter.Store{},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}
	for _, t := range manager.Types() {
		channel, _ := manager.Get(t)
		if channel.PerMinute > 0 {
			window, err := memorystore.New(&memorystore.Config{
				Tokens:   channel.PerMinute,
				Interval: time.Minute,
			})
			if err != nil {
				return nil, fmt.Errorf("creating minute window for %s: %s", t, err)
			}
			d.minuteWindows[t] = window
		}
		if channel.PerHour > 0 {
			window, err := memorystore.New(&memorystore.Config{
				Tokens:   channel.PerHour,
				Interval: time.Hour,
			})
			if err != nil {
				return nil, fmt.Errorf("creating hour window for %s: %s", t, err)
			}
			d.hourWindows[t] = window
		}
	}
	return d, nil
}

// Create implements notifications.Service. It returns (nil, nil) when the
// recipient's preferences, the daily template cap or quiet hours block the
// notification entirely.
func (d *Dispatcher) Create(
	ctx context.Context, params notifications.CreateParams,
) (*notifications.Notification, error) {
	now := d.clock.Now()

	if params.RecipientID == uuid.Nil {
		return nil, fmt.Errorf("recipient is required")
	}
	var tmpl *Template
	if params.Template != "" {
		t, ok := d.templates[params.Template]
		if !ok {
			return nil, fmt.Errorf("unknown template %q", params.Template)
		}
		tmpl = &t
	}
	if tmpl == nil && params.Title == "" {
		return nil, fmt.Errorf("title is required without a template")
	}

	category := params.Category
	priority := params.Priority
	requested := params.Channels
	title := params.Title
	message := params.Message
	if tmpl != nil {
		if category == "" {
			category = tmpl.Category
		}
		if priority == "" {
			priority = tmpl.Priority
		}
		if len(requested) == 0 {
			requested = tmpl.Channels
		}
		rendered, err := renderTemplate(tmpl.Title, params.Data)
		if err == nil && rendered != "" {
			title = rendered
		} else if title == "" {
			title = tmpl.Title
		}
		rendered, err = renderTemplate(tmpl.Message, params.Data)
		if err == nil && rendered != "" {
			message = rendered
		} else if message == "" {
			message = tmpl.Message
		}
	}
	if category == "" {
		category = notifications.CategorySystem
	}
	if priority == "" {
		priority = notifications.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", priority)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	if len(requested) == 0 {
		requested = []notifications.ChannelType{notifications.ChannelInApp}
	}
	if params.ExpiresAt != nil && !params.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	pref, err := d.preference(ctx, params.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("loading preference: %s", err)
	}
	if !pref.AllowsCategory(category) {
		return nil, nil
	}
	if pref.InQuietHours(now) && !priority.Critical() {
		return nil, nil
	}
	if params.Template != "" && d.templateDailyCap > 0 {
		count, err := d.store.CountRecentByTemplate(ctx, params.RecipientID, params.Template, dayStart(now))
		if err != nil {
			return nil, fmt.Errorf("counting template sends: %s", err)
		}
		if count >= d.templateDailyCap {
			return nil, nil
		}
	}

	n := &notifications.Notification{
		ID:          uuid.New(),
		RecipientID: params.RecipientID,
		Template:    params.Template,
		Category:    category,
		Title:       title,
		Message:     message,
		Priority:    priority,
		Status:      notifications.StatusPending,
		ActionURL:   params.ActionURL,
		DeepLink:    params.DeepLink,
		Data:        params.Data,
		Content:     params.Content,
		ScheduledAt: params.ScheduledAt,
		ExpiresAt:   params.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var deliveries []notifications.Delivery
	for _, channel := range d.channels.Resolve(requested) {
		if !pref.AllowsChannel(channel.Type()) {
			continue
		}
		deliveries = append(deliveries, notifications.Delivery{
			ID:             uuid.New(),
			NotificationID: n.ID,
			Channel:        channel.Type(),
			Status:         notifications.DeliveryPending,
			CanRetry:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := d.store.InsertNotification(ctx, n, deliveries); err != nil {
		return nil, fmt.Errorf("storing notification: %s", err)
	}

	if params.ScheduledAt == nil {
		if err := d.send(ctx, n, deliveries); err != nil {
			// Delivery trouble never fails the creating operation.
			d.log.Warn().Err(err).Str("notificationId", n.ID.String()).Msg("immediate dispatch failed")
		}
	}
	return n, nil
}

// BulkSend implements notifications.Service.
func (d *Dispatcher) BulkSend(
	ctx context.Context, params notifications.BulkParams,
) (*notifications.BulkResult, error) {
	result := &notifications.BulkResult{}
	for _, recipientID := range params.RecipientIDs {
		n, err := d.Create(ctx, notifications.CreateParams{
			RecipientID: recipientID,
			Template:    params.Template,
			Category:    params.Category,
			Title:       params.Title,
			Message:     params.Message,
			Priority:    params.Priority,
			Channels:    params.Channels,
			Data:        params.Data,
			Content:     params.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("creating notification for %s: %s", recipientID, err)
		}
		if n == nil {
			result.Skipped++
			continue
		}
		result.Created++
	}
	return result, nil
}

// send dispatches the pending deliveries of one notification in parallel
// across channels, then rolls the notification status up.
func (d *Dispatcher) send(
	ctx context.Context, n *notifications.Notification, deliveries []notifications.Delivery,
) error {
	view := d.buildView(ctx, n)

	var g errgroup.Group
	for i := range deliveries {
		delivery := &deliveries[i]
		if delivery.Status != notifications.DeliveryPending && delivery.Status != notifications.DeliveryFailed {
			continue
		}
		g.Go(func() error {
			d.dispatchDelivery(ctx, n, delivery, view)
			return nil
		})
	}
	_ = g.Wait()

	return d.rollUp(ctx, n)
}

// dispatchDelivery attempts one delivery lane and persists the outcome. All
// failures stay on the delivery row.
func (d *Dispatcher) dispatchDelivery(
	ctx context.Context,
	n *notifications.Notification,
	delivery *notifications.Delivery,
	view channels.View,
) {
	now := d.clock.Now()
	channel, ok := d.channels.Get(delivery.Channel)
	if !ok {
		d.failDelivery(ctx, delivery, channel, "channel not configured", now, false)
		return
	}

	if reset, limited := d.takeWindow(ctx, n.RecipientID, delivery.Channel); limited {
		// A limited send waits for the window, without consuming a retry slot.
		delivery.Status = notifications.DeliveryFailed
		delivery.ErrorMessage = "Rate limit exceeded"
		delivery.CanRetry = true
		delivery.NextRetryAt = &reset
		delivery.UpdatedAt = now
		if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
			d.log.Error().Err(err).Msg("storing rate-limited delivery")
		}
		d.addAnalytics(ctx, delivery.Channel, notifications.Analytics{FailedCount: 1})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, channel.CallTimeout())
	result, err := channel.Adapter.Send(callCtx, view)
	cancel()
	if err != nil {
		d.failDelivery(ctx, delivery, channel, err.Error(), now, true)
		return
	}

	delivery.Status = notifications.DeliverySent
	delivery.SentAt = &now
	delivery.ExternalID = result.ExternalID
	delivery.SentTo = result.SentTo
	delivery.ErrorMessage = ""
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = now
	if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
		d.log.Error().Err(err).Msg("storing sent delivery")
	}
	d.addAnalytics(ctx, delivery.Channel, notifications.Analytics{SentCount: 1})
}

func (d *Dispatcher) failDelivery(
	ctx context.Context,
	delivery *notifications.Delivery,
	channel channels.Channel,
	errMsg string,
	now time.Time,
	consumeRetry bool,
) {
	delivery.Status = notifications.DeliveryFailed
	delivery.ErrorMessage = errMsg
	delivery.UpdatedAt = now
	if consumeRetry {
		delivery.RetryCount++
	}
	if consumeRetry && delivery.RetryCount < channel.RetryAttempts {
		next := now.Add(notifications.RetryDelay(channel.RetryDelay, delivery.RetryCount))
		delivery.CanRetry = true
		delivery.NextRetryAt = &next
	} else if consumeRetry {
		delivery.CanRetry = false
		delivery.NextRetryAt = nil
	}
	if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
		d.log.Error().Err(err).Msg("storing failed delivery")
	}
	d.addAnalytics(ctx, delivery.Channel, notifications.Analytics{FailedCount: 1})
}

// takeWindow consumes one token from the per-minute and per-hour windows of
// (user, channel). It reports the earliest retry instant when limited.
func (d *Dispatcher) takeWindow(
	ctx context.Context, userID uuid.UUID, channel notifications.ChannelType,
) (time.Time, bool) {
	key := userID.String() + ":" + string(channel)
	if window, ok := d.minuteWindows[channel]; ok {
		_, _, reset, allowed, err := window.Take(ctx, key)
		if err != nil {
			d.log.Error().Err(err).Msg("taking minute window")
		} else if !allowed {
			return time.Unix(0, int64(reset)).UTC(), true
		}
	}
	if window, ok := d.hourWindows[channel]; ok {
		_, _, reset, allowed, err := window.Take(ctx, key)
		if err != nil {
			d.log.Error().Err(err).Msg("taking hour window")
		} else if !allowed {
			return time.Unix(0, int64(reset)).UTC(), true
		}
	}
	return time.Time{}, false
}

// rollUp recomputes the notification status from its delivery lanes.
func (d *Dispatcher) rollUp(ctx context.Context, n *notifications.Notification) error {
	deliveries, err := d.store.GetDeliveries(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("loading deliveries: %s", err)
	}
	if len(deliveries) == 0 {
		return nil
	}

	now := d.clock.Now()
	anySent, allFailed := false, true
	for _, delivery := range deliveries {
		switch delivery.Status {
		case notifications.DeliverySent, notifications.DeliveryDelivered:
			anySent = true
			allFailed = false
		case notifications.DeliveryFailed:
		default:
			allFailed = false
		}
	}
	switch {
	case anySent:
		if n.Status == notifications.StatusPending || n.Status == notifications.StatusProcessing ||
			n.Status == notifications.StatusFailed {
			n.Status = notifications.StatusSent
			n.SentAt = &now
		}
	case allFailed:
		n.Status = notifications.StatusFailed
	default:
		return nil
	}
	n.UpdatedAt = now
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return fmt.Errorf("storing notification status: %s", err)
	}
	return nil
}

// buildView resolves the recipient contact data into the adapter view.
func (d *Dispatcher) buildView(ctx context.Context, n *notifications.Notification) channels.View {
	view := channels.View{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		Category:       n.Category,
		ActionURL:      n.ActionURL,
		DeepLink:       n.DeepLink,
		Data:           n.Data,
		CreatedAt:      n.CreatedAt,
	}
	user, err := d.users.Get(ctx, n.RecipientID)
	if err != nil {
		d.log.Warn().Err(err).Str("recipientId", n.RecipientID.String()).Msg("resolving recipient contact")
		return view
	}
	view.RecipientEmail = user.Email
	view.RecipientPhone = user.Phone
	view.RecipientName = user.Name
	return view
}

// Get implements notifications.Service.
func (d *Dispatcher) Get(
	ctx context.Context, id uuid.UUID,
) (*notifications.Notification, []notifications.Delivery, error) {
	n, ok, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading notification: %s", err)
	}
	if !ok {
		return nil, nil, nil
	}
	deliveries, err := d.store.GetDeliveries(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading deliveries: %s", err)
	}
	return n, deliveries, nil
}

// Search implements notifications.Service.
func (d *Dispatcher) Search(
	ctx context.Context, filter notifications.SearchFilter,
) ([]notifications.Notification, error) {
	return d.store.SearchNotifications(ctx, filter)
}

// MarkRead implements notifications.Service.
func (d *Dispatcher) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	changed, err := d.store.MarkNotificationRead(ctx, id, recipientID, d.clock.Now())
	if err != nil {
		return fmt.Errorf("marking notification read: %s", err)
	}
	if changed {
		d.addAnalytics(ctx, notifications.ChannelInApp, notifications.Analytics{ReadCount: 1})
	}
	return nil
}

// MarkAllRead implements notifications.Service.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	changed, err := d.store.MarkAllNotificationsRead(ctx, recipientID, d.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %s", err)
	}
	if changed > 0 {
		d.addAnalytics(ctx, notifications.ChannelInApp, notifications.Analytics{ReadCount: changed})
	}
	return changed, nil
}

// UnreadCount implements notifications.Service.
func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return d.store.UnreadNotificationCount(ctx, recipientID)
}

// Cancel implements notifications.Service.
func (d *Dispatcher) Cancel(ctx context.Context, id uuid.UUID) error {
	n, ok, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return fmt.Errorf("loading notification: %s", err)
	}
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	if n.Status != notifications.StatusPending && n.Status != notifications.StatusProcessing {
		return fmt.Errorf("notification %s is already %s", id, n.Status)
	}
	n.Status = notifications.StatusCancelled
	n.UpdatedAt = d.clock.Now()
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return fmt.Errorf("storing cancelled notification: %s", err)
	}
	return nil
}

// ProcessScheduled implements notifications.Service.
func (d *Dispatcher) ProcessScheduled(ctx context.Context) (*notifications.DispatchResult, error) {
	now := d.clock.Now()
	due, err := d.store.ListDueNotifications(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due notifications: %s", err)
	}

	result := &notifications.DispatchResult{}
	for i := range due {
		n := &due[i]
		result.Processed++
		if n.ExpiredNow(now) {
			n.Status = notifications.StatusCancelled
			n.UpdatedAt = now
			if err := d.store.UpdateNotification(ctx, n); err != nil {
				d.log.Error().Err(err).Msg("storing expired notification")
				continue
			}
			result.Expired++
			continue
		}
		deliveries, err := d.store.GetDeliveries(ctx, n.ID)
		if err != nil {
			d.log.Error().Err(err).Msg("loading deliveries for due notification")
			continue
		}
		if err := d.send(ctx, n, deliveries); err != nil {
			d.log.Error().Err(err).Msg("dispatching due notification")
			continue
		}
		d.tally(n, result)
	}
	return result, nil
}

// RetryFailed implements notifications.Service.
func (d *Dispatcher) RetryFailed(ctx context.Context) (*notifications.DispatchResult, error) {
	now := d.clock.Now()
	retryable, err := d.store.ListRetryableDeliveries(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing retryable deliveries: %s", err)
	}

	byNotification := map[uuid.UUID][]notifications.Delivery{}
	for _, delivery := range retryable {
		byNotification[delivery.NotificationID] = append(byNotification[delivery.NotificationID], delivery)
	}

	result := &notifications.DispatchResult{}
	for notificationID, deliveries := range byNotification {
		n, ok, err := d.store.GetNotification(ctx, notificationID)
		if err != nil {
			d.log.Error().Err(err).Msg("loading notification for retry")
			continue
		}
		if !ok {
			continue
		}
		result.Processed++
		if err := d.send(ctx, n, deliveries); err != nil {
			d.log.Error().Err(err).Msg("retrying deliveries")
			continue
		}
		d.tally(n, result)
	}
	return result, nil
}

func (d *Dispatcher) tally(n *notifications.Notification, result *notifications.DispatchResult) {
	switch n.Status {
	case notifications.StatusSent, notifications.StatusDelivered:
		result.Sent++
	case notifications.StatusFailed:
		result.Failed++
	default:
		result.Deferred++
	}
}

// CreateDigests implements notifications.Service. It is idempotent per
// (user, type, period): re-running within the same period creates nothing.
func (d *Dispatcher) CreateDigests(ctx context.Context, digestType notifications.DigestType) (int, error) {
	if !digestType.Valid() {
		return 0, fmt.Errorf("unknown digest type %q", digestType)
	}
	now := d.clock.Now()
	periodEnd := dayStart(now)
	periodStart := periodEnd.Add(-digestType.Window())

	userIDs, err := d.store.ListDigestUsers(ctx, digestType)
	if err != nil {
		return 0, fmt.Errorf("listing digest users: %s", err)
	}

	created := 0
	for _, userID := range userIDs {
		exists, err := d.store.HasDigest(ctx, userID, digestType, periodStart)
		if err != nil {
			return created, fmt.Errorf("checking digest existence: %s", err)
		}
		if exists {
			continue
		}
		batch, err := d.store.ListNotificationsForDigest(ctx, userID, periodStart, periodEnd)
		if err != nil {
			return created, fmt.Errorf("listing digest notifications: %s", err)
		}
		if len(batch) == 0 {
			continue
		}

		digest := &notifications.Digest{
			ID:                uuid.New(),
			UserID:            userID,
			Type:              digestType,
			PeriodStart:       periodStart,
			PeriodEnd:         periodEnd,
			NotificationCount: len(batch),
			SummaryData:       digestSummary(batch),
			CreatedAt:         now,
		}
		if err := d.store.InsertDigest(ctx, digest); err != nil {
			return created, fmt.Errorf("storing digest: %s", err)
		}
		if _, err := d.Create(ctx, notifications.CreateParams{
			RecipientID: userID,
			Template:    TemplateNotificationDigest,
			Data: map[string]interface{}{
				"digest_type":        string(digestType),
				"notification_count": len(batch),
			},
		}); err != nil {
			d.log.Warn().Err(err).Msg("sending digest notification")
		}
		created++
	}
	return created, nil
}

// digestSummary groups the window's notifications by priority and template
// and highlights the top five.
func digestSummary(batch []notifications.Notification) map[string]interface{} {
	byPriority := map[string]int{}
	byTemplate := map[string]int{}
	for _, n := range batch {
		byPriority[string(n.Priority)]++
		template := n.Template
		if template == "" {
			template = "direct"
		}
		byTemplate[template]++
	}

	ranked := make([]notifications.Notification, len(batch))
	copy(ranked, batch)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := priorityRank(ranked[i].Priority), priorityRank(ranked[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	highlights := make([]map[string]interface{}, 0, len(ranked))
	for _, n := range ranked {
		highlights = append(highlights, map[string]interface{}{
			"id":       n.ID.String(),
			"title":    n.Title,
			"priority": string(n.Priority),
		})
	}

	return map[string]interface{}{
		"by_priority": byPriority,
		"by_template": byTemplate,
		"highlights":  highlights,
	}
}

func priorityRank(p notifications.Priority) int {
	switch p {
	case notifications.PriorityCritical:
		return 5
	case notifications.PriorityUrgent:
		return 4
	case notifications.PriorityHigh:
		return 3
	case notifications.PriorityNormal:
		return 2
	default:
		return 1
	}
}

// GetPreference implements notifications.Service.
func (d *Dispatcher) GetPreference(ctx context.Context, userID uuid.UUID) (*notifications.Preference, error) {
	return d.preference(ctx, userID)
}

func (d *Dispatcher) preference(ctx context.Context, userID uuid.UUID) (*notifications.Preference, error) {
	pref, ok, err := d.store.GetPreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading preference: %s", err)
	}
	if !ok {
		return notifications.DefaultPreference(userID), nil
	}
	return pref, nil
}

// PutPreference implements notifications.Service.
func (d *Dispatcher) PutPreference(
	ctx context.Context, pref notifications.Preference,
) (*notifications.Preference, error) {
	if pref.UserID == uuid.Nil {
		return nil, fmt.Errorf("user is required")
	}
	if pref.EmailFrequency == "" {
		pref.EmailFrequency = notifications.EmailImmediate
	}
	if pref.DigestType == "" {
		pref.DigestType = notifications.DigestDaily
	}
	if !pref.DigestType.Valid() {
		return nil, fmt.Errorf("unknown digest type %q", pref.DigestType)
	}
	if (pref.QuietHoursStart == "") != (pref.QuietHoursEnd == "") {
		return nil, fmt.Errorf("quiet hours need both a start and an end")
	}
	if pref.QuietHoursStart != "" {
		if _, err := time.Parse("15:04", pref.QuietHoursStart); err != nil {
			return nil, fmt.Errorf("parsing quiet_hours_start: %s", err)
		}
		if _, err := time.Parse("15:04", pref.QuietHoursEnd); err != nil {
			return nil, fmt.Errorf("parsing quiet_hours_end: %s", err)
		}
	}
	if pref.QuietHoursTimezone != "" {
		if _, err := time.LoadLocation(pref.QuietHoursTimezone); err != nil {
			return nil, fmt.Errorf("parsing quiet_hours_timezone: %s", err)
		}
	}
	for category := range pref.Categories {
		if !category.Valid() {
			return nil, fmt.Errorf("unknown category %q", category)
		}
	}
	pref.UpdatedAt = d.clock.Now()
	if err := d.store.PutPreference(ctx, &pref); err != nil {
		return nil, fmt.Errorf("storing preference: %s", err)
	}
	return &pref, nil
}

// Digests implements notifications.Service.
func (d *Dispatcher) Digests(
	ctx context.Context, userID uuid.UUID, limit int,
) ([]notifications.Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	return d.store.ListDigests(ctx, userID, limit)
}

// Analytics implements notifications.Service.
func (d *Dispatcher) Analytics(
	ctx context.Context, from, to time.Time,
) ([]notifications.Analytics, error) {
	return d.store.AnalyticsRange(ctx, from, to)
}

// Statistics implements notifications.Service.
func (d *Dispatcher) Statistics(ctx context.Context) (*notifications.Stats, error) {
	return d.store.NotificationStats(ctx)
}

func (d *Dispatcher) addAnalytics(
	ctx context.Context, channel notifications.ChannelType, delta notifications.Analytics,
) {
	delta.Date = dayStart(d.clock.Now())
	delta.Channel = channel
	if err := d.store.AddAnalytics(ctx, delta); err != nil {
		d.log.Error().Err(err).Msg("adding analytics")
	}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
