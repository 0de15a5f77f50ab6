package impl

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	"github.com/viviendahub/go-viviendahub/pkg/clock"
	sqlstoreimpl "github.com/viviendahub/go-viviendahub/pkg/sqlstore/impl"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
	"github.com/viviendahub/go-viviendahub/tests"
)

type fakeAdapter struct {
	channel notifications.ChannelType

	mu       sync.Mutex
	sent     []channels.View
	failures int
}

func (a *fakeAdapter) Type() notifications.ChannelType { return a.channel }

func (a *fakeAdapter) Send(_ context.Context, view channels.View) (*channels.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures > 0 {
		a.failures--
		return nil, fmt.Errorf("gateway unavailable")
	}
	a.sent = append(a.sent, view)
	return &channels.Result{ExternalID: uuid.NewString(), SentTo: view.RecipientEmail}, nil
}

func (a *fakeAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type fixture struct {
	dispatcher *Dispatcher
	store      *sqlstoreimpl.Store
	clock      *clock.Manual
	email      *fakeAdapter
	inApp      *fakeAdapter
	user       userdir.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := sqlstoreimpl.NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manual := clock.NewManual(time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC))
	user := userdir.User{
		ID:    uuid.New(),
		Email: "tenant@example.com",
		Phone: "+34600111222",
		Name:  "Carmen Ruiz",
		Role:  userdir.RoleTenant,
	}
	directory := userdir.NewStaticDirectory()
	directory.Put(user, "token-"+user.ID.String())

	email := &fakeAdapter{channel: notifications.ChannelEmail}
	inApp := &fakeAdapter{channel: notifications.ChannelInApp}
	manager := channels.NewManager(
		channels.Channel{Adapter: inApp, Priority: 1, RetryAttempts: 3, RetryDelay: time.Minute},
		channels.Channel{Adapter: email, Priority: 2, RetryAttempts: 3, RetryDelay: time.Minute},
	)

	opts = append([]Option{WithClock(manual)}, opts...)
	dispatcher, err := NewDispatcher(store, directory, manager, opts...)
	require.NoError(t, err)

	return &fixture{
		dispatcher: dispatcher,
		store:      store,
		clock:      manual,
		email:      email,
		inApp:      inApp,
		user:       user,
	}
}

func TestCreateDispatchesAllowedChannels(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Contract update",
		Message:     "The landlord completed the contract data",
		Channels:    []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	require.Equal(t, 1, f.email.sentCount())
	require.Equal(t, 1, f.inApp.sentCount())

	stored, deliveries, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notifications.StatusSent, stored.Status)
	require.Len(t, deliveries, 2)
	for _, delivery := range deliveries {
		require.Equal(t, notifications.DeliverySent, delivery.Status)
		require.NotEmpty(t, delivery.ExternalID)
	}
}

func TestPreferencesBlockDeliveryNotCreation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	pref := notifications.DefaultPreference(f.user.ID)
	pref.AllowEmail = false
	_, err := f.dispatcher.PutPreference(ctx, *pref)
	require.NoError(t, err)

	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Objection received",
		Message:     "The tenant objected to the monthly rent",
		Channels:    []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	_, deliveries, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, notifications.ChannelInApp, deliveries[0].Channel)
	require.Equal(t, 0, f.email.sentCount())
	require.Equal(t, 1, f.inApp.sentCount())
}

func TestMasterSwitchBlocksCreation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	pref := notifications.DefaultPreference(f.user.ID)
	pref.Enabled = false
	_, err := f.dispatcher.PutPreference(ctx, *pref)
	require.NoError(t, err)

	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Blocked",
		Message:     "never created",
	})
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestQuietHoursBlockNonCritical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	pref := notifications.DefaultPreference(f.user.ID)
	pref.QuietHoursStart = "14:00"
	pref.QuietHoursEnd = "16:00"
	_, err := f.dispatcher.PutPreference(ctx, *pref)
	require.NoError(t, err)

	// The fixture clock sits at 15:00 UTC, inside the window.
	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Quiet",
		Message:     "blocked by quiet hours",
	})
	require.NoError(t, err)
	require.Nil(t, n)

	urgent, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategorySecurity,
		Priority:    notifications.PriorityCritical,
		Title:       "Security alert",
		Message:     "critical bypasses quiet hours",
	})
	require.NoError(t, err)
	require.NotNil(t, urgent)
}

func TestTemplateDailyCap(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithTemplateDailyCap(2))
	ctx := context.Background()

	params := notifications.CreateParams{
		RecipientID: f.user.ID,
		Template:    TemplateMatchReceived,
		Data: map[string]interface{}{
			"property_address": "Calle Mayor 1",
			"tenant_name":      "Carmen Ruiz",
			"score":            85,
		},
	}
	for i := 0; i < 2; i++ {
		n, err := f.dispatcher.Create(ctx, params)
		require.NoError(t, err)
		require.NotNil(t, n)
	}
	capped, err := f.dispatcher.Create(ctx, params)
	require.NoError(t, err)
	require.Nil(t, capped)

	// A new day resets the cap.
	f.clock.Advance(24 * time.Hour)
	fresh, err := f.dispatcher.Create(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, fresh)
}

func TestTemplateRendering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Template:    TemplateInvitationReceived,
		Data: map[string]interface{}{
			"property_address": "Calle Mayor 1, Madrid",
			"landlord_name":    "Pedro Gomez",
			"contract_number":  "VH-2025-000042",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "Rental invitation for Calle Mayor 1, Madrid", n.Title)
	require.Equal(t, "Pedro Gomez invited you to review rental contract VH-2025-000042.", n.Message)
	require.Equal(t, notifications.CategoryContract, n.Category)
}

func TestFailedDeliveryRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.email.failures = 1
	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Flaky",
		Message:     "first email attempt fails",
		Channels:    []notifications.ChannelType{notifications.ChannelEmail},
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	_, deliveries, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, notifications.DeliveryFailed, deliveries[0].Status)
	require.Equal(t, 1, deliveries[0].RetryCount)
	require.True(t, deliveries[0].CanRetry)
	require.NotNil(t, deliveries[0].NextRetryAt)

	// Before the backoff elapses nothing is retried.
	result, err := f.dispatcher.RetryFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)

	f.clock.Advance(2 * time.Minute)
	result, err = f.dispatcher.RetryFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, f.email.sentCount())

	stored, deliveries, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notifications.StatusSent, stored.Status)
	require.Equal(t, notifications.DeliverySent, deliveries[0].Status)
}

func TestRetriesExhaust(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.email.failures = 10
	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Dead letter",
		Message:     "every attempt fails",
		Channels:    []notifications.ChannelType{notifications.ChannelEmail},
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Hour)
		if _, err := f.dispatcher.RetryFailed(ctx); err != nil {
			t.Fatal(err)
		}
	}

	stored, deliveries, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notifications.StatusFailed, stored.Status)
	require.Equal(t, notifications.DeliveryFailed, deliveries[0].Status)
	require.False(t, deliveries[0].CanRetry)
	require.Equal(t, 3, deliveries[0].RetryCount)
}

func TestScheduledNotificationWaitsForItsTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	at := f.clock.Now().Add(time.Hour)
	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Later",
		Message:     "sent in an hour",
		Channels:    []notifications.ChannelType{notifications.ChannelInApp},
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, 0, f.inApp.sentCount())

	result, err := f.dispatcher.ProcessScheduled(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)

	f.clock.Advance(2 * time.Hour)
	result, err = f.dispatcher.ProcessScheduled(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Sent)
	require.Equal(t, 1, f.inApp.sentCount())
}

func TestScheduledNotificationExpires(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	at := f.clock.Now().Add(time.Hour)
	expiry := f.clock.Now().Add(2 * time.Hour)
	n, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "Perishable",
		Message:     "expires unsent",
		Channels:    []notifications.ChannelType{notifications.ChannelInApp},
		ScheduledAt: &at,
		ExpiresAt:   &expiry,
	})
	require.NoError(t, err)
	require.NotNil(t, n)

	f.clock.Advance(3 * time.Hour)
	result, err := f.dispatcher.ProcessScheduled(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)
	require.Equal(t, 0, f.inApp.sentCount())

	stored, _, err := f.dispatcher.Get(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, notifications.StatusCancelled, stored.Status)
}

func TestDispatchRateLimitIsDeliveryFailure(t *testing.T) {
	t.Parallel()

	store, err := sqlstoreimpl.NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manual := clock.NewManual(time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC))
	user := userdir.User{ID: uuid.New(), Email: "t@example.com", Role: userdir.RoleTenant}
	directory := userdir.NewStaticDirectory()
	directory.Put(user, "tok")

	inApp := &fakeAdapter{channel: notifications.ChannelInApp}
	manager := channels.NewManager(
		channels.Channel{Adapter: inApp, Priority: 1, RetryAttempts: 3, RetryDelay: time.Minute, PerMinute: 1},
	)
	dispatcher, err := NewDispatcher(store, directory, manager, WithClock(manual))
	require.NoError(t, err)

	ctx := context.Background()
	first, err := dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: user.ID,
		Category:    notifications.CategoryContract,
		Title:       "one",
		Message:     "within the window",
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, 1, inApp.sentCount())

	second, err := dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: user.ID,
		Category:    notifications.CategoryContract,
		Title:       "two",
		Message:     "over the window",
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, 1, inApp.sentCount())

	_, deliveries, err := dispatcher.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, notifications.DeliveryFailed, deliveries[0].Status)
	require.Equal(t, "Rate limit exceeded", deliveries[0].ErrorMessage)
	// The limited attempt consumed no retry slot.
	require.Equal(t, 0, deliveries[0].RetryCount)
	require.True(t, deliveries[0].CanRetry)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.dispatcher.Create(ctx, notifications.CreateParams{
			RecipientID: f.user.ID,
			Category:    notifications.CategoryContract,
			Title:       fmt.Sprintf("update %d", i),
			Message:     "unread",
			Channels:    []notifications.ChannelType{notifications.ChannelInApp},
		})
		require.NoError(t, err)
	}

	unread, err := f.dispatcher.UnreadCount(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), unread)

	changed, err := f.dispatcher.MarkAllRead(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), changed)

	changed, err = f.dispatcher.MarkAllRead(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), changed)

	unread, err = f.dispatcher.UnreadCount(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), unread)
}

func TestCreateDigestsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	pref := notifications.DefaultPreference(f.user.ID)
	pref.DigestEnabled = true
	pref.DigestType = notifications.DigestDaily
	_, err := f.dispatcher.PutPreference(ctx, *pref)
	require.NoError(t, err)

	_, err = f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "yesterday's news",
		Message:     "aggregated tomorrow",
		Channels:    []notifications.ChannelType{notifications.ChannelInApp},
	})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	created, err := f.dispatcher.CreateDigests(ctx, notifications.DigestDaily)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	created, err = f.dispatcher.CreateDigests(ctx, notifications.DigestDaily)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	digests, err := f.dispatcher.Digests(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, digests, 1)
	require.Equal(t, 1, digests[0].NotificationCount)
	require.NotEmpty(t, digests[0].SummaryData)
}

func TestAnalyticsCountsSends(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dispatcher.Create(ctx, notifications.CreateParams{
		RecipientID: f.user.ID,
		Category:    notifications.CategoryContract,
		Title:       "counted",
		Message:     "analytics row per channel",
		Channels:    []notifications.ChannelType{notifications.ChannelEmail, notifications.ChannelInApp},
	})
	require.NoError(t, err)

	day := f.clock.Now().Truncate(24 * time.Hour)
	rows, err := f.dispatcher.Analytics(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, int64(1), row.SentCount)
		require.Equal(t, float64(1), row.DeliveryRate)
	}
}
