package notifications

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPreferenceChannelGating(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference(uuid.New())
	require.True(t, pref.AllowsChannel(ChannelEmail))
	require.True(t, pref.AllowsChannel(ChannelSMS))
	require.True(t, pref.AllowsChannel(ChannelPush))
	require.True(t, pref.AllowsChannel(ChannelInApp))

	pref.AllowSMS = false
	require.False(t, pref.AllowsChannel(ChannelSMS))
	require.True(t, pref.AllowsChannel(ChannelEmail))

	// Master switch wins over every per-channel switch.
	pref.Enabled = false
	require.False(t, pref.AllowsChannel(ChannelEmail))
	require.False(t, pref.AllowsChannel(ChannelInApp))
}

func TestPreferenceCategoryGating(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference(uuid.New())

	// Unset categories default to allowed.
	require.True(t, pref.AllowsCategory(CategoryContract))

	pref.Categories[CategoryMarketing] = false
	require.False(t, pref.AllowsCategory(CategoryMarketing))
	require.True(t, pref.AllowsCategory(CategoryContract))

	// Security can never be muted.
	pref.Categories[CategorySecurity] = false
	require.True(t, pref.AllowsCategory(CategorySecurity))
	pref.Enabled = false
	require.True(t, pref.AllowsCategory(CategorySecurity))
	require.False(t, pref.AllowsCategory(CategoryContract))
}

func TestPreferenceQuietHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start string
		end   string
		at    time.Time
		want  bool
	}{
		{
			name: "unset window never quiet",
			at:   time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name:  "inside same-day window",
			start: "13:00",
			end:   "15:00",
			at:    time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "outside same-day window",
			start: "13:00",
			end:   "15:00",
			at:    time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "midnight-spanning window late evening",
			start: "22:00",
			end:   "08:00",
			at:    time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "midnight-spanning window early morning",
			start: "22:00",
			end:   "08:00",
			at:    time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "midnight-spanning window daytime",
			start: "22:00",
			end:   "08:00",
			at:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "window end is exclusive",
			start: "22:00",
			end:   "08:00",
			at:    time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "unparseable start disables window",
			start: "soon",
			end:   "08:00",
			at:    time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
			want:  false,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pref := DefaultPreference(uuid.New())
			pref.QuietHoursStart = tc.start
			pref.QuietHoursEnd = tc.end
			require.Equal(t, tc.want, pref.InQuietHours(tc.at))
		})
	}
}

func TestPreferenceQuietHoursTimezone(t *testing.T) {
	t.Parallel()

	pref := DefaultPreference(uuid.New())
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	pref.QuietHoursTimezone = "America/Mexico_City"

	// 05:00 UTC is 23:00 the previous evening in Mexico City (UTC-6).
	at := time.Date(2025, 1, 15, 5, 0, 0, 0, time.UTC)
	require.True(t, pref.InQuietHours(at))

	// 18:00 UTC is noon in Mexico City.
	at = time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	require.False(t, pref.InQuietHours(at))
}

func TestPriorityCritical(t *testing.T) {
	t.Parallel()

	require.False(t, PriorityLow.Critical())
	require.False(t, PriorityNormal.Critical())
	require.False(t, PriorityHigh.Critical())
	require.True(t, PriorityUrgent.Critical())
	require.True(t, PriorityCritical.Critical())
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	base := 5 * time.Minute
	require.Equal(t, 5*time.Minute, RetryDelay(base, 0))
	require.Equal(t, 10*time.Minute, RetryDelay(base, 1))
	require.Equal(t, 15*time.Minute, RetryDelay(base, 2))
}

func TestAnalyticsRecompute(t *testing.T) {
	t.Parallel()

	a := Analytics{
		SentCount:    80,
		FailedCount:  20,
		ReadCount:    40,
		ClickedCount: 8,
	}
	a.Recompute()
	require.InDelta(t, 0.8, a.DeliveryRate, 1e-9)
	require.InDelta(t, 0.5, a.ReadRate, 1e-9)
	require.InDelta(t, 0.1, a.ClickRate, 1e-9)

	empty := Analytics{}
	empty.Recompute()
	require.Zero(t, empty.DeliveryRate)
	require.Zero(t, empty.ReadRate)
	require.Zero(t, empty.ClickRate)
}

func TestDigestWindow(t *testing.T) {
	t.Parallel()

	require.Equal(t, 24*time.Hour, DigestDaily.Window())
	require.Equal(t, 7*24*time.Hour, DigestWeekly.Window())
	require.Equal(t, 30*24*time.Hour, DigestMonthly.Window())
}

func TestNotificationExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	n := Notification{}
	require.False(t, n.ExpiredNow(now))

	expiry := now.Add(-time.Minute)
	n.ExpiresAt = &expiry
	require.True(t, n.ExpiredNow(now))

	expiry = now.Add(time.Minute)
	require.False(t, n.ExpiredNow(now))
}
