package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectWithoutStore(t *testing.T) {
	metricStore = nil
	require.NoError(t, Collect(context.Background(), fakeGitSummary))
}

func TestCollectMockedStore(t *testing.T) {
	t.Run("git summary", func(t *testing.T) {
		s := &mockStore{}
		metricStore = s

		require.False(t, s.called)
		err := Collect(context.Background(), fakeGitSummary)
		require.NoError(t, err)
		require.True(t, s.called)
	})
	t.Run("contract published", func(t *testing.T) {
		s := &mockStore{}
		metricStore = s

		metric := ContractPublishedMetric{
			Version:        ContractPublishedMetricV1,
			ContractNumber: "VH-2025-000123",
			ContractType:   "urban",
			DurationMonths: 12,
			DaysToPublish:  9,
			Objections:     2,
		}
		err := Collect(context.Background(), metric)
		require.NoError(t, err)
		require.True(t, s.called)
	})
	t.Run("invitation flow", func(t *testing.T) {
		s := &mockStore{}
		metricStore = s

		metric := InvitationFlowMetric{
			Version:  InvitationFlowMetricV1,
			Event:    "accepted",
			Method:   "email",
			Attempts: 1,
		}
		err := Collect(context.Background(), metric)
		require.NoError(t, err)
		require.True(t, s.called)
	})
	t.Run("match decision", func(t *testing.T) {
		s := &mockStore{}
		metricStore = s

		metric := MatchDecisionMetric{
			Version:       MatchDecisionMetricV1,
			Decision:      "accepted",
			Score:         84,
			ResponseHours: 16,
		}
		err := Collect(context.Background(), metric)
		require.NoError(t, err)
		require.True(t, s.called)
	})
	t.Run("platform stats", func(t *testing.T) {
		s := &mockStore{}
		metricStore = s

		metric := PlatformStatsMetric{
			Version:            PlatformStatsMetricV1,
			ContractsByState:   map[string]int64{"PUBLISHED": 4, "ACTIVE": 11},
			NotificationsTotal: 230,
		}
		err := Collect(context.Background(), metric)
		require.NoError(t, err)
		require.True(t, s.called)
	})
}

func TestCollectUnknownMetric(t *testing.T) {
	s := &mockStore{}
	metricStore = s

	err := Collect(context.Background(), struct{}{})
	require.Error(t, err)
	require.ErrorContains(t, err, "unknown metric")
}

var fakeGitSummary = GitSummaryMetric{
	Version:       GitSummaryMetricV1,
	GitCommit:     "fakeGitCommit",
	GitBranch:     "fakeGitBranch",
	GitState:      "fakeGitState",
	GitSummary:    "fakeGitSummary",
	BuildDate:     "fakeGitDate",
	BinaryVersion: "fakeBinaryVersion",
}

type mockStore struct {
	called bool
}

func (db *mockStore) StoreMetric(_ context.Context, _ Metric) error {
	db.called = true
	return nil
}

func (db *mockStore) Close() error {
	return nil
}
