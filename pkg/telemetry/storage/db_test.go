package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
	"github.com/viviendahub/go-viviendahub/tests"
)

func TestCollectSqliteStore(t *testing.T) {
	dbURI := tests.Sqlite3URI()
	s, err := New(dbURI)
	require.NoError(t, err)
	telemetry.SetMetricStore(s)

	metric := telemetry.InvitationFlowMetric{
		Version:  telemetry.InvitationFlowMetricV1,
		Event:    "accepted",
		Method:   "email",
		Attempts: 2,
	}
	require.NoError(t, telemetry.Collect(context.Background(), metric))

	var timestamp, published int
	var payload string
	var typ telemetry.MetricType
	row := s.sqlDB.QueryRowContext(context.Background(), "SELECT * FROM system_metrics LIMIT 1")
	require.NoError(t, row.Scan(&timestamp, &typ, &payload, &published))

	require.Equal(t, 0, published)
	require.Equal(t, telemetry.InvitationFlowType, typ)

	var decoded telemetry.InvitationFlowMetric
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	require.Equal(t, metric.Event, decoded.Event)
	require.Equal(t, metric.Method, decoded.Method)
	require.Equal(t, metric.Attempts, decoded.Attempts)
}

func TestFetchAndMarkPublished(t *testing.T) {
	dbURI := tests.Sqlite3URI()
	s, err := New(dbURI)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.StoreMetric(context.Background(), telemetry.Metric{
			Version: 1,
			Type:    telemetry.MatchDecisionType,
			Payload: telemetry.MatchDecisionMetric{Decision: "accepted", Score: 80 + i},
		}))
	}

	metrics, err := s.FetchUnpublishedMetrics(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	rowIDs := []int64{metrics[0].RowID, metrics[1].RowID}
	require.NoError(t, s.MarkAsPublished(context.Background(), rowIDs))

	metrics, err = s.FetchUnpublishedMetrics(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
}
