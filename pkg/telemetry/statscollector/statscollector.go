// Package statscollector periodically snapshots platform wide counters into
// the telemetry store.
package statscollector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
)

// Source provides the counters the collector snapshots.
type Source interface {
	ContractCountsByState(ctx context.Context) (map[string]int64, error)
	MatchRequestCount(ctx context.Context) (int64, error)
	NotificationStats(ctx context.Context) (*notifications.Stats, error)
}

// StatsCollector captures platform stats metrics with a defined frequency.
type StatsCollector struct {
	log              zerolog.Logger
	source           Source
	collectFrequency time.Duration
}

// New returns a new *StatsCollector.
func New(source Source, collectFrequency time.Duration) (*StatsCollector, error) {
	if collectFrequency <= time.Second {
		return nil, fmt.Errorf("collect frequency should be greater than one second")
	}
	return &StatsCollector{
		log:              logger.With().Str("component", "statscollector").Logger(),
		source:           source,
		collectFrequency: collectFrequency,
	}, nil
}

// Start starts collecting platform stats metrics until the context is canceled.
func (sc *StatsCollector) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			sc.log.Info().Msg("gracefully closed")
			return
		case <-time.After(sc.collectFrequency):
			metric, err := sc.snapshot(ctx)
			if err != nil {
				sc.log.Error().Err(err).Msg("snapshotting platform stats")
				continue
			}
			if err := telemetry.Collect(ctx, metric); err != nil {
				sc.log.Error().Err(err).Msg("collecting platform stats metric")
			}
		}
	}
}

func (sc *StatsCollector) snapshot(ctx context.Context) (telemetry.PlatformStatsMetric, error) {
	contractCounts, err := sc.source.ContractCountsByState(ctx)
	if err != nil {
		return telemetry.PlatformStatsMetric{}, fmt.Errorf("counting contracts: %s", err)
	}
	matchRequests, err := sc.source.MatchRequestCount(ctx)
	if err != nil {
		return telemetry.PlatformStatsMetric{}, fmt.Errorf("counting match requests: %s", err)
	}
	notificationStats, err := sc.source.NotificationStats(ctx)
	if err != nil {
		return telemetry.PlatformStatsMetric{}, fmt.Errorf("aggregating notifications: %s", err)
	}
	return telemetry.PlatformStatsMetric{
		Version:                  telemetry.PlatformStatsMetricV1,
		ContractsByState:         contractCounts,
		NotificationsTotal:       notificationStats.Total,
		NotificationsUnread:      notificationStats.Unread,
		NotificationsFailedToday: notificationStats.FailedToday,
		MatchRequestsTotal:       matchRequests,
	}, nil
}
