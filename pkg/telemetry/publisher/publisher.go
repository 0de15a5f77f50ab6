// Package publisher ships locally collected telemetry metrics to the
// analytics ingestion endpoint.
package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
)

// DefaultFetchAmount bounds how many metrics one publish batch carries.
const DefaultFetchAmount = 100

// Publisher is responsible for fetching unpublished metrics and exporting them.
type Publisher struct {
	fetcher  MetricsFetcher
	exporter MetricsExporter

	nodeID      string
	interval    time.Duration
	fetchAmount int

	quitOnce sync.Once
	quit     chan struct{}
}

// NewPublisher creates a new publisher.
func NewPublisher(f MetricsFetcher, e MetricsExporter, nodeID string, interval time.Duration) *Publisher {
	return &Publisher{
		fetcher:  f,
		exporter: e,

		nodeID:      nodeID,
		interval:    interval,
		fetchAmount: DefaultFetchAmount,
		quit:        make(chan struct{}),
	}
}

var log = logger.With().
	Str("component", "telemetrypublisher").
	Logger()

// Start starts the publisher.
func (p *Publisher) Start() {
	ctx := context.Background()

	ticker := time.NewTicker(p.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := p.publish(ctx); err != nil {
					log.Err(err).Msg("failed to publish metrics")
				}
			case <-p.quit:
				log.Info().Msg("quiting telemetry publisher")
				ticker.Stop()
				return
			}
		}
	}()
}

// Close stops the publisher goroutine.
func (p *Publisher) Close() {
	p.quitOnce.Do(func() {
		p.quit <- struct{}{}
		close(p.quit)
	})
}

func (p *Publisher) publish(ctx context.Context) error {
	metrics, err := p.fetcher.FetchUnpublishedMetrics(ctx, p.fetchAmount)
	if err != nil {
		return fmt.Errorf("fetch unpublished metrics: %s", err)
	}
	if len(metrics) == 0 {
		return nil
	}

	if err := p.exporter.Export(ctx, metrics, p.nodeID); err != nil {
		return fmt.Errorf("export metrics: %s", err)
	}

	rowIDs := make([]int64, len(metrics))
	for i, m := range metrics {
		rowIDs[i] = m.RowID
	}
	if err := p.fetcher.MarkAsPublished(ctx, rowIDs); err != nil {
		return fmt.Errorf("mark metrics as published: %s", err)
	}

	return nil
}

// MetricsFetcher defines the API for fetching stored metrics.
type MetricsFetcher interface {
	FetchUnpublishedMetrics(context.Context, int) ([]telemetry.Metric, error)
	MarkAsPublished(context.Context, []int64) error
}

// MetricsExporter defines the API for exporting metrics.
type MetricsExporter interface {
	Export(ctx context.Context, metrics []telemetry.Metric, nodeID string) error
}
