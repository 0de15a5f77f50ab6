package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/pkg/metrics"
)

// InstrumentedService wraps a notifications.Service with call metrics.
type InstrumentedService struct {
	svc              notifications.Service
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ notifications.Service = (*InstrumentedService)(nil)

// NewInstrumentedService creates an instrumented notification service.
func NewInstrumentedService(svc notifications.Service) (*InstrumentedService, error) {
	meter := global.MeterProvider().Meter("viviendahub")
	callCount, err := meter.Int64Counter("viviendahub.notifications.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("viviendahub.notifications.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}
	return &InstrumentedService{svc, callCount, latencyHistogram}, nil
}

func (s *InstrumentedService) record(ctx context.Context, method string, start time.Time, err error) {
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
	}, metrics.BaseAttrs...)

	s.callCount.Add(ctx, 1, attributes...)
	s.latencyHistogram.Record(ctx, time.Since(start).Milliseconds(), attributes...)
}

// Create implements notifications.Service.
func (s *InstrumentedService) Create(
	ctx context.Context, params notifications.CreateParams,
) (*notifications.Notification, error) {
	start := time.Now()
	n, err := s.svc.Create(ctx, params)
	s.record(ctx, "Create", start, err)
	return n, err
}

// BulkSend implements notifications.Service.
func (s *InstrumentedService) BulkSend(
	ctx context.Context, params notifications.BulkParams,
) (*notifications.BulkResult, error) {
	start := time.Now()
	result, err := s.svc.BulkSend(ctx, params)
	s.record(ctx, "BulkSend", start, err)
	return result, err
}

// Get implements notifications.Service.
func (s *InstrumentedService) Get(
	ctx context.Context, id uuid.UUID,
) (*notifications.Notification, []notifications.Delivery, error) {
	start := time.Now()
	n, deliveries, err := s.svc.Get(ctx, id)
	s.record(ctx, "Get", start, err)
	return n, deliveries, err
}

// Search implements notifications.Service.
func (s *InstrumentedService) Search(
	ctx context.Context, filter notifications.SearchFilter,
) ([]notifications.Notification, error) {
	start := time.Now()
	out, err := s.svc.Search(ctx, filter)
	s.record(ctx, "Search", start, err)
	return out, err
}

// MarkRead implements notifications.Service.
func (s *InstrumentedService) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	start := time.Now()
	err := s.svc.MarkRead(ctx, id, recipientID)
	s.record(ctx, "MarkRead", start, err)
	return err
}

// MarkAllRead implements notifications.Service.
func (s *InstrumentedService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	start := time.Now()
	changed, err := s.svc.MarkAllRead(ctx, recipientID)
	s.record(ctx, "MarkAllRead", start, err)
	return changed, err
}

// UnreadCount implements notifications.Service.
func (s *InstrumentedService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	start := time.Now()
	count, err := s.svc.UnreadCount(ctx, recipientID)
	s.record(ctx, "UnreadCount", start, err)
	return count, err
}

// Cancel implements notifications.Service.
func (s *InstrumentedService) Cancel(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.svc.Cancel(ctx, id)
	s.record(ctx, "Cancel", start, err)
	return err
}

// ProcessScheduled implements notifications.Service.
func (s *InstrumentedService) ProcessScheduled(ctx context.Context) (*notifications.DispatchResult, error) {
	start := time.Now()
	result, err := s.svc.ProcessScheduled(ctx)
	s.record(ctx, "ProcessScheduled", start, err)
	return result, err
}

// RetryFailed implements notifications.Service.
func (s *InstrumentedService) RetryFailed(ctx context.Context) (*notifications.DispatchResult, error) {
	start := time.Now()
	result, err := s.svc.RetryFailed(ctx)
	s.record(ctx, "RetryFailed", start, err)
	return result, err
}

// CreateDigests implements notifications.Service.
func (s *InstrumentedService) CreateDigests(
	ctx context.Context, digestType notifications.DigestType,
) (int, error) {
	start := time.Now()
	created, err := s.svc.CreateDigests(ctx, digestType)
	s.record(ctx, "CreateDigests", start, err)
	return created, err
}

// GetPreference implements notifications.Service.
func (s *InstrumentedService) GetPreference(
	ctx context.Context, userID uuid.UUID,
) (*notifications.Preference, error) {
	start := time.Now()
	pref, err := s.svc.GetPreference(ctx, userID)
	s.record(ctx, "GetPreference", start, err)
	return pref, err
}

// PutPreference implements notifications.Service.
func (s *InstrumentedService) PutPreference(
	ctx context.Context, pref notifications.Preference,
) (*notifications.Preference, error) {
	start := time.Now()
	saved, err := s.svc.PutPreference(ctx, pref)
	s.record(ctx, "PutPreference", start, err)
	return saved, err
}

// Digests implements notifications.Service.
func (s *InstrumentedService) Digests(
	ctx context.Context, userID uuid.UUID, limit int,
) ([]notifications.Digest, error) {
	start := time.Now()
	out, err := s.svc.Digests(ctx, userID, limit)
	s.record(ctx, "Digests", start, err)
	return out, err
}

// Analytics implements notifications.Service.
func (s *InstrumentedService) Analytics(
	ctx context.Context, from, to time.Time,
) ([]notifications.Analytics, error) {
	start := time.Now()
	out, err := s.svc.Analytics(ctx, from, to)
	s.record(ctx, "Analytics", start, err)
	return out, err
}

// Statistics implements notifications.Service.
func (s *InstrumentedService) Statistics(ctx context.Context) (*notifications.Stats, error) {
	start := time.Now()
	stats, err := s.svc.Statistics(ctx)
	s.record(ctx, "Statistics", start, err)
	return stats, err
}
