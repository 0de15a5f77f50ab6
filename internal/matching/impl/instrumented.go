package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/viviendahub/go-viviendahub/internal/matching"
	"github.com/viviendahub/go-viviendahub/pkg/metrics"
	"github.com/viviendahub/go-viviendahub/pkg/properties"
)

// InstrumentedService wraps a matching.Service with call metrics.
type InstrumentedService struct {
	svc              matching.Service
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ matching.Service = (*InstrumentedService)(nil)

// NewInstrumentedService creates an instrumented matching service.
func NewInstrumentedService(svc matching.Service) (*InstrumentedService, error) {
	meter := global.MeterProvider().Meter("viviendahub")
	callCount, err := meter.Int64Counter("viviendahub.matching.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("viviendahub.matching.call.latency")
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

// Submit implements matching.Service.
func (s *InstrumentedService) Submit(ctx context.Context, p matching.SubmitParams) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.Submit(ctx, p)
	s.record(ctx, "Submit", start, err)
	return r, err
}

// Get implements matching.Service.
func (s *InstrumentedService) Get(ctx context.Context, userID, requestID uuid.UUID) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.Get(ctx, userID, requestID)
	s.record(ctx, "Get", start, err)
	return r, err
}

// ListByTenant implements matching.Service.
func (s *InstrumentedService) ListByTenant(
	ctx context.Context, tenantID uuid.UUID, f matching.ListFilter,
) ([]*matching.Request, error) {
	start := time.Now()
	out, err := s.svc.ListByTenant(ctx, tenantID, f)
	s.record(ctx, "ListByTenant", start, err)
	return out, err
}

// ListByLandlord implements matching.Service.
func (s *InstrumentedService) ListByLandlord(
	ctx context.Context, landlordID uuid.UUID, f matching.ListFilter,
) ([]*matching.Request, error) {
	start := time.Now()
	out, err := s.svc.ListByLandlord(ctx, landlordID, f)
	s.record(ctx, "ListByLandlord", start, err)
	return out, err
}

// MarkViewed implements matching.Service.
func (s *InstrumentedService) MarkViewed(
	ctx context.Context, requestID, landlordID uuid.UUID,
) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.MarkViewed(ctx, requestID, landlordID)
	s.record(ctx, "MarkViewed", start, err)
	return r, err
}

// Accept implements matching.Service.
func (s *InstrumentedService) Accept(ctx context.Context, p matching.RespondParams) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.Accept(ctx, p)
	s.record(ctx, "Accept", start, err)
	return r, err
}

// Reject implements matching.Service.
func (s *InstrumentedService) Reject(ctx context.Context, p matching.RespondParams) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.Reject(ctx, p)
	s.record(ctx, "Reject", start, err)
	return r, err
}

// Cancel implements matching.Service.
func (s *InstrumentedService) Cancel(
	ctx context.Context, requestID, tenantID uuid.UUID,
) (*matching.Request, error) {
	start := time.Now()
	r, err := s.svc.Cancel(ctx, requestID, tenantID)
	s.record(ctx, "Cancel", start, err)
	return r, err
}

// GetCriteria implements matching.Service.
func (s *InstrumentedService) GetCriteria(ctx context.Context, tenantID uuid.UUID) (*matching.Criteria, error) {
	start := time.Now()
	c, err := s.svc.GetCriteria(ctx, tenantID)
	s.record(ctx, "GetCriteria", start, err)
	return c, err
}

// SaveCriteria implements matching.Service.
func (s *InstrumentedService) SaveCriteria(
	ctx context.Context, c *matching.Criteria,
) (*matching.Criteria, error) {
	start := time.Now()
	saved, err := s.svc.SaveCriteria(ctx, c)
	s.record(ctx, "SaveCriteria", start, err)
	return saved, err
}

// FindMatching implements matching.Service.
func (s *InstrumentedService) FindMatching(
	ctx context.Context, tenantID uuid.UUID,
) ([]*properties.Property, error) {
	start := time.Now()
	out, err := s.svc.FindMatching(ctx, tenantID)
	s.record(ctx, "FindMatching", start, err)
	return out, err
}

// Recommendations implements matching.Service.
func (s *InstrumentedService) Recommendations(
	ctx context.Context, tenantID uuid.UUID, limit int,
) ([]matching.ScoredProperty, error) {
	start := time.Now()
	out, err := s.svc.Recommendations(ctx, tenantID, limit)
	s.record(ctx, "Recommendations", start, err)
	return out, err
}

// Statistics implements matching.Service.
func (s *InstrumentedService) Statistics(ctx context.Context, userID uuid.UUID) (*matching.Stats, error) {
	start := time.Now()
	stats, err := s.svc.Statistics(ctx, userID)
	s.record(ctx, "Statistics", start, err)
	return stats, err
}

// ProcessDaily implements matching.Service.
func (s *InstrumentedService) ProcessDaily(ctx context.Context) (matching.ProcessDailyResult, error) {
	start := time.Now()
	result, err := s.svc.ProcessDaily(ctx)
	s.record(ctx, "ProcessDaily", start, err)
	return result, err
}

// ExpireOld implements matching.Service.
func (s *InstrumentedService) ExpireOld(ctx context.Context) (int64, error) {
	start := time.Now()
	expired, err := s.svc.ExpireOld(ctx)
	s.record(ctx, "ExpireOld", start, err)
	return expired, err
}

// SendFollowUpReminders implements matching.Service.
func (s *InstrumentedService) SendFollowUpReminders(ctx context.Context) (int64, error) {
	start := time.Now()
	sent, err := s.svc.SendFollowUpReminders(ctx)
	s.record(ctx, "SendFollowUpReminders", start, err)
	return sent, err
}
