package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/pkg/metrics"
)

// InstrumentedService wraps a contracts.Service with call metrics.
type InstrumentedService struct {
	svc              contracts.Service
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ contracts.Service = (*InstrumentedService)(nil)

// NewInstrumentedService creates an instrumented contract service.
func NewInstrumentedService(svc contracts.Service) (*InstrumentedService, error) {
	meter := global.MeterProvider().Meter("viviendahub")
	callCount, err := meter.Int64Counter("viviendahub.contracts.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("viviendahub.contracts.call.latency")
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

// CreateDraft implements contracts.Service.
func (s *InstrumentedService) CreateDraft(ctx context.Context, p contracts.CreateDraftParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.CreateDraft(ctx, p)
	s.record(ctx, "CreateDraft", start, err)
	return c, err
}

// Get implements contracts.Service.
func (s *InstrumentedService) Get(ctx context.Context, userID, contractID uuid.UUID) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Get(ctx, userID, contractID)
	s.record(ctx, "Get", start, err)
	return c, err
}

// List implements contracts.Service.
func (s *InstrumentedService) List(
	ctx context.Context, userID uuid.UUID, f contracts.ListFilter,
) ([]*contracts.Contract, error) {
	start := time.Now()
	out, err := s.svc.List(ctx, userID, f)
	s.record(ctx, "List", start, err)
	return out, err
}

// CompleteLandlordData implements contracts.Service.
func (s *InstrumentedService) CompleteLandlordData(
	ctx context.Context, p contracts.CompleteLandlordDataParams,
) (*contracts.Contract, *contracts.InvitationGrant, error) {
	start := time.Now()
	c, grant, err := s.svc.CompleteLandlordData(ctx, p)
	s.record(ctx, "CompleteLandlordData", start, err)
	return c, grant, err
}

// CompleteTenantData implements contracts.Service.
func (s *InstrumentedService) CompleteTenantData(
	ctx context.Context, p contracts.CompleteTenantDataParams,
) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.CompleteTenantData(ctx, p)
	s.record(ctx, "CompleteTenantData", start, err)
	return c, err
}

// VerifyIdentity implements contracts.Service.
func (s *InstrumentedService) VerifyIdentity(
	ctx context.Context, p contracts.VerifyIdentityParams,
) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.VerifyIdentity(ctx, p)
	s.record(ctx, "VerifyIdentity", start, err)
	return c, err
}

// CreateInvitation implements contracts.Service.
func (s *InstrumentedService) CreateInvitation(
	ctx context.Context, p contracts.CreateInvitationParams,
) (*contracts.InvitationGrant, error) {
	start := time.Now()
	grant, err := s.svc.CreateInvitation(ctx, p)
	s.record(ctx, "CreateInvitation", start, err)
	return grant, err
}

// VerifyInvitation implements contracts.Service.
func (s *InstrumentedService) VerifyInvitation(
	ctx context.Context, token string,
) (*contracts.InvitationPublicView, error) {
	start := time.Now()
	view, err := s.svc.VerifyInvitation(ctx, token)
	s.record(ctx, "VerifyInvitation", start, err)
	return view, err
}

// AcceptInvitation implements contracts.Service.
func (s *InstrumentedService) AcceptInvitation(
	ctx context.Context, p contracts.AcceptInvitationParams,
) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.AcceptInvitation(ctx, p)
	s.record(ctx, "AcceptInvitation", start, err)
	return c, err
}

// ResendInvitation implements contracts.Service.
func (s *InstrumentedService) ResendInvitation(
	ctx context.Context, p contracts.ResendInvitationParams,
) (*contracts.InvitationGrant, error) {
	start := time.Now()
	grant, err := s.svc.ResendInvitation(ctx, p)
	s.record(ctx, "ResendInvitation", start, err)
	return grant, err
}

// PendingInvitations implements contracts.Service.
func (s *InstrumentedService) PendingInvitations(
	ctx context.Context, email string,
) ([]*contracts.Invitation, error) {
	start := time.Now()
	out, err := s.svc.PendingInvitations(ctx, email)
	s.record(ctx, "PendingInvitations", start, err)
	return out, err
}

// CleanupExpiredInvitations implements contracts.Service.
func (s *InstrumentedService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	start := time.Now()
	expired, err := s.svc.CleanupExpiredInvitations(ctx)
	s.record(ctx, "CleanupExpiredInvitations", start, err)
	return expired, err
}

// SubmitObjection implements contracts.Service.
func (s *InstrumentedService) SubmitObjection(
	ctx context.Context, p contracts.SubmitObjectionParams,
) (*contracts.Objection, error) {
	start := time.Now()
	o, err := s.svc.SubmitObjection(ctx, p)
	s.record(ctx, "SubmitObjection", start, err)
	return o, err
}

// RespondObjection implements contracts.Service.
func (s *InstrumentedService) RespondObjection(
	ctx context.Context, p contracts.RespondObjectionParams,
) (*contracts.Objection, error) {
	start := time.Now()
	o, err := s.svc.RespondObjection(ctx, p)
	s.record(ctx, "RespondObjection", start, err)
	return o, err
}

// WithdrawObjection implements contracts.Service.
func (s *InstrumentedService) WithdrawObjection(
	ctx context.Context, p contracts.WithdrawObjectionParams,
) (*contracts.Objection, error) {
	start := time.Now()
	o, err := s.svc.WithdrawObjection(ctx, p)
	s.record(ctx, "WithdrawObjection", start, err)
	return o, err
}

// ListObjections implements contracts.Service.
func (s *InstrumentedService) ListObjections(
	ctx context.Context, userID, contractID uuid.UUID,
) ([]*contracts.Objection, error) {
	start := time.Now()
	out, err := s.svc.ListObjections(ctx, userID, contractID)
	s.record(ctx, "ListObjections", start, err)
	return out, err
}

// Approve implements contracts.Service.
func (s *InstrumentedService) Approve(ctx context.Context, p contracts.ApproveParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Approve(ctx, p)
	s.record(ctx, "Approve", start, err)
	return c, err
}

// Sign implements contracts.Service.
func (s *InstrumentedService) Sign(ctx context.Context, p contracts.SignParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Sign(ctx, p)
	s.record(ctx, "Sign", start, err)
	return c, err
}

// Publish implements contracts.Service.
func (s *InstrumentedService) Publish(ctx context.Context, p contracts.PublishParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Publish(ctx, p)
	s.record(ctx, "Publish", start, err)
	return c, err
}

// Cancel implements contracts.Service.
func (s *InstrumentedService) Cancel(ctx context.Context, p contracts.CancelParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Cancel(ctx, p)
	s.record(ctx, "Cancel", start, err)
	return c, err
}

// Terminate implements contracts.Service.
func (s *InstrumentedService) Terminate(ctx context.Context, p contracts.TerminateParams) (*contracts.Contract, error) {
	start := time.Now()
	c, err := s.svc.Terminate(ctx, p)
	s.record(ctx, "Terminate", start, err)
	return c, err
}

// AddGuarantee implements contracts.Service.
func (s *InstrumentedService) AddGuarantee(
	ctx context.Context, p contracts.AddGuaranteeParams,
) (*contracts.Guarantee, error) {
	start := time.Now()
	g, err := s.svc.AddGuarantee(ctx, p)
	s.record(ctx, "AddGuarantee", start, err)
	return g, err
}

// VerifyGuarantee implements contracts.Service.
func (s *InstrumentedService) VerifyGuarantee(
	ctx context.Context, p contracts.VerifyGuaranteeParams,
) (*contracts.Guarantee, error) {
	start := time.Now()
	g, err := s.svc.VerifyGuarantee(ctx, p)
	s.record(ctx, "VerifyGuarantee", start, err)
	return g, err
}

// ListGuarantees implements contracts.Service.
func (s *InstrumentedService) ListGuarantees(
	ctx context.Context, userID, contractID uuid.UUID,
) ([]*contracts.Guarantee, error) {
	start := time.Now()
	out, err := s.svc.ListGuarantees(ctx, userID, contractID)
	s.record(ctx, "ListGuarantees", start, err)
	return out, err
}

// History implements contracts.Service.
func (s *InstrumentedService) History(
	ctx context.Context, userID, contractID uuid.UUID,
) ([]contracts.HistoryEntry, error) {
	start := time.Now()
	out, err := s.svc.History(ctx, userID, contractID)
	s.record(ctx, "History", start, err)
	return out, err
}

// VerifyHistory implements contracts.Service.
func (s *InstrumentedService) VerifyHistory(
	ctx context.Context, userID, contractID uuid.UUID,
) (*contracts.HistoryVerification, error) {
	start := time.Now()
	v, err := s.svc.VerifyHistory(ctx, userID, contractID)
	s.record(ctx, "VerifyHistory", start, err)
	return v, err
}

// ListSignatures implements contracts.Service.
func (s *InstrumentedService) ListSignatures(
	ctx context.Context, userID, contractID uuid.UUID,
) ([]*contracts.Signature, error) {
	start := time.Now()
	out, err := s.svc.ListSignatures(ctx, userID, contractID)
	s.record(ctx, "ListSignatures", start, err)
	return out, err
}

// LandlordStats implements contracts.Service.
func (s *InstrumentedService) LandlordStats(ctx context.Context, landlordID uuid.UUID) (*contracts.Stats, error) {
	start := time.Now()
	stats, err := s.svc.LandlordStats(ctx, landlordID)
	s.record(ctx, "LandlordStats", start, err)
	return stats, err
}

// TenantStats implements contracts.Service.
func (s *InstrumentedService) TenantStats(ctx context.Context, tenantID uuid.UUID) (*contracts.Stats, error) {
	start := time.Now()
	stats, err := s.svc.TenantStats(ctx, tenantID)
	s.record(ctx, "TenantStats", start, err)
	return stats, err
}

// RenderPDF implements contracts.Service.
func (s *InstrumentedService) RenderPDF(ctx context.Context, p contracts.RenderPDFParams) ([]byte, error) {
	start := time.Now()
	pdf, err := s.svc.RenderPDF(ctx, p)
	s.record(ctx, "RenderPDF", start, err)
	return pdf, err
}

// ActivateDue implements contracts.Service.
func (s *InstrumentedService) ActivateDue(ctx context.Context) (int64, error) {
	start := time.Now()
	activated, err := s.svc.ActivateDue(ctx)
	s.record(ctx, "ActivateDue", start, err)
	return activated, err
}

// ExpireDue implements contracts.Service.
func (s *InstrumentedService) ExpireDue(ctx context.Context) (int64, error) {
	start := time.Now()
	expired, err := s.svc.ExpireDue(ctx)
	s.record(ctx, "ExpireDue", start, err)
	return expired, err
}
