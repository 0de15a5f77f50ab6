package matching

import (
	"context"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/pkg/properties"
)

// SubmitParams creates a match request.
type SubmitParams struct {
	TenantID   uuid.UUID
	PropertyID uuid.UUID

	Message     string
	ContactInfo map[string]interface{}

	MonthlyIncomeCents  int64
	EmploymentType      EmploymentType
	LeaseDurationMonths int
	Occupants           int
	HasPets             bool
	IsSmoker            bool

	HasRentalReferences bool
	HasEmploymentProof  bool
	HasCreditCheck      bool

	Priority RequestPriority
}

// RespondParams carries a landlord decision on a request.
type RespondParams struct {
	RequestID  uuid.UUID
	LandlordID uuid.UUID
	Response   string
}

// ListFilter narrows request listings.
type ListFilter struct {
	Status RequestStatus
	Limit  int
	Offset int
}

// ScoredProperty pairs a catalog property with its computed compatibility.
type ScoredProperty struct {
	Property *properties.Property `json:"property"`
	Score    int                  `json:"score"`
}

// ProcessDailyResult summarizes one daily auto-apply run.
type ProcessDailyResult struct {
	CriteriaProcessed int `json:"criteria_processed"`
	RequestsSubmitted int `json:"requests_submitted"`
	DigestsSent       int `json:"digests_sent"`
}

// Service is the match request engine.
type Service interface {
	Submit(ctx context.Context, p SubmitParams) (*Request, error)
	Get(ctx context.Context, userID, requestID uuid.UUID) (*Request, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, f ListFilter) ([]*Request, error)
	ListByLandlord(ctx context.Context, landlordID uuid.UUID, f ListFilter) ([]*Request, error)
	MarkViewed(ctx context.Context, requestID, landlordID uuid.UUID) (*Request, error)
	Accept(ctx context.Context, p RespondParams) (*Request, error)
	Reject(ctx context.Context, p RespondParams) (*Request, error)
	Cancel(ctx context.Context, requestID, tenantID uuid.UUID) (*Request, error)

	GetCriteria(ctx context.Context, tenantID uuid.UUID) (*Criteria, error)
	SaveCriteria(ctx context.Context, c *Criteria) (*Criteria, error)
	FindMatching(ctx context.Context, tenantID uuid.UUID) ([]*properties.Property, error)
	Recommendations(ctx context.Context, tenantID uuid.UUID, limit int) ([]ScoredProperty, error)

	Statistics(ctx context.Context, userID uuid.UUID) (*Stats, error)

	ProcessDaily(ctx context.Context) (ProcessDailyResult, error)
	ExpireOld(ctx context.Context) (int64, error)
	SendFollowUpReminders(ctx context.Context) (int64, error)
}
