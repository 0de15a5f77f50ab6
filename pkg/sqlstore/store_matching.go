package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/matching"
)

// MatchStore defines the methods for persisting match requests and search
// criteria. Lookups report absence through the boolean instead of an error.
type MatchStore interface {
	InsertMatchRequest(context.Context, *matching.Request) error
	GetMatchRequest(context.Context, uuid.UUID) (*matching.Request, bool, error)
	ListMatchRequestsByTenant(context.Context, uuid.UUID, matching.ListFilter) ([]matching.Request, error)
	ListMatchRequestsByLandlord(context.Context, uuid.UUID, matching.ListFilter) ([]matching.Request, error)
	UpdateMatchRequest(context.Context, *matching.Request) error
	HasActiveMatchRequest(context.Context, uuid.UUID, uuid.UUID) (bool, error)
	CountAutoSubmittedSince(context.Context, uuid.UUID, time.Time) (int64, error)
	ListExpiryCandidates(context.Context, time.Time) ([]matching.Request, error)
	ExpireMatchRequests(context.Context, time.Time) (int64, error)
	ListFollowUpCandidates(context.Context, time.Time) ([]matching.Request, error)

	GetCriteria(context.Context, uuid.UUID) (*matching.Criteria, bool, error)
	SaveCriteria(context.Context, *matching.Criteria) error
	ListAutoApplyCriteria(context.Context) ([]matching.Criteria, error)

	MatchStats(context.Context, uuid.UUID) (*matching.Stats, error)
}
