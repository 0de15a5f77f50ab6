package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/matching"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// MatchingController handles the match request endpoints.
type MatchingController struct {
	engine matching.Service
}

// NewMatchingController creates a new MatchingController.
func NewMatchingController(engine matching.Service) *MatchingController {
	return &MatchingController{engine: engine}
}

type submitMatchRequest struct {
	PropertyID uuid.UUID `json:"property_id"`

	Message     string                 `json:"message"`
	ContactInfo map[string]interface{} `json:"contact_info,omitempty"`

	MonthlyIncomeCents  int64                   `json:"monthly_income_cents"`
	EmploymentType      matching.EmploymentType `json:"employment_type"`
	LeaseDurationMonths int                     `json:"lease_duration_months"`
	Occupants           int                     `json:"occupants"`
	HasPets             bool                    `json:"has_pets"`
	IsSmoker            bool                    `json:"is_smoker"`

	HasRentalReferences bool `json:"has_rental_references"`
	HasEmploymentProof  bool `json:"has_employment_proof"`
	HasCreditCheck      bool `json:"has_credit_check"`

	Priority matching.RequestPriority `json:"priority"`
}

// Submit handles POST /api/v1/matching/requests.
func (c *MatchingController) Submit(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var req submitMatchRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	request, err := c.engine.Submit(r.Context(), matching.SubmitParams{
		TenantID:            user.ID,
		PropertyID:          req.PropertyID,
		Message:             req.Message,
		ContactInfo:         req.ContactInfo,
		MonthlyIncomeCents:  req.MonthlyIncomeCents,
		EmploymentType:      req.EmploymentType,
		LeaseDurationMonths: req.LeaseDurationMonths,
		Occupants:           req.Occupants,
		HasPets:             req.HasPets,
		IsSmoker:            req.IsSmoker,
		HasRentalReferences: req.HasRentalReferences,
		HasEmploymentProof:  req.HasEmploymentProof,
		HasCreditCheck:      req.HasCreditCheck,
		Priority:            req.Priority,
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, request)
}

// ListSent handles GET /api/v1/matching/requests, the tenant's own requests.
func (c *MatchingController) ListSent(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.ListByTenant(r.Context(), user.ID, listFilterFromQuery(r))
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// ListReceived handles GET /api/v1/matching/received, requests against the
// landlord's properties.
func (c *MatchingController) ListReceived(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.ListByLandlord(r.Context(), user.ID, listFilterFromQuery(r))
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Get handles GET /api/v1/matching/requests/{id}.
func (c *MatchingController) Get(rw http.ResponseWriter, r *http.Request) {
	user, requestID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	request, err := c.engine.Get(r.Context(), user.ID, requestID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, request)
}

// MarkViewed handles POST /api/v1/matching/requests/{id}/view.
func (c *MatchingController) MarkViewed(rw http.ResponseWriter, r *http.Request) {
	user, requestID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	request, err := c.engine.MarkViewed(r.Context(), requestID, user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, request)
}

type matchResponseRequest struct {
	Response string `json:"response"`
}

// Accept handles POST /api/v1/matching/requests/{id}/accept.
func (c *MatchingController) Accept(rw http.ResponseWriter, r *http.Request) {
	c.respond(rw, r, c.engine.Accept)
}

// Reject handles POST /api/v1/matching/requests/{id}/reject.
func (c *MatchingController) Reject(rw http.ResponseWriter, r *http.Request) {
	c.respond(rw, r, c.engine.Reject)
}

// Cancel handles POST /api/v1/matching/requests/{id}/cancel.
func (c *MatchingController) Cancel(rw http.ResponseWriter, r *http.Request) {
	user, requestID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	request, err := c.engine.Cancel(r.Context(), requestID, user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, request)
}

// GetCriteria handles GET /api/v1/matching/criteria.
func (c *MatchingController) GetCriteria(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	criteria, err := c.engine.GetCriteria(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, criteria)
}

// SaveCriteria handles PUT /api/v1/matching/criteria.
func (c *MatchingController) SaveCriteria(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var criteria matching.Criteria
	if err := decodeBody(rw, r, &criteria); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	criteria.TenantID = user.ID
	saved, err := c.engine.SaveCriteria(r.Context(), &criteria)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, saved)
}

// FindMatching handles GET /api/v1/matching/results.
func (c *MatchingController) FindMatching(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.FindMatching(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Recommendations handles GET /api/v1/matching/recommendations.
func (c *MatchingController) Recommendations(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.Recommendations(r.Context(), user.ID, queryInt(r, "limit", 10))
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Statistics handles GET /api/v1/matching/stats.
func (c *MatchingController) Statistics(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	stats, err := c.engine.Statistics(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, stats)
}

func (c *MatchingController) respond(
	rw http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, p matching.RespondParams) (*matching.Request, error),
) {
	user, requestID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req matchResponseRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	request, err := decide(r.Context(), matching.RespondParams{
		RequestID:  requestID,
		LandlordID: user.ID,
		Response:   req.Response,
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, request)
}

func listFilterFromQuery(r *http.Request) matching.ListFilter {
	return matching.ListFilter{
		Status: matching.RequestStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
}
