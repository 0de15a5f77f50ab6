// Package impl implements the match request engine: submissions with
// compatibility scoring, landlord decisions, saved criteria with daily
// auto-apply, expiry and follow-up reminders.
package impl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/matching"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/pkg/clock"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/properties"
	"github.com/viviendahub/go-viviendahub/pkg/sqlstore"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// Template names the engine emits through the notifier.
const (
	templateMatchReceived = "match_request_received"
	templateMatchAccepted = "match_request_accepted"
	templateMatchRejected = "match_request_rejected"
	templateMatchExpired  = "match_request_expired"
	templateMatchFollowUp = "match_follow_up"
	templateMatchDigest   = "match_digest"
)

// Notifier is the slice of the notification service the engine needs.
type Notifier interface {
	Create(ctx context.Context, params notifications.CreateParams) (*notifications.Notification, error)
}

// Engine implements matching.Service.
type Engine struct {
	log      zerolog.Logger
	store    sqlstore.MatchStore
	catalog  properties.Catalog
	users    userdir.Directory
	notifier Notifier
	clock    clock.Clock
}

var _ matching.Service = (*Engine)(nil)

// Option modifies an Engine default.
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates the match request engine.
func NewEngine(
	store sqlstore.MatchStore,
	catalog properties.Catalog,
	users userdir.Directory,
	notifier Notifier,
	opts ...Option,
) *Engine {
	e := &Engine{
		log:      logger.With().Str("component", "matching").Logger(),
		store:    store,
		catalog:  catalog,
		users:    users,
		notifier: notifier,
		clock:    clock.System{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit implements matching.Service.
func (e *Engine) Submit(ctx context.Context, p matching.SubmitParams) (*matching.Request, error) {
	now := e.clock.Now()

	if p.TenantID == uuid.Nil {
		return nil, errors.Validation("tenant is required")
	}
	if p.PropertyID == uuid.Nil {
		return nil, errors.Validation("property is required")
	}
	if !p.EmploymentType.Valid() {
		return nil, errors.Validation("unknown employment type %q", p.EmploymentType)
	}
	if p.MonthlyIncomeCents < 0 {
		return nil, errors.Validation("monthly income cannot be negative")
	}
	if p.LeaseDurationMonths <= 0 {
		return nil, errors.Validation("lease duration must be positive")
	}
	if p.Occupants <= 0 {
		p.Occupants = 1
	}
	priority := p.Priority
	if priority == "" {
		priority = matching.PriorityNormal
	}
	switch priority {
	case matching.PriorityLow, matching.PriorityNormal, matching.PriorityHigh:
	default:
		return nil, errors.Validation("unknown priority %q", priority)
	}

	property, err := e.catalog.Get(ctx, p.PropertyID)
	if err == properties.ErrNotFound {
		return nil, errors.NotFound("property %s not found", p.PropertyID)
	}
	if err != nil {
		return nil, errors.External("loading property", err)
	}
	if !property.Available {
		return nil, errors.Validation("property is not available")
	}
	if property.LandlordID == p.TenantID {
		return nil, errors.PermissionDenied("cannot apply to your own property")
	}

	active, err := e.store.HasActiveMatchRequest(ctx, p.TenantID, p.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("checking active requests: %s", err)
	}
	if active {
		return nil, errors.AlreadyExists("an active request for this property already exists")
	}

	r := &matching.Request{
		ID:         uuid.New(),
		TenantID:   p.TenantID,
		LandlordID: property.LandlordID,
		PropertyID: p.PropertyID,

		TenantMessage: p.Message,
		ContactInfo:   p.ContactInfo,

		MonthlyIncomeCents:  p.MonthlyIncomeCents,
		EmploymentType:      p.EmploymentType,
		LeaseDurationMonths: p.LeaseDurationMonths,
		Occupants:           p.Occupants,
		HasPets:             p.HasPets,
		IsSmoker:            p.IsSmoker,

		HasRentalReferences: p.HasRentalReferences,
		HasEmploymentProof:  p.HasEmploymentProof,
		HasCreditCheck:      p.HasCreditCheck,

		Priority:  priority,
		Status:    matching.RequestPending,
		ExpiresAt: now.Add(matching.RequestTTL),

		CreatedAt: now,
		UpdatedAt: now,
	}
	r.CompatibilityScore = matching.Score(r, property)

	if err := e.store.InsertMatchRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("storing match request: %s", err)
	}

	e.notify(ctx, property.LandlordID, templateMatchReceived, r, map[string]interface{}{
		"property_address": property.Address,
		"tenant_name":      e.displayName(ctx, r.TenantID),
		"score":            r.CompatibilityScore,
	})
	return r, nil
}

// Get implements matching.Service. Only the two parties can read a request.
func (e *Engine) Get(ctx context.Context, userID, requestID uuid.UUID) (*matching.Request, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if userID != r.TenantID && userID != r.LandlordID {
		return nil, errors.PermissionDenied("request %s belongs to another user", requestID)
	}
	return r, nil
}

// ListByTenant implements matching.Service.
func (e *Engine) ListByTenant(
	ctx context.Context, tenantID uuid.UUID, f matching.ListFilter,
) ([]*matching.Request, error) {
	rows, err := e.store.ListMatchRequestsByTenant(ctx, tenantID, f)
	if err != nil {
		return nil, fmt.Errorf("listing tenant requests: %s", err)
	}
	return asPointers(rows), nil
}

// ListByLandlord implements matching.Service.
func (e *Engine) ListByLandlord(
	ctx context.Context, landlordID uuid.UUID, f matching.ListFilter,
) ([]*matching.Request, error) {
	rows, err := e.store.ListMatchRequestsByLandlord(ctx, landlordID, f)
	if err != nil {
		return nil, fmt.Errorf("listing landlord requests: %s", err)
	}
	return asPointers(rows), nil
}

// MarkViewed implements matching.Service. Marking an already viewed request is
// a no-op.
func (e *Engine) MarkViewed(ctx context.Context, requestID, landlordID uuid.UUID) (*matching.Request, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.LandlordID != landlordID {
		return nil, errors.PermissionDenied("request %s belongs to another landlord", requestID)
	}
	if r.Status == matching.RequestViewed {
		return r, nil
	}
	if r.Status != matching.RequestPending {
		return nil, errors.Validation("request is already %s", r.Status)
	}

	now := e.clock.Now()
	r.Status = matching.RequestViewed
	r.ViewedAt = &now
	r.UpdatedAt = now
	if err := e.store.UpdateMatchRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("storing viewed request: %s", err)
	}
	return r, nil
}

// Accept implements matching.Service.
func (e *Engine) Accept(ctx context.Context, p matching.RespondParams) (*matching.Request, error) {
	return e.respond(ctx, p, matching.RequestAccepted, templateMatchAccepted)
}

// Reject implements matching.Service.
func (e *Engine) Reject(ctx context.Context, p matching.RespondParams) (*matching.Request, error) {
	return e.respond(ctx, p, matching.RequestRejected, templateMatchRejected)
}

func (e *Engine) respond(
	ctx context.Context, p matching.RespondParams, status matching.RequestStatus, template string,
) (*matching.Request, error) {
	r, err := e.load(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if r.LandlordID != p.LandlordID {
		return nil, errors.PermissionDenied("request %s belongs to another landlord", p.RequestID)
	}
	if r.Status != matching.RequestPending && r.Status != matching.RequestViewed {
		return nil, errors.Validation("request is already %s", r.Status)
	}

	now := e.clock.Now()
	r.Status = status
	r.LandlordResponse = p.Response
	r.RespondedAt = &now
	r.UpdatedAt = now
	if err := e.store.UpdateMatchRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("storing decision: %s", err)
	}

	if err := telemetry.Collect(ctx, telemetry.MatchDecisionMetric{
		Version:       telemetry.MatchDecisionMetricV1,
		Decision:      string(status),
		Score:         r.CompatibilityScore,
		ResponseHours: int64(now.Sub(r.CreatedAt) / time.Hour),
	}); err != nil {
		e.log.Warn().Err(err).Msg("collecting match decision metric")
	}

	e.notify(ctx, r.TenantID, template, r, map[string]interface{}{
		"property_address":  e.propertyAddress(ctx, r.PropertyID),
		"landlord_response": p.Response,
	})
	return r, nil
}

// Cancel implements matching.Service. Only the submitting tenant can cancel,
// and only while the request is still open.
func (e *Engine) Cancel(ctx context.Context, requestID, tenantID uuid.UUID) (*matching.Request, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.TenantID != tenantID {
		return nil, errors.PermissionDenied("request %s belongs to another tenant", requestID)
	}
	if r.Status != matching.RequestPending && r.Status != matching.RequestViewed {
		return nil, errors.Validation("request is already %s", r.Status)
	}

	now := e.clock.Now()
	r.Status = matching.RequestCancelled
	r.UpdatedAt = now
	if err := e.store.UpdateMatchRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("storing cancelled request: %s", err)
	}
	return r, nil
}

// GetCriteria implements matching.Service.
func (e *Engine) GetCriteria(ctx context.Context, tenantID uuid.UUID) (*matching.Criteria, error) {
	c, ok, err := e.store.GetCriteria(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading criteria: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("no saved criteria for tenant %s", tenantID)
	}
	return c, nil
}

// SaveCriteria implements matching.Service. Criteria are a singleton per
// tenant; saving replaces the previous search.
func (e *Engine) SaveCriteria(ctx context.Context, c *matching.Criteria) (*matching.Criteria, error) {
	if c.TenantID == uuid.Nil {
		return nil, errors.Validation("tenant is required")
	}
	if c.MinPriceCents < 0 || c.MaxPriceCents < 0 {
		return nil, errors.Validation("prices cannot be negative")
	}
	if c.MinPriceCents > 0 && c.MaxPriceCents > 0 && c.MinPriceCents > c.MaxPriceCents {
		return nil, errors.Validation("min price exceeds max price")
	}
	if c.NotificationFrequency == "" {
		c.NotificationFrequency = matching.FrequencyDaily
	}
	if !c.NotificationFrequency.Valid() {
		return nil, errors.Validation("unknown notification frequency %q", c.NotificationFrequency)
	}

	now := e.clock.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := e.store.SaveCriteria(ctx, c); err != nil {
		return nil, fmt.Errorf("storing criteria: %s", err)
	}
	return c, nil
}

// FindMatching implements matching.Service.
func (e *Engine) FindMatching(ctx context.Context, tenantID uuid.UUID) ([]*properties.Property, error) {
	c, err := e.GetCriteria(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	found, err := e.catalog.Search(ctx, criteriaFilter(c, 0))
	if err != nil {
		return nil, errors.External("searching catalog", err)
	}

	now := e.clock.Now()
	c.LastSearch = &now
	c.UpdatedAt = now
	if err := e.store.SaveCriteria(ctx, c); err != nil {
		e.log.Warn().Err(err).Msg("storing last search time")
	}
	return found, nil
}

// Recommendations implements matching.Service. Found properties are ranked by
// the compatibility score of the tenant's application profile, seeded from the
// most recent submitted request.
func (e *Engine) Recommendations(
	ctx context.Context, tenantID uuid.UUID, limit int,
) ([]matching.ScoredProperty, error) {
	if limit <= 0 {
		limit = 10
	}
	c, err := e.GetCriteria(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	found, err := e.catalog.Search(ctx, criteriaFilter(c, 0))
	if err != nil {
		return nil, errors.External("searching catalog", err)
	}

	probe, err := e.applicationProbe(ctx, tenantID, c)
	if err != nil {
		return nil, err
	}
	scored := make([]matching.ScoredProperty, 0, len(found))
	for _, p := range found {
		if p.LandlordID == tenantID {
			continue
		}
		scored = append(scored, matching.ScoredProperty{Property: p, Score: matching.Score(probe, p)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Statistics implements matching.Service.
func (e *Engine) Statistics(ctx context.Context, userID uuid.UUID) (*matching.Stats, error) {
	return e.store.MatchStats(ctx, userID)
}

// ProcessDaily implements matching.Service. For every auto-apply search it
// submits requests to newly matching properties when the profile scores at
// least the threshold, bounded per tenant per day, and sends one digest with
// the day's match count.
func (e *Engine) ProcessDaily(ctx context.Context) (matching.ProcessDailyResult, error) {
	result := matching.ProcessDailyResult{}
	all, err := e.store.ListAutoApplyCriteria(ctx)
	if err != nil {
		return result, fmt.Errorf("listing auto-apply criteria: %s", err)
	}

	now := e.clock.Now()
	for i := range all {
		c := &all[i]
		result.CriteriaProcessed++

		found, err := e.catalog.Search(ctx, criteriaFilter(c, 0))
		if err != nil {
			e.log.Error().Err(err).Str("tenantId", c.TenantID.String()).Msg("searching catalog")
			continue
		}
		probe, err := e.applicationProbe(ctx, c.TenantID, c)
		if err != nil {
			e.log.Warn().Err(err).Str("tenantId", c.TenantID.String()).Msg("building application profile")
			continue
		}

		submitted, err := e.autoApply(ctx, c, probe, found, now)
		if err != nil {
			e.log.Error().Err(err).Str("tenantId", c.TenantID.String()).Msg("auto-applying")
			continue
		}
		result.RequestsSubmitted += submitted

		c.LastSearch = &now
		c.UpdatedAt = now
		if err := e.store.SaveCriteria(ctx, c); err != nil {
			e.log.Warn().Err(err).Msg("storing last search time")
		}

		if len(found) > 0 {
			e.notify(ctx, c.TenantID, templateMatchDigest, nil, map[string]interface{}{
				"match_count": len(found),
			})
			result.DigestsSent++
		}
	}
	return result, nil
}

func (e *Engine) autoApply(
	ctx context.Context,
	c *matching.Criteria,
	probe *matching.Request,
	found []*properties.Property,
	now time.Time,
) (int, error) {
	used, err := e.store.CountAutoSubmittedSince(ctx, c.TenantID, dayStart(now))
	if err != nil {
		return 0, fmt.Errorf("counting auto submissions: %s", err)
	}
	budget := int64(matching.MaxAutoAppliesPerDay) - used

	submitted := 0
	for _, p := range found {
		if budget <= 0 {
			break
		}
		if p.LandlordID == c.TenantID {
			continue
		}
		score := matching.Score(probe, p)
		if score < matching.AutoApplyThreshold {
			continue
		}
		active, err := e.store.HasActiveMatchRequest(ctx, c.TenantID, p.ID)
		if err != nil {
			return submitted, fmt.Errorf("checking active requests: %s", err)
		}
		if active {
			continue
		}

		r := &matching.Request{
			ID:         uuid.New(),
			TenantID:   c.TenantID,
			LandlordID: p.LandlordID,
			PropertyID: p.ID,

			TenantMessage: probe.TenantMessage,

			MonthlyIncomeCents:  probe.MonthlyIncomeCents,
			EmploymentType:      probe.EmploymentType,
			LeaseDurationMonths: probe.LeaseDurationMonths,
			Occupants:           probe.Occupants,
			HasPets:             probe.HasPets,
			IsSmoker:            probe.IsSmoker,

			HasRentalReferences: probe.HasRentalReferences,
			HasEmploymentProof:  probe.HasEmploymentProof,
			HasCreditCheck:      probe.HasCreditCheck,

			Priority:           matching.PriorityNormal,
			Status:             matching.RequestPending,
			CompatibilityScore: score,
			AutoSubmitted:      true,
			ExpiresAt:          now.Add(matching.RequestTTL),

			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.InsertMatchRequest(ctx, r); err != nil {
			return submitted, fmt.Errorf("storing auto request: %s", err)
		}
		e.notify(ctx, p.LandlordID, templateMatchReceived, r, map[string]interface{}{
			"property_address": p.Address,
			"tenant_name":      e.displayName(ctx, c.TenantID),
			"score":            score,
		})
		submitted++
		budget--
	}
	return submitted, nil
}

// ExpireOld implements matching.Service. Every expired tenant learns their
// request lapsed without an answer.
func (e *Engine) ExpireOld(ctx context.Context) (int64, error) {
	now := e.clock.Now()
	candidates, err := e.store.ListExpiryCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing expiry candidates: %s", err)
	}
	expired, err := e.store.ExpireMatchRequests(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expiring match requests: %s", err)
	}
	for i := range candidates {
		r := &candidates[i]
		e.notify(ctx, r.TenantID, templateMatchExpired, r, map[string]interface{}{
			"property_address": e.propertyAddress(ctx, r.PropertyID),
			"ttl_days":         int(matching.RequestTTL / (24 * time.Hour)),
		})
	}
	if expired > 0 {
		e.log.Info().Int64("expired", expired).Msg("expired match requests")
	}
	return expired, nil
}

// SendFollowUpReminders implements matching.Service.
func (e *Engine) SendFollowUpReminders(ctx context.Context) (int64, error) {
	now := e.clock.Now()
	candidates, err := e.store.ListFollowUpCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing follow-up candidates: %s", err)
	}

	var sent int64
	for i := range candidates {
		r := &candidates[i]
		if !r.NeedsFollowUp(now) {
			continue
		}
		e.notify(ctx, r.LandlordID, templateMatchFollowUp, r, map[string]interface{}{
			"property_address": e.propertyAddress(ctx, r.PropertyID),
			"tenant_name":      e.displayName(ctx, r.TenantID),
			"submitted_date":   r.CreatedAt.Format("2006-01-02"),
		})
		r.FollowUpCount++
		r.LastFollowUp = &now
		r.UpdatedAt = now
		if err := e.store.UpdateMatchRequest(ctx, r); err != nil {
			return sent, fmt.Errorf("storing follow-up: %s", err)
		}
		sent++
	}
	return sent, nil
}

func (e *Engine) load(ctx context.Context, requestID uuid.UUID) (*matching.Request, error) {
	r, ok, err := e.store.GetMatchRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading match request: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("match request %s not found", requestID)
	}
	return r, nil
}

// applicationProbe builds the scoring profile for searches without an explicit
// application, seeded from the tenant's most recent request.
func (e *Engine) applicationProbe(
	ctx context.Context, tenantID uuid.UUID, c *matching.Criteria,
) (*matching.Request, error) {
	recent, err := e.store.ListMatchRequestsByTenant(ctx, tenantID, matching.ListFilter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("loading recent requests: %s", err)
	}
	if len(recent) > 0 {
		return &recent[0], nil
	}
	return &matching.Request{
		TenantID:            tenantID,
		EmploymentType:      matching.EmploymentEmployed,
		LeaseDurationMonths: 12,
		Occupants:           1,
		HasPets:             c.PetsRequired,
		IsSmoker:            c.SmokingRequired,
	}, nil
}

func (e *Engine) notify(
	ctx context.Context,
	recipientID uuid.UUID,
	template string,
	r *matching.Request,
	data map[string]interface{},
) {
	if e.notifier == nil {
		return
	}
	params := notifications.CreateParams{
		RecipientID: recipientID,
		Template:    template,
		Data:        data,
	}
	if r != nil {
		params.Content = &notifications.ContentRef{Kind: notifications.ContentMatchRequest, ID: r.ID}
	}
	if _, err := e.notifier.Create(ctx, params); err != nil {
		e.log.Warn().Err(err).Str("template", template).Msg("sending notification")
	}
}

func (e *Engine) displayName(ctx context.Context, userID uuid.UUID) string {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return "A tenant"
	}
	return user.Name
}

func (e *Engine) propertyAddress(ctx context.Context, propertyID uuid.UUID) string {
	p, err := e.catalog.Get(ctx, propertyID)
	if err != nil {
		return "your property"
	}
	return p.Address
}

func criteriaFilter(c *matching.Criteria, limit int) properties.Filter {
	return properties.Filter{
		MinPriceCents:  c.MinPriceCents,
		MaxPriceCents:  c.MaxPriceCents,
		Cities:         c.Cities,
		Types:          c.PropertyTypes,
		MinBedrooms:    c.MinBedrooms,
		MinBathrooms:   c.MinBathrooms,
		MinAreaM2:      c.MinAreaM2,
		Amenities:      c.RequiredAmenities,
		PetsAllowed:    c.PetsRequired,
		Furnished:      c.FurnishedRequired,
		Parking:        c.ParkingRequired,
		SmokingAllowed: c.SmokingRequired,
		Limit:          limit,
	}
}

func asPointers(rows []matching.Request) []*matching.Request {
	out := make([]*matching.Request, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
