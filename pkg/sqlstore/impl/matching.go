package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/matching"
)

const matchRequestColumns = `id, tenant_id, landlord_id, property_id, tenant_message, contact_info,
	monthly_income_cents, employment_type, lease_duration_months, occupants, has_pets, is_smoker,
	has_rental_references, has_employment_proof, has_credit_check,
	priority, status, compatibility_score, auto_submitted,
	landlord_response, viewed_at, responded_at, expires_at,
	follow_up_count, last_follow_up, created_at, updated_at`

func matchRequestArgs(r *matching.Request) ([]interface{}, error) {
	contactInfo, err := nullableJSON(r.ContactInfo)
	if err != nil {
		return nil, fmt.Errorf("contact_info: %s", err)
	}
	return []interface{}{
		r.ID.String(), r.TenantID.String(), r.LandlordID.String(), r.PropertyID.String(),
		r.TenantMessage, contactInfo,
		r.MonthlyIncomeCents, string(r.EmploymentType), r.LeaseDurationMonths, r.Occupants, r.HasPets, r.IsSmoker,
		r.HasRentalReferences, r.HasEmploymentProof, r.HasCreditCheck,
		string(r.Priority), string(r.Status), r.CompatibilityScore, r.AutoSubmitted,
		r.LandlordResponse, tsPtr(r.ViewedAt), tsPtr(r.RespondedAt), tsOf(r.ExpiresAt),
		r.FollowUpCount, tsPtr(r.LastFollowUp), tsOf(r.CreatedAt), tsOf(r.UpdatedAt),
	}, nil
}

func scanMatchRequest(sc rowScanner) (*matching.Request, error) {
	var r matching.Request
	var id, tenantID, landlordID, propertyID string
	var employment, priority, status string
	var contactInfo sql.NullString
	var viewedAt, respondedAt, lastFollowUp sql.NullInt64
	var expiresAt, createdAt, updatedAt int64

	if err := sc.Scan(
		&id, &tenantID, &landlordID, &propertyID, &r.TenantMessage, &contactInfo,
		&r.MonthlyIncomeCents, &employment, &r.LeaseDurationMonths, &r.Occupants, &r.HasPets, &r.IsSmoker,
		&r.HasRentalReferences, &r.HasEmploymentProof, &r.HasCreditCheck,
		&priority, &status, &r.CompatibilityScore, &r.AutoSubmitted,
		&r.LandlordResponse, &viewedAt, &respondedAt, &expiresAt,
		&r.FollowUpCount, &lastFollowUp, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if r.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if r.TenantID, err = parseUUID(tenantID); err != nil {
		return nil, err
	}
	if r.LandlordID, err = parseUUID(landlordID); err != nil {
		return nil, err
	}
	if r.PropertyID, err = parseUUID(propertyID); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(contactInfo, &r.ContactInfo); err != nil {
		return nil, fmt.Errorf("contact_info: %s", err)
	}
	r.EmploymentType = matching.EmploymentType(employment)
	r.Priority = matching.RequestPriority(priority)
	r.Status = matching.RequestStatus(status)
	r.ViewedAt = fromTSPtr(viewedAt)
	r.RespondedAt = fromTSPtr(respondedAt)
	r.ExpiresAt = fromTS(expiresAt)
	r.LastFollowUp = fromTSPtr(lastFollowUp)
	r.CreatedAt = fromTS(createdAt)
	r.UpdatedAt = fromTS(updatedAt)
	return &r, nil
}

// InsertMatchRequest stores a new match request.
func (s *Store) InsertMatchRequest(ctx context.Context, r *matching.Request) error {
	args, err := matchRequestArgs(r)
	if err != nil {
		return fmt.Errorf("serializing match request: %s", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO match_requests (`+matchRequestColumns+`)
		 VALUES (`+placeholders(columnCount(matchRequestColumns))+`)`, args...); err != nil {
		return fmt.Errorf("insert into match_requests: %s", err)
	}
	return nil
}

// GetMatchRequest fetches a match request by id.
func (s *Store) GetMatchRequest(ctx context.Context, id uuid.UUID) (*matching.Request, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+matchRequestColumns+` FROM match_requests WHERE id = ?1`, id.String())
	r, err := scanMatchRequest(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select match request: %s", err)
	}
	return r, true, nil
}

func (s *Store) queryMatchRequests(ctx context.Context, query string, args ...interface{}) ([]matching.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select match requests: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing match request rows")
		}
	}()

	out := make([]matching.Request, 0)
	for rows.Next() {
		r, err := scanMatchRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match request: %s", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match requests: %s", err)
	}
	return out, nil
}

func matchFilterSQL(f matching.ListFilter) (string, []interface{}) {
	clause := ""
	var args []interface{}
	if f.Status != "" {
		clause += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	clause += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			clause += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	return clause, args
}

// ListMatchRequestsByTenant lists a tenant's requests, newest first.
func (s *Store) ListMatchRequestsByTenant(
	ctx context.Context, tenantID uuid.UUID, f matching.ListFilter,
) ([]matching.Request, error) {
	clause, args := matchFilterSQL(f)
	args = append([]interface{}{tenantID.String()}, args...)
	return s.queryMatchRequests(ctx,
		`SELECT `+matchRequestColumns+` FROM match_requests WHERE tenant_id = ?1`+clause, args...)
}

// ListMatchRequestsByLandlord lists the requests aimed at a landlord, newest
// first.
func (s *Store) ListMatchRequestsByLandlord(
	ctx context.Context, landlordID uuid.UUID, f matching.ListFilter,
) ([]matching.Request, error) {
	clause, args := matchFilterSQL(f)
	args = append([]interface{}{landlordID.String()}, args...)
	return s.queryMatchRequests(ctx,
		`SELECT `+matchRequestColumns+` FROM match_requests WHERE landlord_id = ?1`+clause, args...)
}

// UpdateMatchRequest persists a request mutation.
func (s *Store) UpdateMatchRequest(ctx context.Context, r *matching.Request) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_requests SET
		 status = ?, priority = ?, landlord_response = ?, viewed_at = ?, responded_at = ?,
		 follow_up_count = ?, last_follow_up = ?, updated_at = ?
		 WHERE id = ?`,
		string(r.Status), string(r.Priority), r.LandlordResponse, tsPtr(r.ViewedAt), tsPtr(r.RespondedAt),
		r.FollowUpCount, tsPtr(r.LastFollowUp), tsOf(r.UpdatedAt),
		r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update match_requests: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("match request %s not persisted", r.ID)
	}
	return nil
}

// HasActiveMatchRequest reports whether the tenant already has a live request
// for the property.
func (s *Store) HasActiveMatchRequest(ctx context.Context, tenantID, propertyID uuid.UUID) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_requests
		 WHERE tenant_id = ?1 AND property_id = ?2 AND status IN ('pending', 'viewed', 'accepted')`,
		tenantID.String(), propertyID.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("counting active match requests: %s", err)
	}
	return count > 0, nil
}

// CountAutoSubmittedSince counts the tenant's automatic submissions after the
// given instant.
func (s *Store) CountAutoSubmittedSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_requests
		 WHERE tenant_id = ?1 AND auto_submitted = 1 AND created_at >= ?2`,
		tenantID.String(), tsOf(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting auto submissions: %s", err)
	}
	return count, nil
}

// ListExpiryCandidates lists the actionable requests past their expiry, the
// set the next ExpireMatchRequests call flips.
func (s *Store) ListExpiryCandidates(ctx context.Context, now time.Time) ([]matching.Request, error) {
	return s.queryMatchRequests(ctx,
		`SELECT `+matchRequestColumns+` FROM match_requests
		 WHERE status IN ('pending', 'viewed') AND expires_at < ?1
		 ORDER BY created_at`,
		tsOf(now))
}

// ExpireMatchRequests flips every actionable request past its expiry and
// returns how many changed.
func (s *Store) ExpireMatchRequests(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_requests SET status = 'expired', updated_at = ?1
		 WHERE status IN ('pending', 'viewed') AND expires_at < ?1`,
		tsOf(now))
	if err != nil {
		return 0, fmt.Errorf("expiring match requests: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %s", err)
	}
	return affected, nil
}

// ListFollowUpCandidates lists unanswered requests old enough for another
// landlord reminder.
func (s *Store) ListFollowUpCandidates(ctx context.Context, now time.Time) ([]matching.Request, error) {
	return s.queryMatchRequests(ctx,
		`SELECT `+matchRequestColumns+` FROM match_requests
		 WHERE status IN ('pending', 'viewed')
		   AND created_at <= ?1
		   AND follow_up_count < ?2
		   AND (last_follow_up IS NULL OR last_follow_up <= ?3)
		 ORDER BY created_at`,
		tsOf(now.Add(-matching.FollowUpMinAge)),
		matching.MaxFollowUps,
		tsOf(now.Add(-matching.FollowUpMinSpacing)))
}

const criteriaColumns = `tenant_id, min_price_cents, max_price_cents, cities, property_types,
	min_bedrooms, min_bathrooms, min_area_m2, required_amenities,
	pets_required, furnished_required, parking_required, smoking_required,
	auto_apply, notification_frequency, last_search, created_at, updated_at`

func scanCriteria(sc rowScanner) (*matching.Criteria, error) {
	var c matching.Criteria
	var tenantID, frequency string
	var cities, propertyTypes, amenities sql.NullString
	var lastSearch sql.NullInt64
	var createdAt, updatedAt int64

	if err := sc.Scan(
		&tenantID, &c.MinPriceCents, &c.MaxPriceCents, &cities, &propertyTypes,
		&c.MinBedrooms, &c.MinBathrooms, &c.MinAreaM2, &amenities,
		&c.PetsRequired, &c.FurnishedRequired, &c.ParkingRequired, &c.SmokingRequired,
		&c.AutoApply, &frequency, &lastSearch, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.TenantID, err = parseUUID(tenantID); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(cities, &c.Cities); err != nil {
		return nil, fmt.Errorf("cities: %s", err)
	}
	if err := unmarshalJSON(propertyTypes, &c.PropertyTypes); err != nil {
		return nil, fmt.Errorf("property_types: %s", err)
	}
	if err := unmarshalJSON(amenities, &c.RequiredAmenities); err != nil {
		return nil, fmt.Errorf("required_amenities: %s", err)
	}
	c.NotificationFrequency = matching.NotificationFrequency(frequency)
	c.LastSearch = fromTSPtr(lastSearch)
	c.CreatedAt = fromTS(createdAt)
	c.UpdatedAt = fromTS(updatedAt)
	return &c, nil
}

// GetCriteria fetches a tenant's saved search criteria.
func (s *Store) GetCriteria(ctx context.Context, tenantID uuid.UUID) (*matching.Criteria, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+criteriaColumns+` FROM search_criteria WHERE tenant_id = ?1`, tenantID.String())
	c, err := scanCriteria(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select criteria: %s", err)
	}
	return c, true, nil
}

// SaveCriteria upserts the tenant's saved search, one row per tenant.
func (s *Store) SaveCriteria(ctx context.Context, c *matching.Criteria) error {
	cities, err := marshalJSON(c.Cities)
	if err != nil {
		return fmt.Errorf("cities: %s", err)
	}
	propertyTypes, err := marshalJSON(c.PropertyTypes)
	if err != nil {
		return fmt.Errorf("property_types: %s", err)
	}
	amenities, err := marshalJSON(c.RequiredAmenities)
	if err != nil {
		return fmt.Errorf("required_amenities: %s", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO search_criteria (`+criteriaColumns+`)
		 VALUES (`+placeholders(columnCount(criteriaColumns))+`)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		 min_price_cents = excluded.min_price_cents,
		 max_price_cents = excluded.max_price_cents,
		 cities = excluded.cities,
		 property_types = excluded.property_types,
		 min_bedrooms = excluded.min_bedrooms,
		 min_bathrooms = excluded.min_bathrooms,
		 min_area_m2 = excluded.min_area_m2,
		 required_amenities = excluded.required_amenities,
		 pets_required = excluded.pets_required,
		 furnished_required = excluded.furnished_required,
		 parking_required = excluded.parking_required,
		 smoking_required = excluded.smoking_required,
		 auto_apply = excluded.auto_apply,
		 notification_frequency = excluded.notification_frequency,
		 last_search = excluded.last_search,
		 updated_at = excluded.updated_at`,
		c.TenantID.String(), c.MinPriceCents, c.MaxPriceCents, cities, propertyTypes,
		c.MinBedrooms, c.MinBathrooms, c.MinAreaM2, amenities,
		c.PetsRequired, c.FurnishedRequired, c.ParkingRequired, c.SmokingRequired,
		c.AutoApply, string(c.NotificationFrequency), tsPtr(c.LastSearch), tsOf(c.CreatedAt), tsOf(c.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert search_criteria: %s", err)
	}
	return nil
}

// ListAutoApplyCriteria lists every saved search with auto-apply enabled.
func (s *Store) ListAutoApplyCriteria(ctx context.Context) ([]matching.Criteria, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+criteriaColumns+` FROM search_criteria WHERE auto_apply = 1 ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("select auto-apply criteria: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing criteria rows")
		}
	}()

	out := make([]matching.Criteria, 0)
	for rows.Next() {
		c, err := scanCriteria(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning criteria: %s", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating criteria: %s", err)
	}
	return out, nil
}

// MatchStats aggregates the match requests the user participates in, either
// side.
func (s *Store) MatchStats(ctx context.Context, userID uuid.UUID) (*matching.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, compatibility_score, auto_submitted FROM match_requests
		 WHERE tenant_id = ?1 OR landlord_id = ?1`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("select match stats: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing match stats rows")
		}
	}()

	stats := &matching.Stats{ByStatus: map[matching.RequestStatus]int{}}
	totalScore := 0
	for rows.Next() {
		var status string
		var score int
		var auto bool
		if err := rows.Scan(&status, &score, &auto); err != nil {
			return nil, fmt.Errorf("scanning match stats: %s", err)
		}
		stats.Total++
		stats.ByStatus[matching.RequestStatus(status)]++
		totalScore += score
		if auto {
			stats.AutoApplied++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match stats: %s", err)
	}
	if stats.Total > 0 {
		stats.AverageScore = totalScore / stats.Total
	}
	return stats, nil
}
