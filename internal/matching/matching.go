// Package matching implements the tenant-landlord match request lifecycle:
// submission, compatibility scoring, landlord decisions, saved search criteria
// with auto-apply, expiry, and follow-up reminders.
package matching

import (
	"time"

	"github.com/google/uuid"
)

// RequestTTL is how long a match request stays actionable.
const RequestTTL = 7 * 24 * time.Hour

// RequestStatus is the lifecycle status of a match request.
type RequestStatus string

// All match request statuses.
const (
	RequestPending   RequestStatus = "pending"
	RequestViewed    RequestStatus = "viewed"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// Active reports whether the status blocks a new request for the same
// (tenant, property) pair.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestViewed || s == RequestAccepted
}

// RequestPriority ranks a request in the landlord inbox.
type RequestPriority string

// All request priorities.
const (
	PriorityLow    RequestPriority = "low"
	PriorityNormal RequestPriority = "normal"
	PriorityHigh   RequestPriority = "high"
)

// EmploymentType describes the tenant's income situation.
type EmploymentType string

// All employment types.
const (
	EmploymentEmployed     EmploymentType = "employed"
	EmploymentSelfEmployed EmploymentType = "self_employed"
	EmploymentStudent      EmploymentType = "student"
	EmploymentRetired      EmploymentType = "retired"
	EmploymentUnemployed   EmploymentType = "unemployed"
)

// Valid reports whether e is a known employment type.
func (e EmploymentType) Valid() bool {
	switch e {
	case EmploymentEmployed, EmploymentSelfEmployed, EmploymentStudent, EmploymentRetired, EmploymentUnemployed:
		return true
	}
	return false
}

// Request is a tenant's first-contact application for a property. Accepting
// one may graduate into a contract draft, but never forces it.
type Request struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	LandlordID uuid.UUID `json:"landlord_id"`
	PropertyID uuid.UUID `json:"property_id"`

	TenantMessage string                 `json:"tenant_message,omitempty"`
	ContactInfo   map[string]interface{} `json:"contact_info,omitempty"`

	MonthlyIncomeCents  int64          `json:"monthly_income_cents"`
	EmploymentType      EmploymentType `json:"employment_type"`
	LeaseDurationMonths int            `json:"lease_duration_months"`
	Occupants           int            `json:"occupants"`
	HasPets             bool           `json:"has_pets"`
	IsSmoker            bool           `json:"is_smoker"`

	HasRentalReferences bool `json:"has_rental_references"`
	HasEmploymentProof  bool `json:"has_employment_proof"`
	HasCreditCheck      bool `json:"has_credit_check"`

	Priority           RequestPriority `json:"priority"`
	Status             RequestStatus   `json:"status"`
	CompatibilityScore int             `json:"compatibility_score"`
	AutoSubmitted      bool            `json:"auto_submitted"`

	LandlordResponse string     `json:"landlord_response,omitempty"`
	ViewedAt         *time.Time `json:"viewed_at,omitempty"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`

	FollowUpCount int        `json:"follow_up_count"`
	LastFollowUp  *time.Time `json:"last_follow_up,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationFrequency is how often saved-criteria matches are announced.
type NotificationFrequency string

// All notification frequencies.
const (
	FrequencyImmediate NotificationFrequency = "immediate"
	FrequencyDaily     NotificationFrequency = "daily"
	FrequencyWeekly    NotificationFrequency = "weekly"
	FrequencyMonthly   NotificationFrequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f NotificationFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Criteria is a tenant's saved property search, singleton per tenant.
type Criteria struct {
	TenantID uuid.UUID `json:"tenant_id"`

	MinPriceCents int64    `json:"min_price_cents"`
	MaxPriceCents int64    `json:"max_price_cents"`
	Cities        []string `json:"cities,omitempty"`
	PropertyTypes []string `json:"property_types,omitempty"`

	MinBedrooms  int `json:"min_bedrooms"`
	MinBathrooms int `json:"min_bathrooms"`
	MinAreaM2    int `json:"min_area_m2"`

	RequiredAmenities []string `json:"required_amenities,omitempty"`
	PetsRequired      bool     `json:"pets_required"`
	FurnishedRequired bool     `json:"furnished_required"`
	ParkingRequired   bool     `json:"parking_required"`
	SmokingRequired   bool     `json:"smoking_required"`

	AutoApply             bool                  `json:"auto_apply"`
	NotificationFrequency NotificationFrequency `json:"notification_frequency"`

	LastSearch *time.Time `json:"last_search,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Stats summarize a party's match requests.
type Stats struct {
	Total        int                   `json:"total"`
	ByStatus     map[RequestStatus]int `json:"by_status"`
	AverageScore int                   `json:"average_score"`
	AutoApplied  int                   `json:"auto_applied"`
}

// Follow-up pacing constants.
const (
	FollowUpMinAge     = 2 * 24 * time.Hour
	FollowUpMinSpacing = 2 * 24 * time.Hour
	MaxFollowUps       = 2
)

// NeedsFollowUp reports whether a reminder to the landlord is due.
func (r *Request) NeedsFollowUp(now time.Time) bool {
	if r.Status != RequestPending && r.Status != RequestViewed {
		return false
	}
	if now.Sub(r.CreatedAt) < FollowUpMinAge {
		return false
	}
	if r.FollowUpCount >= MaxFollowUps {
		return false
	}
	if r.LastFollowUp != nil && now.Sub(*r.LastFollowUp) < FollowUpMinSpacing {
		return false
	}
	return true
}

// ExpiredNow reports whether the request should flip to expired.
func (r *Request) ExpiredNow(now time.Time) bool {
	if r.Status != RequestPending && r.Status != RequestViewed {
		return false
	}
	return now.After(r.ExpiresAt)
}
