// Package contracts defines the rental contract entities and the data rules
// shared by every contract operation: completion accounting, required payload
// keys, signing order and contextual responsibility.
package contracts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

// Type classifies a contract.
type Type string

// All contract types.
const (
	TypeRentalUrban      Type = "rental_urban"
	TypeRentalCommercial Type = "rental_commercial"
	TypeRentalRoom       Type = "rental_room"
	TypeRentalRural      Type = "rental_rural"
	TypeService          Type = "service"
)

// Valid reports whether t is a known contract type.
func (t Type) Valid() bool {
	switch t {
	case TypeRentalUrban, TypeRentalCommercial, TypeRentalRoom, TypeRentalRural, TypeService:
		return true
	}
	return false
}

// Payload is an opaque structured data section. Numeric values are decoded as
// json.Number so monetary amounts never pass through binary floats.
type Payload map[string]interface{}

// Contract is the aggregate root of the negotiation flow.
type Contract struct {
	ID             uuid.UUID      `json:"id"`
	ContractNumber string         `json:"contract_number"`
	Type           Type           `json:"contract_type"`
	State          workflow.State `json:"current_state"`

	LandlordID  uuid.UUID  `json:"landlord_id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	GuarantorID *uuid.UUID `json:"guarantor_id,omitempty"`
	PropertyID  uuid.UUID  `json:"property_id"`

	LandlordData   Payload  `json:"landlord_data,omitempty"`
	TenantData     Payload  `json:"tenant_data,omitempty"`
	PropertyData   Payload  `json:"property_data,omitempty"`
	EconomicTerms  Payload  `json:"economic_terms,omitempty"`
	ContractTerms  Payload  `json:"contract_terms,omitempty"`
	SpecialClauses []string `json:"special_clauses,omitempty"`

	TenantApproved     bool       `json:"tenant_approved"`
	TenantApprovedAt   *time.Time `json:"tenant_approved_at,omitempty"`
	LandlordApproved   bool       `json:"landlord_approved"`
	LandlordApprovedAt *time.Time `json:"landlord_approved_at,omitempty"`

	TenantSigned      bool       `json:"tenant_signed"`
	TenantSignedAt    *time.Time `json:"tenant_signed_at,omitempty"`
	GuarantorSigned   bool       `json:"guarantor_signed"`
	GuarantorSignedAt *time.Time `json:"guarantor_signed_at,omitempty"`
	LandlordSigned    bool       `json:"landlord_signed"`
	LandlordSignedAt  *time.Time `json:"landlord_signed_at,omitempty"`
	FullySignedAt     *time.Time `json:"fully_signed_at,omitempty"`

	InvitationAcceptedAt     *time.Time `json:"invitation_accepted_at,omitempty"`
	TenantIdentityVerifiedAt *time.Time `json:"tenant_identity_verified_at,omitempty"`

	// ObjectionsCount is the lifetime number of objections raised on the
	// contract. Resolving or withdrawing one clears HasPendingObjections but
	// never decrements the count; publication telemetry reports the total
	// friction of the negotiation.
	ObjectionsCount      int        `json:"objections_count"`
	HasPendingObjections bool       `json:"has_pending_objections"`
	LastObjectionDate    *time.Time `json:"last_objection_date,omitempty"`

	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	PublishedBy *uuid.UUID `json:"published_by,omitempty"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	PDFHandle string `json:"pdf_handle,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Required payload keys checked by completion accounting and by the
// data-completion endpoints. The payload sections stay open; only these keys
// are mandatory.
var (
	RequiredLandlordKeys      = []string{"full_name", "document_id", "email", "phone"}
	RequiredTenantKeys        = []string{"full_name", "document_id", "email", "phone"}
	RequiredEconomicKeys      = []string{"monthly_rent", "security_deposit"}
	RequiredContractTermsKeys = []string{"lease_duration_months", "start_date"}
)

// HasGuarantor reports whether a guarantor participates in the contract.
func (c *Contract) HasGuarantor() bool {
	return c.GuarantorID != nil
}

// TenantLinked reports whether a tenant accepted the invitation and is bound
// to the contract.
func (c *Contract) TenantLinked() bool {
	return c.TenantID != nil && c.InvitationAcceptedAt != nil
}

// RoleOf resolves which contract role the given user holds, or "" when the
// user is not a party.
func (c *Contract) RoleOf(userID uuid.UUID) workflow.Role {
	switch {
	case c.LandlordID == userID:
		return workflow.RoleLandlord
	case c.TenantID != nil && *c.TenantID == userID:
		return workflow.RoleTenant
	case c.GuarantorID != nil && *c.GuarantorID == userID:
		return workflow.RoleGuarantor
	}
	return ""
}

// IsParty reports whether the user is the landlord, tenant or guarantor.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return c.RoleOf(userID) != ""
}

// CompletionPercentage is the proportion, out of ten checklist items, of the
// work already done on the contract. Each item weighs ten points.
func (c *Contract) CompletionPercentage() int {
	checks := []bool{
		len(c.LandlordData) > 0,
		len(c.EconomicTerms) > 0,
		len(c.ContractTerms) > 0,
		c.TenantLinked(),
		len(c.TenantData) > 0,
		!c.HasPendingObjections,
		c.TenantApproved,
		c.TenantSigned,
		c.LandlordSigned,
		c.Published,
	}
	done := 0
	for _, ok := range checks {
		if ok {
			done++
		}
	}
	return done * 10
}

// MissingDataSummary lists, per party, the required keys still absent from the
// structured payloads.
func (c *Contract) MissingDataSummary() map[string][]string {
	out := map[string][]string{}
	landlord := missingKeys(c.LandlordData, RequiredLandlordKeys)
	for _, k := range missingKeys(c.EconomicTerms, RequiredEconomicKeys) {
		landlord = append(landlord, "economic_terms."+k)
	}
	for _, k := range missingKeys(c.ContractTerms, RequiredContractTermsKeys) {
		landlord = append(landlord, "contract_terms."+k)
	}
	if len(landlord) > 0 {
		out["landlord"] = landlord
	}
	if tenant := missingKeys(c.TenantData, RequiredTenantKeys); len(tenant) > 0 {
		out["tenant"] = tenant
	}
	return out
}

func missingKeys(p Payload, required []string) []string {
	var missing []string
	for _, k := range required {
		v, ok := p[k]
		if !ok || v == nil || v == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// LandlordDataComplete reports whether every landlord-side required key is set.
func (c *Contract) LandlordDataComplete() bool {
	return len(missingKeys(c.LandlordData, RequiredLandlordKeys)) == 0 &&
		len(missingKeys(c.EconomicTerms, RequiredEconomicKeys)) == 0 &&
		len(missingKeys(c.ContractTerms, RequiredContractTermsKeys)) == 0
}

// TenantDataComplete reports whether every tenant-side required key is set.
func (c *Contract) TenantDataComplete() bool {
	return len(missingKeys(c.TenantData, RequiredTenantKeys)) == 0
}

// NextSigner returns the role whose signature is due next under the strict
// tenant, guarantor, landlord order, or "" when all required signatures are
// present.
func (c *Contract) NextSigner() workflow.Role {
	if !c.TenantSigned {
		return workflow.RoleTenant
	}
	if c.HasGuarantor() && !c.GuarantorSigned {
		return workflow.RoleGuarantor
	}
	if !c.LandlordSigned {
		return workflow.RoleLandlord
	}
	return ""
}

// AllSigned reports whether every required signature is captured.
func (c *Contract) AllSigned() bool {
	return c.NextSigner() == ""
}

// ResponsibleParty returns who must act next given the current state.
func (c *Contract) ResponsibleParty() workflow.Role {
	switch c.State {
	case workflow.StateDraft, workflow.StateLandlordCompleting, workflow.StateLandlordReviewing,
		workflow.StateObjectionsPending, workflow.StateNegotiationInProgress:
		return workflow.RoleLandlord
	case workflow.StateTenantInvited, workflow.StateTenantReviewing,
		workflow.StateTenantDataPending, workflow.StateTenantAuthentication:
		return workflow.RoleTenant
	case workflow.StateBothReviewing:
		if !c.TenantApproved {
			return workflow.RoleTenant
		}
		if !c.LandlordApproved {
			return workflow.RoleLandlord
		}
		return workflow.RoleSystem
	case workflow.StateReadyToSign:
		if next := c.NextSigner(); next != "" {
			return next
		}
		return workflow.RoleSystem
	case workflow.StateFullySigned:
		return workflow.RoleLandlord
	default:
		return workflow.RoleSystem
	}
}

// LeaseDurationMonths reads contract_terms.lease_duration_months. The payload
// is open-schema, so the value may arrive as a json.Number, a string or a Go
// numeric type.
func (c *Contract) LeaseDurationMonths() (int, error) {
	raw, ok := c.ContractTerms["lease_duration_months"]
	if !ok {
		return 0, fmt.Errorf("contract_terms.lease_duration_months is not set")
	}
	months, err := asInt(raw)
	if err != nil {
		return 0, fmt.Errorf("contract_terms.lease_duration_months: %s", err)
	}
	if months < 1 || months > 60 {
		return 0, fmt.Errorf("lease duration must be between 1 and 60 months, got %d", months)
	}
	return months, nil
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("parsing %q as integer: %s", n.String(), err)
		}
		return int(i), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parsing %q as integer: %s", n, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// Clone returns a deep copy of the contract so callers can mutate a working
// copy and persist it atomically.
func (c *Contract) Clone() *Contract {
	cp := *c
	cp.LandlordData = clonePayload(c.LandlordData)
	cp.TenantData = clonePayload(c.TenantData)
	cp.PropertyData = clonePayload(c.PropertyData)
	cp.EconomicTerms = clonePayload(c.EconomicTerms)
	cp.ContractTerms = clonePayload(c.ContractTerms)
	if c.SpecialClauses != nil {
		cp.SpecialClauses = append([]string(nil), c.SpecialClauses...)
	}
	cp.TenantID = cloneUUIDPtr(c.TenantID)
	cp.GuarantorID = cloneUUIDPtr(c.GuarantorID)
	cp.PublishedBy = cloneUUIDPtr(c.PublishedBy)
	cp.TenantApprovedAt = cloneTimePtr(c.TenantApprovedAt)
	cp.LandlordApprovedAt = cloneTimePtr(c.LandlordApprovedAt)
	cp.TenantSignedAt = cloneTimePtr(c.TenantSignedAt)
	cp.GuarantorSignedAt = cloneTimePtr(c.GuarantorSignedAt)
	cp.LandlordSignedAt = cloneTimePtr(c.LandlordSignedAt)
	cp.FullySignedAt = cloneTimePtr(c.FullySignedAt)
	cp.InvitationAcceptedAt = cloneTimePtr(c.InvitationAcceptedAt)
	cp.TenantIdentityVerifiedAt = cloneTimePtr(c.TenantIdentityVerifiedAt)
	cp.LastObjectionDate = cloneTimePtr(c.LastObjectionDate)
	cp.PublishedAt = cloneTimePtr(c.PublishedAt)
	cp.StartDate = cloneTimePtr(c.StartDate)
	cp.EndDate = cloneTimePtr(c.EndDate)
	return &cp
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	cp := make(Payload, len(p))
	for k, v := range p {
		if m, ok := v.(map[string]interface{}); ok {
			cp[k] = map[string]interface{}(clonePayload(m))
			continue
		}
		cp[k] = v
	}
	return cp
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
