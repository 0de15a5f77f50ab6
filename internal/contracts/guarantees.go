package contracts

import (
	"time"

	"github.com/google/uuid"
)

// GuaranteeKind classifies how a contract is backed.
type GuaranteeKind string

// All guarantee kinds.
const (
	GuaranteePersonalCosigner GuaranteeKind = "personal_cosigner"
	GuaranteeBank             GuaranteeKind = "bank_guarantee"
	GuaranteeInsurance        GuaranteeKind = "insurance_policy"
	GuaranteeDeposit          GuaranteeKind = "deposit"
)

// Valid reports whether k is a known guarantee kind.
func (k GuaranteeKind) Valid() bool {
	switch k {
	case GuaranteePersonalCosigner, GuaranteeBank, GuaranteeInsurance, GuaranteeDeposit:
		return true
	}
	return false
}

// GuaranteeStatus is the lifecycle status of a guarantee.
type GuaranteeStatus string

// All guarantee statuses.
const (
	GuaranteeStatusPending   GuaranteeStatus = "pending"
	GuaranteeStatusActive    GuaranteeStatus = "active"
	GuaranteeStatusExpired   GuaranteeStatus = "expired"
	GuaranteeStatusCancelled GuaranteeStatus = "cancelled"
)

// Guarantee backs a contract financially. Guarantees never gate workflow
// transitions by themselves, but contract-type policy may demand a verified
// one before signing starts.
type Guarantee struct {
	ID            uuid.UUID       `json:"id"`
	ContractID    uuid.UUID       `json:"contract_id"`
	GuarantorID   *uuid.UUID      `json:"guarantor_id,omitempty"`
	Kind          GuaranteeKind   `json:"kind"`
	AmountCents   *int64          `json:"amount_cents,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	CoSigner      Payload         `json:"co_signer,omitempty"`
	PolicyNumber  string          `json:"policy_number,omitempty"`
	Issuer        string          `json:"issuer,omitempty"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	Status        GuaranteeStatus `json:"status"`
	Verified      bool            `json:"verified"`
	VerifiedBy    *uuid.UUID      `json:"verified_by,omitempty"`
	VerifiedAt    *time.Time      `json:"verified_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GuaranteePolicy decides which contract types must carry a verified
// guarantee before READY_TO_SIGN.
type GuaranteePolicy struct {
	RequiredTypes map[Type]bool
}

// DefaultGuaranteePolicy requires guarantees for commercial and rural
// contracts.
func DefaultGuaranteePolicy() GuaranteePolicy {
	return GuaranteePolicy{RequiredTypes: map[Type]bool{
		TypeRentalCommercial: true,
		TypeRentalRural:      true,
	}}
}

// Requires reports whether the contract type needs a verified guarantee.
func (p GuaranteePolicy) Requires(t Type) bool {
	return p.RequiredTypes[t]
}
