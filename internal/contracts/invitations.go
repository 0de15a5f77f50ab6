package contracts

import (
	"time"

	"github.com/google/uuid"
)

// InvitationMethod is the out-of-band delivery method of an invitation.
type InvitationMethod string

// All invitation methods.
const (
	InvitationByEmail    InvitationMethod = "email"
	InvitationBySMS      InvitationMethod = "sms"
	InvitationByWhatsApp InvitationMethod = "whatsapp"
)

// Valid reports whether m is a known invitation method.
func (m InvitationMethod) Valid() bool {
	switch m {
	case InvitationByEmail, InvitationBySMS, InvitationByWhatsApp:
		return true
	}
	return false
}

// InvitationStatus is the delivery and acceptance status of an invitation.
// It moves forward only: pending → sent → opened → accepted, with expired and
// failed as terminal side exits.
type InvitationStatus string

// All invitation statuses.
const (
	InvitationPending   InvitationStatus = "pending"
	InvitationSent      InvitationStatus = "sent"
	InvitationDelivered InvitationStatus = "delivered"
	InvitationOpened    InvitationStatus = "opened"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationFailed    InvitationStatus = "failed"
)

// Invitation is a single-use, token-protected offer to join a contract as
// tenant. Only the token hash is ever persisted.
type Invitation struct {
	ID              uuid.UUID        `json:"id"`
	ContractID      uuid.UUID        `json:"contract_id"`
	TokenHash       string           `json:"-"`
	TenantEmail     string           `json:"tenant_email"`
	TenantPhone     string           `json:"tenant_phone,omitempty"`
	TenantName      string           `json:"tenant_name"`
	Method          InvitationMethod `json:"method"`
	PersonalMessage string           `json:"personal_message,omitempty"`
	Status          InvitationStatus `json:"status"`
	Attempts        int              `json:"attempts"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedBy       uuid.UUID        `json:"created_by"`
	AcceptedBy      *uuid.UUID       `json:"accepted_by,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	OpenedAt        *time.Time       `json:"opened_at,omitempty"`
	AcceptedAt      *time.Time       `json:"accepted_at,omitempty"`
	LastResentAt    *time.Time       `json:"last_resent_at,omitempty"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

// Expired reports whether the invitation passed its expiry at the given instant.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Acceptable reports whether the invitation can still be accepted at the given
// instant.
func (i *Invitation) Acceptable(now time.Time) bool {
	if i.Status != InvitationSent && i.Status != InvitationOpened {
		return false
	}
	return now.Before(i.ExpiresAt)
}

// InvitationPublicView is the minimal information shown to a token holder
// before acceptance.
type InvitationPublicView struct {
	ContractType    Type       `json:"contract_type"`
	PropertyAddress string     `json:"property_address"`
	MonthlyRent     string     `json:"monthly_rent,omitempty"`
	LandlordName    string     `json:"landlord_name"`
	TenantName      string     `json:"tenant_name"`
	PersonalMessage string     `json:"personal_message,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
}

// InvitationGrant pairs a created invitation with its plaintext token. The
// plaintext exists only in this value and in the outbound channel payload; it
// is returned to the caller exactly once and never stored or logged.
type InvitationGrant struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
}
