package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

// RequestMeta carries transport context recorded in history entries.
type RequestMeta struct {
	IP        string
	UserAgent string
	SessionID string
}

// CreateDraftParams creates a contract in DRAFT.
type CreateDraftParams struct {
	LandlordID     uuid.UUID
	PropertyID     uuid.UUID
	Type           Type
	PropertyData   Payload
	EconomicTerms  Payload
	ContractTerms  Payload
	SpecialClauses []string
	Meta           RequestMeta
}

// InviteContact is the tenant contact an invitation goes to.
type InviteContact struct {
	Email           string
	Phone           string
	Name            string
	Method          InvitationMethod
	PersonalMessage string
	TTLDays         int
}

// CompleteLandlordDataParams fills the landlord side of the contract and may
// immediately invite the tenant.
type CompleteLandlordDataParams struct {
	ContractID    uuid.UUID
	LandlordID    uuid.UUID
	LandlordData  Payload
	EconomicTerms Payload
	ContractTerms Payload
	Invite        *InviteContact
	Meta          RequestMeta
}

// CreateInvitationParams issues a fresh invitation token.
type CreateInvitationParams struct {
	ContractID uuid.UUID
	LandlordID uuid.UUID
	Contact    InviteContact
	Meta       RequestMeta
}

// AcceptInvitationParams consumes a plaintext token and links the tenant.
type AcceptInvitationParams struct {
	Token       string
	TenantID    uuid.UUID
	TenantEmail string
	Meta        RequestMeta
}

// ResendInvitationParams rotates the token of the latest live invitation.
type ResendInvitationParams struct {
	ContractID uuid.UUID
	LandlordID uuid.UUID
	Meta       RequestMeta
}

// CompleteTenantDataParams fills the tenant side of the contract.
type CompleteTenantDataParams struct {
	ContractID uuid.UUID
	TenantID   uuid.UUID
	TenantData Payload
	Meta       RequestMeta
}

// VerifyIdentityParams records a tenant identity verification attempt.
type VerifyIdentityParams struct {
	ContractID uuid.UUID
	TenantID   uuid.UUID
	Methods    []string
	Meta       RequestMeta
}

// SubmitObjectionParams raises an objection against a contract field.
type SubmitObjectionParams struct {
	ContractID     uuid.UUID
	UserID         uuid.UUID
	FieldReference string
	ProposedValue  interface{}
	Justification  string
	Priority       ObjectionPriority
	Meta           RequestMeta
}

// RespondObjectionParams answers a pending objection.
type RespondObjectionParams struct {
	ObjectionID     uuid.UUID
	UserID          uuid.UUID
	Response        ObjectionResponse
	Note            string
	CounterProposal interface{}
	Meta            RequestMeta
}

// WithdrawObjectionParams withdraws the caller's own pending objection.
type WithdrawObjectionParams struct {
	ObjectionID uuid.UUID
	UserID      uuid.UUID
	Meta        RequestMeta
}

// ApproveParams records a party approval in BOTH_REVIEWING.
type ApproveParams struct {
	ContractID uuid.UUID
	UserID     uuid.UUID
	Meta       RequestMeta
}

// SignParams captures one ordered signature.
type SignParams struct {
	ContractID        uuid.UUID
	UserID            uuid.UUID
	SignatureData     Payload
	AuthMethods       []string
	BiometricPayload  []byte
	DeviceFingerprint string
	Meta              RequestMeta
}

// PublishParams publishes a fully signed contract.
type PublishParams struct {
	ContractID uuid.UUID
	LandlordID uuid.UUID
	StartDate  *time.Time
	Meta       RequestMeta
}

// CancelParams cancels a contract from any non-terminal state that allows it.
type CancelParams struct {
	ContractID uuid.UUID
	UserID     uuid.UUID
	Reason     string
	Meta       RequestMeta
}

// TerminateParams terminates a published, active or expired contract.
type TerminateParams struct {
	ContractID uuid.UUID
	UserID     uuid.UUID
	Reason     string
	Meta       RequestMeta
}

// AddGuaranteeParams attaches a guarantee to a contract.
type AddGuaranteeParams struct {
	ContractID    uuid.UUID
	UserID        uuid.UUID
	GuarantorID   *uuid.UUID
	Kind          GuaranteeKind
	AmountCents   *int64
	Currency      string
	CoSigner      Payload
	PolicyNumber  string
	Issuer        string
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	Meta          RequestMeta
}

// VerifyGuaranteeParams marks a guarantee as verified.
type VerifyGuaranteeParams struct {
	GuaranteeID uuid.UUID
	VerifierID  uuid.UUID
	Meta        RequestMeta
}

// RenderPDFParams renders the contract document.
type RenderPDFParams struct {
	ContractID        uuid.UUID
	UserID            uuid.UUID
	IncludeSignatures bool
	IncludeBiometric  bool
	Persist           bool
}

// ListFilter narrows contract listings.
type ListFilter struct {
	State  workflow.State
	Type   Type
	Limit  int
	Offset int
}

// Stats summarize a party's contracts.
type Stats struct {
	Total             int                    `json:"total"`
	ByState           map[workflow.State]int `json:"by_state"`
	Published         int                    `json:"published"`
	PendingObjections int                    `json:"pending_objections"`
	OverdueObjections int                    `json:"overdue_objections"`
	AverageCompletion int                    `json:"average_completion"`
}

// HistoryVerification is the result of recomputing every integrity hash of a
// contract trace.
type HistoryVerification struct {
	Entries    int         `json:"entries"`
	Valid      bool        `json:"valid"`
	BadEntries []uuid.UUID `json:"bad_entries,omitempty"`
}

// Service is the contract engine: drafting, invitations, objections,
// approvals, ordered signing, publication, guarantees and the history trace.
type Service interface {
	CreateDraft(ctx context.Context, p CreateDraftParams) (*Contract, error)
	Get(ctx context.Context, userID, contractID uuid.UUID) (*Contract, error)
	List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]*Contract, error)
	CompleteLandlordData(ctx context.Context, p CompleteLandlordDataParams) (*Contract, *InvitationGrant, error)
	CompleteTenantData(ctx context.Context, p CompleteTenantDataParams) (*Contract, error)
	VerifyIdentity(ctx context.Context, p VerifyIdentityParams) (*Contract, error)

	CreateInvitation(ctx context.Context, p CreateInvitationParams) (*InvitationGrant, error)
	VerifyInvitation(ctx context.Context, token string) (*InvitationPublicView, error)
	AcceptInvitation(ctx context.Context, p AcceptInvitationParams) (*Contract, error)
	ResendInvitation(ctx context.Context, p ResendInvitationParams) (*InvitationGrant, error)
	PendingInvitations(ctx context.Context, email string) ([]*Invitation, error)
	CleanupExpiredInvitations(ctx context.Context) (int64, error)

	SubmitObjection(ctx context.Context, p SubmitObjectionParams) (*Objection, error)
	RespondObjection(ctx context.Context, p RespondObjectionParams) (*Objection, error)
	WithdrawObjection(ctx context.Context, p WithdrawObjectionParams) (*Objection, error)
	ListObjections(ctx context.Context, userID, contractID uuid.UUID) ([]*Objection, error)

	Approve(ctx context.Context, p ApproveParams) (*Contract, error)
	Sign(ctx context.Context, p SignParams) (*Contract, error)
	Publish(ctx context.Context, p PublishParams) (*Contract, error)
	Cancel(ctx context.Context, p CancelParams) (*Contract, error)
	Terminate(ctx context.Context, p TerminateParams) (*Contract, error)

	AddGuarantee(ctx context.Context, p AddGuaranteeParams) (*Guarantee, error)
	VerifyGuarantee(ctx context.Context, p VerifyGuaranteeParams) (*Guarantee, error)
	ListGuarantees(ctx context.Context, userID, contractID uuid.UUID) ([]*Guarantee, error)

	History(ctx context.Context, userID, contractID uuid.UUID) ([]HistoryEntry, error)
	VerifyHistory(ctx context.Context, userID, contractID uuid.UUID) (*HistoryVerification, error)
	ListSignatures(ctx context.Context, userID, contractID uuid.UUID) ([]*Signature, error)

	LandlordStats(ctx context.Context, landlordID uuid.UUID) (*Stats, error)
	TenantStats(ctx context.Context, tenantID uuid.UUID) (*Stats, error)

	RenderPDF(ctx context.Context, p RenderPDFParams) ([]byte, error)

	ActivateDue(ctx context.Context) (int64, error)
	ExpireDue(ctx context.Context) (int64, error)
}
