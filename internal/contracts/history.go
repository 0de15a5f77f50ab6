package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

// ActionType classifies a workflow history entry.
type ActionType string

// All history action types.
const (
	ActionContractCreated       ActionType = "CONTRACT_CREATED"
	ActionLandlordDataCompleted ActionType = "LANDLORD_DATA_COMPLETED"
	ActionTenantDataCompleted   ActionType = "TENANT_DATA_COMPLETED"
	ActionInvitationSent        ActionType = "INVITATION_SENT"
	ActionInvitationResent      ActionType = "INVITATION_RESENT"
	ActionInvitationAccepted    ActionType = "INVITATION_ACCEPTED"
	ActionObjectionSubmitted    ActionType = "OBJECTION_SUBMITTED"
	ActionObjectionResponded    ActionType = "OBJECTION_RESPONDED"
	ActionStateChanged          ActionType = "STATE_CHANGED"
	ActionPartyApproved         ActionType = "PARTY_APPROVED"
	ActionIdentityVerified      ActionType = "IDENTITY_VERIFIED"
	ActionContractSigned        ActionType = "CONTRACT_SIGNED"
	ActionContractPublished     ActionType = "CONTRACT_PUBLISHED"
	ActionContractActivated     ActionType = "CONTRACT_ACTIVATED"
	ActionContractExpired       ActionType = "CONTRACT_EXPIRED"
	ActionContractTerminated    ActionType = "CONTRACT_TERMINATED"
	ActionContractCancelled     ActionType = "CONTRACT_CANCELLED"
	ActionGuaranteeAdded        ActionType = "GUARANTEE_ADDED"
	ActionGuaranteeVerified     ActionType = "GUARANTEE_VERIFIED"
	ActionPDFGenerated          ActionType = "PDF_GENERATED"
)

// SystemActor is the performed_by value for automatic transitions.
const SystemActor = "system"

// EntryMetadata carries request context attached to a history entry.
type EntryMetadata struct {
	IP                 string     `json:"ip,omitempty"`
	UserAgent          string     `json:"user_agent,omitempty"`
	SessionID          string     `json:"session_id,omitempty"`
	RelatedObjectionID *uuid.UUID `json:"related_objection_id,omitempty"`
	RelatedGuaranteeID *uuid.UUID `json:"related_guarantee_id,omitempty"`
}

// HistoryEntry is one append-only record of the contract trace. Entries are
// never updated or deleted.
type HistoryEntry struct {
	ID            uuid.UUID      `json:"id"`
	ContractID    uuid.UUID      `json:"contract_id"`
	ActionType    ActionType     `json:"action_type"`
	Description   string         `json:"description"`
	PerformedBy   string         `json:"performed_by"`
	UserRole      workflow.Role  `json:"user_role"`
	OldState      workflow.State `json:"old_state,omitempty"`
	NewState      workflow.State `json:"new_state,omitempty"`
	ChangesMade   Payload        `json:"changes_made,omitempty"`
	Metadata      EntryMetadata  `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	IntegrityHash string         `json:"integrity_hash"`
}

// ComputeIntegrityHash hashes the canonical concatenation of the tamper
// relevant entry fields. The timestamp is rendered as RFC3339Nano in UTC so
// recomputation is stable across processes.
func ComputeIntegrityHash(
	contractID uuid.UUID, action ActionType, performedBy string, ts time.Time, description string,
) string {
	canonical := fmt.Sprintf(
		"%s:%s:%s:%s:%s", contractID, action, performedBy, ts.UTC().Format(time.RFC3339Nano), description)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Seal stamps the entry's integrity hash from its current field values.
func (e *HistoryEntry) Seal() {
	e.IntegrityHash = ComputeIntegrityHash(e.ContractID, e.ActionType, e.PerformedBy, e.Timestamp, e.Description)
}

// VerifyIntegrity recomputes the hash and compares it with the stored one.
func (e *HistoryEntry) VerifyIntegrity() bool {
	return e.IntegrityHash == ComputeIntegrityHash(e.ContractID, e.ActionType, e.PerformedBy, e.Timestamp, e.Description)
}

// NewHistoryEntry builds a sealed entry for the given action.
func NewHistoryEntry(
	contractID uuid.UUID,
	action ActionType,
	performedBy string,
	role workflow.Role,
	ts time.Time,
	description string,
) HistoryEntry {
	e := HistoryEntry{
		ID:          uuid.New(),
		ContractID:  contractID,
		ActionType:  action,
		Description: description,
		PerformedBy: performedBy,
		UserRole:    role,
		Timestamp:   ts.UTC(),
	}
	e.Seal()
	return e
}
