package sqlstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
)

// ContractStore defines the methods for persisting contracts and every entity
// hanging off them. Composite methods are transactional: the contract row, its
// side entities and the appended history entries commit or roll back together.
// Lookups report absence through the boolean instead of an error.
type ContractStore interface {
	InsertContract(context.Context, *contracts.Contract, contracts.HistoryEntry) error
	GetContract(context.Context, uuid.UUID) (*contracts.Contract, bool, error)
	GetContractByNumber(context.Context, string) (*contracts.Contract, bool, error)
	ListContracts(context.Context, contracts.ListFilter) ([]contracts.Contract, error)
	ListContractsByParty(context.Context, uuid.UUID, contracts.ListFilter) ([]contracts.Contract, error)
	UpdateContract(context.Context, *contracts.Contract, ...contracts.HistoryEntry) error
	NextContractNumber(context.Context, int) (int64, error)

	GetHistory(context.Context, uuid.UUID) ([]contracts.HistoryEntry, error)

	InsertInvitation(context.Context, *contracts.Contract, *contracts.Invitation, ...contracts.HistoryEntry) error
	GetInvitation(context.Context, uuid.UUID) (*contracts.Invitation, bool, error)
	GetInvitationByTokenHash(context.Context, string) (*contracts.Invitation, bool, error)
	ListInvitations(context.Context, uuid.UUID) ([]contracts.Invitation, error)
	ListPendingInvitationsByEmail(context.Context, string) ([]contracts.Invitation, error)
	UpdateInvitation(context.Context, *contracts.Invitation) error
	UpdateContractWithInvitation(
		context.Context, *contracts.Contract, *contracts.Invitation, ...contracts.HistoryEntry) error
	ExpireInvitations(context.Context, time.Time) (int64, error)

	InsertObjection(context.Context, *contracts.Contract, *contracts.Objection, ...contracts.HistoryEntry) error
	GetObjection(context.Context, uuid.UUID) (*contracts.Objection, bool, error)
	ListObjections(context.Context, uuid.UUID) ([]contracts.Objection, error)
	ListOverdueObjections(context.Context, time.Time) ([]contracts.Objection, error)
	UpdateContractWithObjection(
		context.Context, *contracts.Contract, *contracts.Objection, ...contracts.HistoryEntry) error

	InsertSignature(context.Context, *contracts.Contract, *contracts.Signature, ...contracts.HistoryEntry) error
	ListSignatures(context.Context, uuid.UUID) ([]contracts.Signature, error)

	InsertGuarantee(context.Context, *contracts.Contract, *contracts.Guarantee, ...contracts.HistoryEntry) error
	GetGuarantee(context.Context, uuid.UUID) (*contracts.Guarantee, bool, error)
	ListGuarantees(context.Context, uuid.UUID) ([]contracts.Guarantee, error)
	UpdateContractWithGuarantee(
		context.Context, *contracts.Contract, *contracts.Guarantee, ...contracts.HistoryEntry) error

	ListContractsDueForActivation(context.Context, time.Time) ([]contracts.Contract, error)
	ListContractsDueForExpiry(context.Context, time.Time) ([]contracts.Contract, error)
	ContractStats(context.Context, uuid.UUID, time.Time) (*contracts.Stats, error)
}
