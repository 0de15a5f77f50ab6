// Package impl implements the contract engine: drafting, invitations,
// structured objections, approvals, ordered signing, publication, guarantees
// and the append-only history trace. Every mutation of one contract runs
// under its lock and commits atomically with exactly the history entries it
// produced.
package impl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/pkg/clock"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/pdfrender"
	"github.com/viviendahub/go-viviendahub/pkg/sqlstore"
	"github.com/viviendahub/go-viviendahub/pkg/tokens"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// DefaultInvitationTTLDays is how long an invitation token stays valid.
const DefaultInvitationTTLDays = 7

// DefaultInvitationMaxAttempts caps resends per invitation.
const DefaultInvitationMaxAttempts = 5

// Template names the engine emits through the notifier.
const (
	templateInvitationAccepted  = "invitation_accepted"
	templateObjectionSubmitted  = "objection_submitted"
	templateObjectionResponded  = "objection_responded"
	templateContractApproved    = "contract_approved"
	templateContractSigned      = "contract_signed"
	templateContractFullySigned = "contract_fully_signed"
	templateContractPublished   = "contract_published"
	templateContractCancelled   = "contract_cancelled"
)

// Notifier is the slice of the notification service the engine needs.
type Notifier interface {
	Create(ctx context.Context, params notifications.CreateParams) (*notifications.Notification, error)
}

// Engine implements contracts.Service.
type Engine struct {
	log      zerolog.Logger
	store    sqlstore.ContractStore
	users    userdir.Directory
	notifier Notifier
	renderer pdfrender.Renderer
	clock    clock.Clock
	locks    *lockTable

	authPolicy      contracts.AuthPolicy
	guaranteePolicy contracts.GuaranteePolicy

	invitationTTLDays     int
	invitationMaxAttempts int
}

var _ contracts.Service = (*Engine)(nil)

// Option modifies an Engine default.
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAuthPolicy overrides the signing assurance policy.
func WithAuthPolicy(p contracts.AuthPolicy) Option {
	return func(e *Engine) { e.authPolicy = p }
}

// WithGuaranteePolicy overrides which contract types demand a verified
// guarantee before signing.
func WithGuaranteePolicy(p contracts.GuaranteePolicy) Option {
	return func(e *Engine) { e.guaranteePolicy = p }
}

// WithInvitationTTL overrides the default invitation validity in days.
func WithInvitationTTL(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.invitationTTLDays = days
		}
	}
}

// WithInvitationMaxAttempts overrides the resend cap.
func WithInvitationMaxAttempts(attempts int) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.invitationMaxAttempts = attempts
		}
	}
}

// NewEngine creates the contract engine.
func NewEngine(
	store sqlstore.ContractStore,
	users userdir.Directory,
	notifier Notifier,
	renderer pdfrender.Renderer,
	opts ...Option,
) *Engine {
	e := &Engine{
		log:                   logger.With().Str("component", "contracts").Logger(),
		store:                 store,
		users:                 users,
		notifier:              notifier,
		renderer:              renderer,
		clock:                 clock.System{},
		locks:                 newLockTable(),
		guaranteePolicy:       contracts.DefaultGuaranteePolicy(),
		invitationTTLDays:     DefaultInvitationTTLDays,
		invitationMaxAttempts: DefaultInvitationMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDraft implements contracts.Service.
func (e *Engine) CreateDraft(ctx context.Context, p contracts.CreateDraftParams) (*contracts.Contract, error) {
	now := e.clock.Now()

	if p.LandlordID == uuid.Nil {
		return nil, errors.Validation("landlord is required")
	}
	if p.PropertyID == uuid.Nil {
		return nil, errors.Validation("property is required")
	}
	if !p.Type.Valid() {
		return nil, errors.Validation("unknown contract type %q", p.Type)
	}

	seq, err := e.store.NextContractNumber(ctx, now.Year())
	if err != nil {
		return nil, fmt.Errorf("allocating contract number: %s", err)
	}

	c := &contracts.Contract{
		ID:             uuid.New(),
		ContractNumber: tokens.FormatContractNumber(now.Year(), seq),
		Type:           p.Type,
		State:          workflow.StateDraft,
		LandlordID:     p.LandlordID,
		PropertyID:     p.PropertyID,
		PropertyData:   p.PropertyData,
		EconomicTerms:  p.EconomicTerms,
		ContractTerms:  p.ContractTerms,
		SpecialClauses: p.SpecialClauses,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	entry := e.entry(c, contracts.ActionContractCreated, p.LandlordID.String(), workflow.RoleLandlord,
		fmt.Sprintf("Contract %s created as draft", c.ContractNumber), p.Meta)
	if err := e.store.InsertContract(ctx, c, entry); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}
	return c, nil
}

// Get implements contracts.Service. Only parties can read a contract.
func (e *Engine) Get(ctx context.Context, userID, contractID uuid.UUID) (*contracts.Contract, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(userID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", contractID)
	}
	return c, nil
}

// List implements contracts.Service. It lists the contracts the user is a
// party of.
func (e *Engine) List(
	ctx context.Context, userID uuid.UUID, f contracts.ListFilter,
) ([]*contracts.Contract, error) {
	rows, err := e.store.ListContractsByParty(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %s", err)
	}
	out := make([]*contracts.Contract, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// CompleteLandlordData implements contracts.Service. It fills the landlord
// side of the contract and, when asked and the data is complete, invites the
// tenant in the same operation.
func (e *Engine) CompleteLandlordData(
	ctx context.Context, p contracts.CompleteLandlordDataParams,
) (*contracts.Contract, *contracts.InvitationGrant, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if c.LandlordID != p.LandlordID {
		return nil, nil, errors.PermissionDenied("only the landlord can complete landlord data")
	}
	if c.State != workflow.StateDraft && c.State != workflow.StateLandlordCompleting {
		return nil, nil, errors.InvalidTransition(string(c.State), string(workflow.StateLandlordCompleting))
	}

	now := e.clock.Now()
	c.LandlordData = mergePayload(c.LandlordData, p.LandlordData)
	c.EconomicTerms = mergePayload(c.EconomicTerms, p.EconomicTerms)
	c.ContractTerms = mergePayload(c.ContractTerms, p.ContractTerms)
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionLandlordDataCompleted, p.LandlordID.String(), workflow.RoleLandlord,
			"Landlord data completed", p.Meta),
	}
	if c.State == workflow.StateDraft {
		entries = append(entries, e.transition(c, workflow.StateLandlordCompleting,
			p.LandlordID.String(), workflow.RoleLandlord, p.Meta))
	}

	if p.Invite == nil {
		if err := e.store.UpdateContract(ctx, c, entries...); err != nil {
			return nil, nil, fmt.Errorf("storing contract: %s", err)
		}
		return c, nil, nil
	}

	if !c.LandlordDataComplete() {
		return nil, nil, errors.Validation("landlord data is incomplete: %v", c.MissingDataSummary()["landlord"])
	}
	grant, extra, err := e.buildInvitation(c, p.LandlordID, *p.Invite, p.Meta)
	if err != nil {
		return nil, nil, err
	}
	entries = append(entries, extra...)
	if err := e.store.InsertInvitation(ctx, c, grant.Invitation, entries...); err != nil {
		return nil, nil, fmt.Errorf("storing contract and invitation: %s", err)
	}
	e.collectInvitationEvent(ctx, "issued", grant.Invitation)
	return c, grant, nil
}

// CompleteTenantData implements contracts.Service. Complete data advances the
// review; incomplete data parks the contract in TENANT_DATA_PENDING.
func (e *Engine) CompleteTenantData(
	ctx context.Context, p contracts.CompleteTenantDataParams,
) (*contracts.Contract, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(p.TenantID) != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the tenant can complete tenant data")
	}
	if c.State != workflow.StateTenantReviewing && c.State != workflow.StateTenantDataPending {
		return nil, errors.Validation("tenant data cannot be completed in state %s", c.State)
	}

	now := e.clock.Now()
	c.TenantData = mergePayload(c.TenantData, p.TenantData)
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionTenantDataCompleted, p.TenantID.String(), workflow.RoleTenant,
			"Tenant data completed", p.Meta),
	}

	switch {
	case c.State == workflow.StateTenantReviewing && c.TenantDataComplete():
		entries = append(entries, e.transition(c, workflow.StateLandlordReviewing,
			p.TenantID.String(), workflow.RoleTenant, p.Meta))
	case c.State == workflow.StateTenantReviewing:
		entries = append(entries, e.transition(c, workflow.StateTenantDataPending,
			p.TenantID.String(), workflow.RoleTenant, p.Meta))
	case c.State == workflow.StateTenantDataPending && c.TenantDataComplete():
		entries = append(entries, e.transition(c, workflow.StateTenantAuthentication,
			p.TenantID.String(), workflow.RoleTenant, p.Meta))
	}

	if err := e.store.UpdateContract(ctx, c, entries...); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}
	return c, nil
}

// VerifyIdentity implements contracts.Service. Methods must satisfy the auth
// level the contract type demands; success moves the contract back into the
// landlord's review.
func (e *Engine) VerifyIdentity(ctx context.Context, p contracts.VerifyIdentityParams) (*contracts.Contract, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(p.TenantID) != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the tenant can verify identity")
	}
	if c.State != workflow.StateTenantAuthentication {
		return nil, errors.Validation("identity verification is not expected in state %s", c.State)
	}

	required := e.authPolicy.RequiredLevel(c)
	if !contracts.AuthSatisfies(p.Methods, required) {
		return nil, errors.Validation("authentication methods do not reach the required %s level", required)
	}

	now := e.clock.Now()
	c.TenantIdentityVerifiedAt = &now
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionIdentityVerified, p.TenantID.String(), workflow.RoleTenant,
			fmt.Sprintf("Tenant identity verified at %s level", required), p.Meta),
		e.transition(c, workflow.StateLandlordReviewing, p.TenantID.String(), workflow.RoleTenant, p.Meta),
	}
	if err := e.store.UpdateContract(ctx, c, entries...); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}
	return c, nil
}

// Cancel implements contracts.Service.
func (e *Engine) Cancel(ctx context.Context, p contracts.CancelParams) (*contracts.Contract, error) {
	if p.Reason == "" {
		return nil, errors.Validation("a cancellation reason is required")
	}

	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	role := c.RoleOf(p.UserID)
	if role == "" {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", p.ContractID)
	}
	if err := workflow.Check(c.State, workflow.StateCancelled, role); err != nil {
		return nil, transitionError(err)
	}

	now := e.clock.Now()
	old := c.State
	c.State = workflow.StateCancelled
	c.UpdatedAt = now

	entry := e.entry(c, contracts.ActionContractCancelled, p.UserID.String(), role,
		fmt.Sprintf("Contract cancelled: %s", p.Reason), p.Meta)
	entry.OldState, entry.NewState = old, workflow.StateCancelled
	entry.Seal()
	if err := e.store.UpdateContract(ctx, c, entry); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}

	e.notifyParties(ctx, c, p.UserID, templateContractCancelled, map[string]interface{}{
		"contract_number": c.ContractNumber,
		"reason":          p.Reason,
	})
	return c, nil
}

// Terminate implements contracts.Service.
func (e *Engine) Terminate(ctx context.Context, p contracts.TerminateParams) (*contracts.Contract, error) {
	if p.Reason == "" {
		return nil, errors.Validation("a termination reason is required")
	}

	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	role := c.RoleOf(p.UserID)
	if role == "" {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", p.ContractID)
	}
	if err := workflow.Check(c.State, workflow.StateTerminated, role); err != nil {
		return nil, transitionError(err)
	}

	now := e.clock.Now()
	old := c.State
	c.State = workflow.StateTerminated
	c.UpdatedAt = now

	entry := e.entry(c, contracts.ActionContractTerminated, p.UserID.String(), role,
		fmt.Sprintf("Contract terminated: %s", p.Reason), p.Meta)
	entry.OldState, entry.NewState = old, workflow.StateTerminated
	entry.Seal()
	if err := e.store.UpdateContract(ctx, c, entry); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}
	return c, nil
}

// LandlordStats implements contracts.Service.
func (e *Engine) LandlordStats(ctx context.Context, landlordID uuid.UUID) (*contracts.Stats, error) {
	return e.store.ContractStats(ctx, landlordID, e.clock.Now())
}

// TenantStats implements contracts.Service.
func (e *Engine) TenantStats(ctx context.Context, tenantID uuid.UUID) (*contracts.Stats, error) {
	return e.store.ContractStats(ctx, tenantID, e.clock.Now())
}

// ActivateDue implements contracts.Service. Published contracts whose start
// date arrived flip to ACTIVE.
func (e *Engine) ActivateDue(ctx context.Context) (int64, error) {
	now := e.clock.Now()
	due, err := e.store.ListContractsDueForActivation(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing contracts due for activation: %s", err)
	}

	var activated int64
	for i := range due {
		c := &due[i]
		if err := e.systemTransition(ctx, c.ID, workflow.StateActive,
			contracts.ActionContractActivated, "Contract reached its start date"); err != nil {
			e.log.Error().Err(err).Str("contractId", c.ID.String()).Msg("activating contract")
			continue
		}
		activated++
	}
	return activated, nil
}

// ExpireDue implements contracts.Service. Active contracts past their end
// date flip to EXPIRED.
func (e *Engine) ExpireDue(ctx context.Context) (int64, error) {
	now := e.clock.Now()
	due, err := e.store.ListContractsDueForExpiry(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing contracts due for expiry: %s", err)
	}

	var expired int64
	for i := range due {
		c := &due[i]
		if err := e.systemTransition(ctx, c.ID, workflow.StateExpired,
			contracts.ActionContractExpired, "Contract reached its end date"); err != nil {
			e.log.Error().Err(err).Str("contractId", c.ID.String()).Msg("expiring contract")
			continue
		}
		expired++
	}
	return expired, nil
}

// systemTransition re-loads the contract under its lock and performs one
// automatic edge.
func (e *Engine) systemTransition(
	ctx context.Context,
	contractID uuid.UUID,
	to workflow.State,
	action contracts.ActionType,
	description string,
) error {
	release := e.locks.acquire(contractID)
	defer release()

	c, err := e.load(ctx, contractID)
	if err != nil {
		return err
	}
	if err := workflow.Check(c.State, to, workflow.RoleSystem); err != nil {
		return transitionError(err)
	}

	now := e.clock.Now()
	old := c.State
	c.State = to
	c.UpdatedAt = now

	entry := e.entry(c, action, contracts.SystemActor, workflow.RoleSystem, description, contracts.RequestMeta{})
	entry.OldState, entry.NewState = old, to
	entry.Seal()
	if err := e.store.UpdateContract(ctx, c, entry); err != nil {
		return fmt.Errorf("storing contract: %s", err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, contractID uuid.UUID) (*contracts.Contract, error) {
	c, ok, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("loading contract: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("contract %s not found", contractID)
	}
	return c, nil
}

// entry builds a sealed history entry stamped with the engine clock and the
// request metadata.
func (e *Engine) entry(
	c *contracts.Contract,
	action contracts.ActionType,
	performedBy string,
	role workflow.Role,
	description string,
	meta contracts.RequestMeta,
) contracts.HistoryEntry {
	entry := contracts.NewHistoryEntry(c.ID, action, performedBy, role, e.clock.Now(), description)
	entry.Metadata = contracts.EntryMetadata{IP: meta.IP, UserAgent: meta.UserAgent, SessionID: meta.SessionID}
	return entry
}

// transition validates and applies the edge to the in-memory contract and
// returns the STATE_CHANGED entry recording it. The caller persists both.
func (e *Engine) transition(
	c *contracts.Contract,
	to workflow.State,
	performedBy string,
	role workflow.Role,
	meta contracts.RequestMeta,
) contracts.HistoryEntry {
	old := c.State
	c.State = to
	entry := e.entry(c, contracts.ActionStateChanged, performedBy, role,
		fmt.Sprintf("State changed from %s to %s", old, to), meta)
	entry.OldState, entry.NewState = old, to
	entry.Seal()
	return entry
}

// checkedTransition is transition preceded by a workflow table check.
func (e *Engine) checkedTransition(
	c *contracts.Contract,
	to workflow.State,
	performedBy string,
	role workflow.Role,
	meta contracts.RequestMeta,
) (contracts.HistoryEntry, error) {
	if err := workflow.Check(c.State, to, role); err != nil {
		return contracts.HistoryEntry{}, transitionError(err)
	}
	return e.transition(c, to, performedBy, role, meta), nil
}

// notifyParties sends one templated notification to every party except the
// actor. Notification trouble never fails the contract operation.
func (e *Engine) notifyParties(
	ctx context.Context, c *contracts.Contract, actor uuid.UUID, template string, data map[string]interface{},
) {
	recipients := []uuid.UUID{c.LandlordID}
	if c.TenantID != nil {
		recipients = append(recipients, *c.TenantID)
	}
	if c.GuarantorID != nil {
		recipients = append(recipients, *c.GuarantorID)
	}
	for _, id := range recipients {
		if id == actor {
			continue
		}
		e.notify(ctx, c, id, template, data)
	}
}

func (e *Engine) notify(
	ctx context.Context, c *contracts.Contract, recipientID uuid.UUID, template string, data map[string]interface{},
) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Create(ctx, notifications.CreateParams{
		RecipientID: recipientID,
		Template:    template,
		Data:        data,
		Content:     &notifications.ContentRef{Kind: notifications.ContentContract, ID: c.ID},
	}); err != nil {
		e.log.Warn().Err(err).Str("template", template).Msg("sending notification")
	}
}

func (e *Engine) displayName(ctx context.Context, userID uuid.UUID) string {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return "A party"
	}
	return user.Name
}

// transitionError maps workflow table violations onto the domain error model.
func transitionError(err error) error {
	switch v := err.(type) {
	case *workflow.TransitionError:
		return errors.InvalidTransition(string(v.From), string(v.To))
	case *workflow.RoleError:
		return errors.PermissionDenied("role %s cannot perform transition %s to %s", v.Role, v.From, v.To)
	default:
		return err
	}
}

func mergePayload(dst, src contracts.Payload) contracts.Payload {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = contracts.Payload{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
