package impl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
	"github.com/viviendahub/go-viviendahub/pkg/tokens"

	"github.com/google/uuid"
)

// CreateInvitation implements contracts.Service. It issues a single-use token
// for the tenant contact and moves the contract into TENANT_INVITED. The
// plaintext token is returned exactly once; delivery to the invitee happens
// over the configured out-of-band channel.
func (e *Engine) CreateInvitation(
	ctx context.Context, p contracts.CreateInvitationParams,
) (*contracts.InvitationGrant, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.LandlordID != p.LandlordID {
		return nil, errors.PermissionDenied("only the landlord can invite a tenant")
	}
	if !c.LandlordDataComplete() {
		return nil, errors.Validation("landlord data is incomplete: %v", c.MissingDataSummary()["landlord"])
	}

	grant, entries, err := e.buildInvitation(c, p.LandlordID, p.Contact, p.Meta)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertInvitation(ctx, c, grant.Invitation, entries...); err != nil {
		return nil, fmt.Errorf("storing invitation: %s", err)
	}
	e.collectInvitationEvent(ctx, "issued", grant.Invitation)
	return grant, nil
}

// buildInvitation validates the contact, walks the contract into
// TENANT_INVITED and returns the grant plus the history entries produced. The
// caller persists everything in one transaction.
func (e *Engine) buildInvitation(
	c *contracts.Contract,
	landlordID uuid.UUID,
	contact contracts.InviteContact,
	meta contracts.RequestMeta,
) (*contracts.InvitationGrant, []contracts.HistoryEntry, error) {
	if contact.Email == "" {
		return nil, nil, errors.Validation("invitee email is required")
	}
	method := contact.Method
	if method == "" {
		method = contracts.InvitationByEmail
	}
	if !method.Valid() {
		return nil, nil, errors.Validation("unknown invitation method %q", contact.Method)
	}
	ttlDays := contact.TTLDays
	if ttlDays <= 0 {
		ttlDays = e.invitationTTLDays
	}

	var entries []contracts.HistoryEntry
	for c.State != workflow.StateTenantInvited {
		var to workflow.State
		switch c.State {
		case workflow.StateDraft:
			to = workflow.StateLandlordCompleting
		case workflow.StateLandlordCompleting:
			to = workflow.StateTenantInvited
		default:
			return nil, nil, errors.Validation("invitations cannot be issued in state %s", c.State)
		}
		entry, err := e.checkedTransition(c, to, landlordID.String(), workflow.RoleLandlord, meta)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
	}

	plaintext, hash, err := tokens.NewInvitationToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generating invitation token: %s", err)
	}

	now := e.clock.Now()
	inv := &contracts.Invitation{
		ID:              uuid.New(),
		ContractID:      c.ID,
		TokenHash:       hash,
		TenantEmail:     strings.ToLower(contact.Email),
		TenantPhone:     contact.Phone,
		TenantName:      contact.Name,
		Method:          method,
		PersonalMessage: contact.PersonalMessage,
		Status:          contracts.InvitationSent,
		CreatedBy:       landlordID,
		CreatedAt:       now,
		SentAt:          &now,
		ExpiresAt:       now.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}
	c.UpdatedAt = now

	entries = append(entries, e.entry(c, contracts.ActionInvitationSent, landlordID.String(),
		workflow.RoleLandlord, fmt.Sprintf("Invitation sent to %s by %s", inv.TenantEmail, method), meta))
	return &contracts.InvitationGrant{Invitation: inv, Token: plaintext}, entries, nil
}

// VerifyInvitation implements contracts.Service. Holding the token is the
// only credential; the view exposes just enough for the invitee to recognize
// the offer. First verification flips the invitation to opened.
func (e *Engine) VerifyInvitation(ctx context.Context, token string) (*contracts.InvitationPublicView, error) {
	inv, c, err := e.invitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if inv.Status == contracts.InvitationAccepted {
		return nil, errors.InvitationInvalid("invitation was already accepted")
	}
	if inv.Expired(now) {
		e.expireInvitation(ctx, inv)
		return nil, errors.InvitationInvalid("invitation expired on %s", inv.ExpiresAt.Format("2006-01-02"))
	}
	if inv.Status != contracts.InvitationSent && inv.Status != contracts.InvitationOpened {
		return nil, errors.InvitationInvalid("invitation is no longer valid")
	}
	if inv.Status == contracts.InvitationSent {
		inv.Status = contracts.InvitationOpened
		inv.OpenedAt = &now
		if err := e.store.UpdateInvitation(ctx, inv); err != nil {
			return nil, fmt.Errorf("storing invitation: %s", err)
		}
	}

	landlordName, _ := c.LandlordData["full_name"].(string)
	if landlordName == "" {
		landlordName = e.displayName(ctx, c.LandlordID)
	}
	address, _ := c.PropertyData["address"].(string)
	var rent string
	if v, ok := c.EconomicTerms["monthly_rent"]; ok && v != nil {
		rent = fmt.Sprintf("%v", v)
	}
	return &contracts.InvitationPublicView{
		ContractType:    c.Type,
		PropertyAddress: address,
		MonthlyRent:     rent,
		LandlordName:    landlordName,
		TenantName:      inv.TenantName,
		PersonalMessage: inv.PersonalMessage,
		ExpiresAt:       inv.ExpiresAt,
		OpenedAt:        inv.OpenedAt,
	}, nil
}

// AcceptInvitation implements contracts.Service. The accepting account's email
// must match the invited one; acceptance links the tenant and starts the
// review.
func (e *Engine) AcceptInvitation(ctx context.Context, p contracts.AcceptInvitationParams) (*contracts.Contract, error) {
	if p.TenantID == uuid.Nil {
		return nil, errors.Validation("tenant is required")
	}

	inv, c, err := e.invitationByToken(ctx, p.Token)
	if err != nil {
		return nil, err
	}

	release := e.locks.acquire(c.ID)
	defer release()

	// Re-load under the lock; a concurrent accept may have won.
	c, err = e.load(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	inv, ok, err := e.store.GetInvitation(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading invitation: %s", err)
	}
	if !ok {
		return nil, errors.InvitationInvalid("invitation not found")
	}

	now := e.clock.Now()
	if inv.Expired(now) && inv.Status != contracts.InvitationAccepted {
		e.expireInvitation(ctx, inv)
		return nil, errors.InvitationInvalid("invitation expired on %s", inv.ExpiresAt.Format("2006-01-02"))
	}
	if !inv.Acceptable(now) {
		return nil, errors.InvitationInvalid("invitation is no longer acceptable")
	}
	if !strings.EqualFold(inv.TenantEmail, p.TenantEmail) {
		return nil, errors.PermissionDenied("invitation was issued to a different email address")
	}
	if c.LandlordID == p.TenantID {
		return nil, errors.Validation("landlord and tenant cannot be the same account")
	}

	entry, err := e.checkedTransition(c, workflow.StateTenantReviewing,
		p.TenantID.String(), workflow.RoleTenant, p.Meta)
	if err != nil {
		return nil, err
	}

	c.TenantID = &p.TenantID
	c.InvitationAcceptedAt = &now
	c.UpdatedAt = now
	inv.Status = contracts.InvitationAccepted
	inv.AcceptedBy = &p.TenantID
	inv.AcceptedAt = &now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionInvitationAccepted, p.TenantID.String(), workflow.RoleTenant,
			fmt.Sprintf("Invitation accepted by %s", inv.TenantEmail), p.Meta),
		entry,
	}
	if err := e.store.UpdateContractWithInvitation(ctx, c, inv, entries...); err != nil {
		return nil, fmt.Errorf("storing contract and invitation: %s", err)
	}
	e.collectInvitationEvent(ctx, "accepted", inv)

	e.notify(ctx, c, c.LandlordID, templateInvitationAccepted, map[string]interface{}{
		"tenant_name":     e.displayName(ctx, p.TenantID),
		"contract_number": c.ContractNumber,
	})
	return c, nil
}

// ResendInvitation implements contracts.Service. It rotates the token of the
// latest live invitation, invalidating the previous plaintext.
func (e *Engine) ResendInvitation(
	ctx context.Context, p contracts.ResendInvitationParams,
) (*contracts.InvitationGrant, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.LandlordID != p.LandlordID {
		return nil, errors.PermissionDenied("only the landlord can resend an invitation")
	}

	invs, err := e.store.ListInvitations(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %s", err)
	}
	var latest *contracts.Invitation
	for i := range invs {
		inv := &invs[i]
		if inv.Status != contracts.InvitationSent && inv.Status != contracts.InvitationOpened {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, errors.InvitationInvalid("contract %s has no live invitation to resend", c.ContractNumber)
	}

	now := e.clock.Now()
	if latest.Expired(now) {
		e.expireInvitation(ctx, latest)
		return nil, errors.InvitationInvalid("invitation expired on %s; issue a new one", latest.ExpiresAt.Format("2006-01-02"))
	}
	if latest.Attempts+1 >= e.invitationMaxAttempts {
		return nil, errors.Validation("invitation was already sent %d times", e.invitationMaxAttempts)
	}

	plaintext, hash, err := tokens.NewInvitationToken()
	if err != nil {
		return nil, fmt.Errorf("generating invitation token: %s", err)
	}
	latest.TokenHash = hash
	latest.Status = contracts.InvitationSent
	latest.Attempts++
	latest.SentAt = &now
	latest.LastResentAt = &now
	latest.OpenedAt = nil
	c.UpdatedAt = now

	entry := e.entry(c, contracts.ActionInvitationResent, p.LandlordID.String(), workflow.RoleLandlord,
		fmt.Sprintf("Invitation to %s resent, attempt %d", latest.TenantEmail, latest.Attempts), p.Meta)
	if err := e.store.UpdateContractWithInvitation(ctx, c, latest, entry); err != nil {
		return nil, fmt.Errorf("storing contract and invitation: %s", err)
	}
	e.collectInvitationEvent(ctx, "issued", latest)
	return &contracts.InvitationGrant{Invitation: latest, Token: plaintext}, nil
}

// PendingInvitations implements contracts.Service. It lets a tenant who signed
// up after being invited discover offers addressed to their email.
func (e *Engine) PendingInvitations(ctx context.Context, email string) ([]*contracts.Invitation, error) {
	if email == "" {
		return nil, errors.Validation("email is required")
	}
	invs, err := e.store.ListPendingInvitationsByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, fmt.Errorf("listing pending invitations: %s", err)
	}
	now := e.clock.Now()
	out := make([]*contracts.Invitation, 0, len(invs))
	for i := range invs {
		if invs[i].Expired(now) {
			continue
		}
		out = append(out, &invs[i])
	}
	return out, nil
}

// CleanupExpiredInvitations implements contracts.Service.
func (e *Engine) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	expired, err := e.store.ExpireInvitations(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expiring invitations: %s", err)
	}
	if expired > 0 {
		e.log.Info().Int64("expired", expired).Msg("expired stale invitations")
	}
	return expired, nil
}

// invitationByToken resolves a plaintext token to its invitation and contract.
// Format trouble and unknown hashes are indistinguishable to the caller.
func (e *Engine) invitationByToken(
	ctx context.Context, token string,
) (*contracts.Invitation, *contracts.Contract, error) {
	if err := tokens.ValidateTokenFormat(token); err != nil {
		return nil, nil, errors.InvitationInvalid("invitation token is not valid")
	}
	inv, ok, err := e.store.GetInvitationByTokenHash(ctx, tokens.HashToken(token))
	if err != nil {
		return nil, nil, fmt.Errorf("loading invitation: %s", err)
	}
	if !ok {
		return nil, nil, errors.InvitationInvalid("invitation token is not valid")
	}
	c, err := e.load(ctx, inv.ContractID)
	if err != nil {
		return nil, nil, err
	}
	return inv, c, nil
}

// expireInvitation best-effort persists a lapsed status discovered during a
// lookup. The sweep job catches anything this misses.
func (e *Engine) expireInvitation(ctx context.Context, inv *contracts.Invitation) {
	inv.Status = contracts.InvitationExpired
	if err := e.store.UpdateInvitation(ctx, inv); err != nil {
		e.log.Warn().Err(err).Str("invitationId", inv.ID.String()).Msg("marking invitation expired")
		return
	}
	e.collectInvitationEvent(ctx, "expired", inv)
}

// collectInvitationEvent best-effort records one invitation lifecycle step.
func (e *Engine) collectInvitationEvent(ctx context.Context, event string, inv *contracts.Invitation) {
	if err := telemetry.Collect(ctx, telemetry.InvitationFlowMetric{
		Version:  telemetry.InvitationFlowMetricV1,
		Event:    event,
		Method:   string(inv.Method),
		Attempts: inv.Attempts + 1,
	}); err != nil {
		e.log.Warn().Err(err).Msg("collecting invitation metric")
	}
}
