package impl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// AddGuarantee implements contracts.Service. Guarantees are attached during
// negotiation; naming a guarantor on a cosigner guarantee binds that account
// as a signing party.
func (e *Engine) AddGuarantee(ctx context.Context, p contracts.AddGuaranteeParams) (*contracts.Guarantee, error) {
	if !p.Kind.Valid() {
		return nil, errors.Validation("unknown guarantee kind %q", p.Kind)
	}
	if p.Kind == contracts.GuaranteePersonalCosigner && p.GuarantorID == nil && len(p.CoSigner) == 0 {
		return nil, errors.Validation("a cosigner guarantee needs a guarantor account or cosigner details")
	}

	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	role := c.RoleOf(p.UserID)
	if role != workflow.RoleLandlord && role != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the landlord or the tenant can add a guarantee")
	}
	switch c.State {
	case workflow.StateFullySigned, workflow.StatePublished, workflow.StateActive,
		workflow.StateExpired, workflow.StateTerminated, workflow.StateCancelled:
		return nil, errors.Validation("guarantees cannot be added in state %s", c.State)
	}

	now := e.clock.Now()
	g := &contracts.Guarantee{
		ID:            uuid.New(),
		ContractID:    c.ID,
		GuarantorID:   p.GuarantorID,
		Kind:          p.Kind,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		CoSigner:      p.CoSigner,
		PolicyNumber:  p.PolicyNumber,
		Issuer:        p.Issuer,
		EffectiveDate: p.EffectiveDate,
		ExpiryDate:    p.ExpiryDate,
		Status:        contracts.GuaranteeStatusPending,
		CreatedAt:     now,
	}

	if p.Kind == contracts.GuaranteePersonalCosigner && p.GuarantorID != nil {
		if *p.GuarantorID == c.LandlordID || (c.TenantID != nil && *p.GuarantorID == *c.TenantID) {
			return nil, errors.Validation("the guarantor must be a third party")
		}
		c.GuarantorID = p.GuarantorID
	}
	c.UpdatedAt = now

	entry := e.entry(c, contracts.ActionGuaranteeAdded, p.UserID.String(), role,
		fmt.Sprintf("%s guarantee added", p.Kind), p.Meta)
	entry.Metadata.RelatedGuaranteeID = &g.ID
	if err := e.store.InsertGuarantee(ctx, c, g, entry); err != nil {
		return nil, fmt.Errorf("storing guarantee: %s", err)
	}
	return g, nil
}

// VerifyGuarantee implements contracts.Service. Verification is the landlord's
// call. When a verified guarantee was the last thing holding the contract in
// BOTH_REVIEWING, signing opens here.
func (e *Engine) VerifyGuarantee(ctx context.Context, p contracts.VerifyGuaranteeParams) (*contracts.Guarantee, error) {
	g, ok, err := e.store.GetGuarantee(ctx, p.GuaranteeID)
	if err != nil {
		return nil, fmt.Errorf("loading guarantee: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("guarantee %s not found", p.GuaranteeID)
	}

	release := e.locks.acquire(g.ContractID)
	defer release()

	c, err := e.load(ctx, g.ContractID)
	if err != nil {
		return nil, err
	}
	g, ok, err = e.store.GetGuarantee(ctx, p.GuaranteeID)
	if err != nil {
		return nil, fmt.Errorf("loading guarantee: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("guarantee %s not found", p.GuaranteeID)
	}

	if c.LandlordID != p.VerifierID {
		return nil, errors.PermissionDenied("only the landlord can verify a guarantee")
	}
	if g.Verified {
		return nil, errors.Validation("guarantee is already verified")
	}

	now := e.clock.Now()
	g.Verified = true
	g.VerifiedBy = &p.VerifierID
	g.VerifiedAt = &now
	g.Status = contracts.GuaranteeStatusActive
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionGuaranteeVerified, p.VerifierID.String(), workflow.RoleLandlord,
			fmt.Sprintf("%s guarantee verified", g.Kind), p.Meta),
	}
	entries[0].Metadata.RelatedGuaranteeID = &g.ID

	if c.State == workflow.StateBothReviewing && c.TenantApproved && c.LandlordApproved {
		entries = append(entries, e.transition(c, workflow.StateReadyToSign,
			contracts.SystemActor, workflow.RoleSystem, contracts.RequestMeta{}))
	}

	if err := e.store.UpdateContractWithGuarantee(ctx, c, g, entries...); err != nil {
		return nil, fmt.Errorf("storing guarantee: %s", err)
	}
	return g, nil
}

// ListGuarantees implements contracts.Service.
func (e *Engine) ListGuarantees(ctx context.Context, userID, contractID uuid.UUID) ([]*contracts.Guarantee, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(userID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", contractID)
	}
	rows, err := e.store.ListGuarantees(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("listing guarantees: %s", err)
	}
	out := make([]*contracts.Guarantee, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}
