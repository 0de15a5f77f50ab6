package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
)

// Approve implements contracts.Service. The landlord's first approval closes
// their review; once every party approved, the contract moves to signing,
// unless the contract type demands a verified guarantee that is still missing.
func (e *Engine) Approve(ctx context.Context, p contracts.ApproveParams) (*contracts.Contract, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	role := c.RoleOf(p.UserID)
	if role != workflow.RoleLandlord && role != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the landlord or the tenant can approve")
	}
	if c.State != workflow.StateLandlordReviewing && c.State != workflow.StateBothReviewing {
		return nil, errors.Validation("approvals are not expected in state %s", c.State)
	}
	if c.State == workflow.StateLandlordReviewing && role != workflow.RoleLandlord {
		return nil, errors.PermissionDenied("the landlord review is still open")
	}

	now := e.clock.Now()
	switch role {
	case workflow.RoleLandlord:
		if c.LandlordApproved {
			return nil, errors.Validation("landlord already approved")
		}
		c.LandlordApproved = true
		c.LandlordApprovedAt = &now
	case workflow.RoleTenant:
		if c.TenantApproved {
			return nil, errors.Validation("tenant already approved")
		}
		c.TenantApproved = true
		c.TenantApprovedAt = &now
	}
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionPartyApproved, p.UserID.String(), role,
			fmt.Sprintf("Contract approved by %s", role), p.Meta),
	}
	if c.State == workflow.StateLandlordReviewing {
		entry, err := e.checkedTransition(c, workflow.StateBothReviewing, p.UserID.String(), role, p.Meta)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	advance, err := e.readyToSign(ctx, c)
	if err != nil {
		return nil, err
	}
	if advance {
		entries = append(entries, e.transition(c, workflow.StateReadyToSign,
			contracts.SystemActor, workflow.RoleSystem, contracts.RequestMeta{}))
	}

	if err := e.store.UpdateContract(ctx, c, entries...); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}

	e.notifyParties(ctx, c, p.UserID, templateContractApproved, map[string]interface{}{
		"contract_number": c.ContractNumber,
		"approver_name":   e.displayName(ctx, p.UserID),
	})
	return c, nil
}

// readyToSign reports whether the contract can advance from BOTH_REVIEWING to
// READY_TO_SIGN: both approvals present and the guarantee policy satisfied.
// Approvals stand either way; a missing guarantee only defers the transition
// until VerifyGuarantee completes it.
func (e *Engine) readyToSign(ctx context.Context, c *contracts.Contract) (bool, error) {
	if c.State != workflow.StateBothReviewing || !c.TenantApproved || !c.LandlordApproved {
		return false, nil
	}
	if !e.guaranteePolicy.Requires(c.Type) {
		return true, nil
	}
	guarantees, err := e.store.ListGuarantees(ctx, c.ID)
	if err != nil {
		return false, fmt.Errorf("listing guarantees: %s", err)
	}
	for i := range guarantees {
		if guarantees[i].Verified {
			return true, nil
		}
	}
	return false, nil
}

// Sign implements contracts.Service. Signatures are strictly ordered: tenant,
// then guarantor when present, then landlord. A signature attempted out of
// turn is rejected without touching the contract or its history.
func (e *Engine) Sign(ctx context.Context, p contracts.SignParams) (*contracts.Contract, error) {
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
	if c.State != workflow.StateReadyToSign {
		return nil, errors.InvalidTransition(string(c.State), string(workflow.StateReadyToSign))
	}
	if next := c.NextSigner(); role != next {
		return nil, errors.OutOfOrder("it is the %s's turn to sign, not the %s's", next, role)
	}

	required := e.authPolicy.RequiredLevel(c)
	if !contracts.AuthSatisfies(p.AuthMethods, required) {
		return nil, errors.Validation("authentication methods do not reach the required %s level", required)
	}

	now := e.clock.Now()
	sig := &contracts.Signature{
		ID:                uuid.New(),
		ContractID:        c.ID,
		SignerID:          p.UserID,
		SignerRole:        role,
		SignatureData:     p.SignatureData,
		AuthLevel:         contracts.AchievedAuthLevel(p.AuthMethods),
		AuthMethods:       p.AuthMethods,
		BiometricPayload:  p.BiometricPayload,
		DeviceFingerprint: p.DeviceFingerprint,
		UserAgent:         p.Meta.UserAgent,
		IP:                p.Meta.IP,
		SignedAt:          now,
	}

	switch role {
	case workflow.RoleTenant:
		c.TenantSigned, c.TenantSignedAt = true, &now
	case workflow.RoleGuarantor:
		c.GuarantorSigned, c.GuarantorSignedAt = true, &now
	case workflow.RoleLandlord:
		c.LandlordSigned, c.LandlordSignedAt = true, &now
	}
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionContractSigned, p.UserID.String(), role,
			fmt.Sprintf("Contract signed by %s at %s level", role, sig.AuthLevel), p.Meta),
	}

	fullySigned := c.AllSigned()
	if fullySigned {
		c.FullySignedAt = &now
		entries = append(entries, e.transition(c, workflow.StateFullySigned,
			contracts.SystemActor, workflow.RoleSystem, contracts.RequestMeta{}))
	}

	if err := e.store.InsertSignature(ctx, c, sig, entries...); err != nil {
		return nil, fmt.Errorf("storing signature: %s", err)
	}

	if fullySigned {
		e.notifyParties(ctx, c, uuid.Nil, templateContractFullySigned, map[string]interface{}{
			"contract_number": c.ContractNumber,
		})
	} else {
		e.notifyParties(ctx, c, p.UserID, templateContractSigned, map[string]interface{}{
			"contract_number": c.ContractNumber,
			"signer_name":     e.displayName(ctx, p.UserID),
			"signer_role":     string(role),
			"next_signer":     string(c.NextSigner()),
		})
	}
	return c, nil
}

// Publish implements contracts.Service. Publication fixes the lease period:
// the start date defaults to the publication day and the end date follows from
// the agreed duration.
func (e *Engine) Publish(ctx context.Context, p contracts.PublishParams) (*contracts.Contract, error) {
	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if c.LandlordID != p.LandlordID {
		return nil, errors.PermissionDenied("only the landlord can publish the contract")
	}
	if err := workflow.Check(c.State, workflow.StatePublished, workflow.RoleLandlord); err != nil {
		return nil, transitionError(err)
	}

	months, err := c.LeaseDurationMonths()
	if err != nil {
		return nil, errors.Validation("%s", err)
	}

	now := e.clock.Now()
	start := now.Truncate(24 * time.Hour)
	if p.StartDate != nil {
		start = p.StartDate.UTC().Truncate(24 * time.Hour)
	}
	end := start.AddDate(0, months, 0)

	c.StartDate = &start
	c.EndDate = &end
	c.Published = true
	c.PublishedAt = &now
	c.PublishedBy = &p.LandlordID
	c.UpdatedAt = now

	entries := []contracts.HistoryEntry{
		e.transition(c, workflow.StatePublished, p.LandlordID.String(), workflow.RoleLandlord, p.Meta),
		e.entry(c, contracts.ActionContractPublished, p.LandlordID.String(), workflow.RoleLandlord,
			fmt.Sprintf("Contract published, in force %s to %s",
				start.Format("2006-01-02"), end.Format("2006-01-02")), p.Meta),
	}
	if err := e.store.UpdateContract(ctx, c, entries...); err != nil {
		return nil, fmt.Errorf("storing contract: %s", err)
	}

	if err := telemetry.Collect(ctx, telemetry.ContractPublishedMetric{
		Version:        telemetry.ContractPublishedMetricV1,
		ContractNumber: c.ContractNumber,
		ContractType:   string(c.Type),
		DurationMonths: months,
		DaysToPublish:  int64(now.Sub(c.CreatedAt) / (24 * time.Hour)),
		Objections:     c.ObjectionsCount,
		HadGuarantor:   c.HasGuarantor(),
	}); err != nil {
		e.log.Warn().Err(err).Msg("collecting contract published metric")
	}

	e.notifyParties(ctx, c, p.LandlordID, templateContractPublished, map[string]interface{}{
		"contract_number": c.ContractNumber,
		"start_date":      start.Format("2006-01-02"),
		"end_date":        end.Format("2006-01-02"),
	})
	return c, nil
}

// ListSignatures implements contracts.Service.
func (e *Engine) ListSignatures(ctx context.Context, userID, contractID uuid.UUID) ([]*contracts.Signature, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(userID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", contractID)
	}
	rows, err := e.store.ListSignatures(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("listing signatures: %s", err)
	}
	out := make([]*contracts.Signature, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}
