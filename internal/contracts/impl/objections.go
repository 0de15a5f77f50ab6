package impl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// objectionStates are the contract states that accept new objections.
// BOTH_REVIEWING is included: a party who spots a problem while approving
// reopens the negotiation instead of approving terms they dispute.
var objectionStates = map[workflow.State]bool{
	workflow.StateTenantReviewing:   true,
	workflow.StateLandlordReviewing: true,
	workflow.StateObjectionsPending: true,
	workflow.StateBothReviewing:     true,
}

// SubmitObjection implements contracts.Service.
func (e *Engine) SubmitObjection(ctx context.Context, p contracts.SubmitObjectionParams) (*contracts.Objection, error) {
	if p.FieldReference == "" {
		return nil, errors.Validation("field_reference is required")
	}
	if len(p.Justification) < contracts.MinJustificationLength {
		return nil, errors.Validation(
			"justification must be at least %d characters", contracts.MinJustificationLength)
	}
	if p.ProposedValue == nil {
		return nil, errors.Validation("proposed_value is required")
	}
	priority := p.Priority
	if priority == "" {
		priority = contracts.ObjectionPriorityMedium
	}
	if !priority.Valid() {
		return nil, errors.Validation("unknown objection priority %q", p.Priority)
	}

	release := e.locks.acquire(p.ContractID)
	defer release()

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	role := c.RoleOf(p.UserID)
	if role != workflow.RoleLandlord && role != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the landlord or the tenant can object")
	}
	if !objectionStates[c.State] {
		return nil, errors.Validation("objections cannot be submitted in state %s", c.State)
	}

	now := e.clock.Now()
	current, _ := contracts.LookupFieldReference(c, p.FieldReference)
	o := &contracts.Objection{
		ID:             uuid.New(),
		ContractID:     c.ID,
		ObjectedBy:     p.UserID,
		ObjectorRole:   role,
		FieldReference: p.FieldReference,
		CurrentValue:   current,
		ProposedValue:  p.ProposedValue,
		Justification:  p.Justification,
		Priority:       priority,
		Status:         contracts.ObjectionPending,
		SubmittedAt:    now,
	}

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionObjectionSubmitted, p.UserID.String(), role,
			fmt.Sprintf("Objection submitted against %s", p.FieldReference), p.Meta),
	}
	entries[0].Metadata.RelatedObjectionID = &o.ID

	if c.State != workflow.StateObjectionsPending {
		// Leaving BOTH_REVIEWING voids approvals already given; the disputed
		// terms must be re-approved once resolved.
		if c.State == workflow.StateBothReviewing {
			c.TenantApproved, c.TenantApprovedAt = false, nil
			c.LandlordApproved, c.LandlordApprovedAt = false, nil
		}
		entry, err := e.checkedTransition(c, workflow.StateObjectionsPending, p.UserID.String(), role, p.Meta)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	c.ObjectionsCount++
	c.HasPendingObjections = true
	c.LastObjectionDate = &now
	c.UpdatedAt = now

	if err := e.store.InsertObjection(ctx, c, o, entries...); err != nil {
		return nil, fmt.Errorf("storing objection: %s", err)
	}

	e.notifyParties(ctx, c, p.UserID, templateObjectionSubmitted, map[string]interface{}{
		"contract_number": c.ContractNumber,
		"objector_name":   e.displayName(ctx, p.UserID),
		"field_reference": p.FieldReference,
		"justification":   p.Justification,
	})
	return o, nil
}

// RespondObjection implements contracts.Service. Accepting mutates the
// referenced field; a reference no existing location matches flags the
// objection for manual amendment instead of failing the response.
func (e *Engine) RespondObjection(ctx context.Context, p contracts.RespondObjectionParams) (*contracts.Objection, error) {
	if p.Response != contracts.ResponseAccepted && p.Response != contracts.ResponseRejected {
		return nil, errors.Validation("response must be %s or %s", contracts.ResponseAccepted, contracts.ResponseRejected)
	}

	o, ok, err := e.store.GetObjection(ctx, p.ObjectionID)
	if err != nil {
		return nil, fmt.Errorf("loading objection: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("objection %s not found", p.ObjectionID)
	}

	release := e.locks.acquire(o.ContractID)
	defer release()

	c, err := e.load(ctx, o.ContractID)
	if err != nil {
		return nil, err
	}
	o, ok, err = e.store.GetObjection(ctx, p.ObjectionID)
	if err != nil {
		return nil, fmt.Errorf("loading objection: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("objection %s not found", p.ObjectionID)
	}

	role := c.RoleOf(p.UserID)
	if role != workflow.RoleLandlord && role != workflow.RoleTenant {
		return nil, errors.PermissionDenied("only the landlord or the tenant can respond")
	}
	if p.UserID == o.ObjectedBy {
		return nil, errors.PermissionDenied("the objector cannot respond to their own objection")
	}
	if !o.Status.Open() {
		return nil, errors.Validation("objection is already %s", o.Status)
	}

	now := e.clock.Now()
	o.ResponderID = &p.UserID
	o.ResponseNote = p.Note
	o.ReviewedAt = &now
	o.ResolvedAt = &now

	switch {
	case p.Response == contracts.ResponseRejected:
		o.Status = contracts.ObjectionRejected
	case p.CounterProposal != nil:
		o.Status = contracts.ObjectionPartiallyAccepted
		o.CounterProposal = p.CounterProposal
		if !contracts.ApplyFieldReference(c, o.FieldReference, p.CounterProposal) {
			o.RequiresManualAmendment = true
		}
	default:
		o.Status = contracts.ObjectionAccepted
		if !contracts.ApplyFieldReference(c, o.FieldReference, o.ProposedValue) {
			o.RequiresManualAmendment = true
		}
	}

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionObjectionResponded, p.UserID.String(), role,
			fmt.Sprintf("Objection against %s %s", o.FieldReference, o.Status), p.Meta),
	}
	entries[0].Metadata.RelatedObjectionID = &o.ID

	open, err := e.openObjections(ctx, c.ID, o.ID)
	if err != nil {
		return nil, err
	}
	c.HasPendingObjections = open > 0
	c.UpdatedAt = now
	if open == 0 && c.State == workflow.StateObjectionsPending {
		entry, err := e.checkedTransition(c, workflow.StateBothReviewing, p.UserID.String(), role, p.Meta)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := e.store.UpdateContractWithObjection(ctx, c, o, entries...); err != nil {
		return nil, fmt.Errorf("storing objection response: %s", err)
	}

	e.notify(ctx, c, o.ObjectedBy, templateObjectionResponded, map[string]interface{}{
		"contract_number": c.ContractNumber,
		"field_reference": o.FieldReference,
		"response":        string(o.Status),
	})
	return o, nil
}

// WithdrawObjection implements contracts.Service.
func (e *Engine) WithdrawObjection(ctx context.Context, p contracts.WithdrawObjectionParams) (*contracts.Objection, error) {
	o, ok, err := e.store.GetObjection(ctx, p.ObjectionID)
	if err != nil {
		return nil, fmt.Errorf("loading objection: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("objection %s not found", p.ObjectionID)
	}

	release := e.locks.acquire(o.ContractID)
	defer release()

	c, err := e.load(ctx, o.ContractID)
	if err != nil {
		return nil, err
	}
	o, ok, err = e.store.GetObjection(ctx, p.ObjectionID)
	if err != nil {
		return nil, fmt.Errorf("loading objection: %s", err)
	}
	if !ok {
		return nil, errors.NotFound("objection %s not found", p.ObjectionID)
	}

	if p.UserID != o.ObjectedBy {
		return nil, errors.PermissionDenied("only the objector can withdraw an objection")
	}
	if !o.Status.Open() {
		return nil, errors.Validation("objection is already %s", o.Status)
	}

	now := e.clock.Now()
	o.Status = contracts.ObjectionWithdrawn
	o.ResolvedAt = &now

	entries := []contracts.HistoryEntry{
		e.entry(c, contracts.ActionObjectionResponded, p.UserID.String(), o.ObjectorRole,
			fmt.Sprintf("Objection against %s withdrawn", o.FieldReference), p.Meta),
	}
	entries[0].Metadata.RelatedObjectionID = &o.ID

	open, err := e.openObjections(ctx, c.ID, o.ID)
	if err != nil {
		return nil, err
	}
	c.HasPendingObjections = open > 0
	c.UpdatedAt = now
	if open == 0 && c.State == workflow.StateObjectionsPending {
		entry, err := e.checkedTransition(c, workflow.StateBothReviewing,
			p.UserID.String(), o.ObjectorRole, p.Meta)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := e.store.UpdateContractWithObjection(ctx, c, o, entries...); err != nil {
		return nil, fmt.Errorf("storing objection withdrawal: %s", err)
	}
	return o, nil
}

// ListObjections implements contracts.Service.
func (e *Engine) ListObjections(ctx context.Context, userID, contractID uuid.UUID) ([]*contracts.Objection, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(userID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", contractID)
	}
	rows, err := e.store.ListObjections(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("listing objections: %s", err)
	}
	out := make([]*contracts.Objection, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// openObjections counts objections still awaiting a response, excluding the
// one being resolved right now.
func (e *Engine) openObjections(ctx context.Context, contractID, excluding uuid.UUID) (int, error) {
	rows, err := e.store.ListObjections(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("listing objections: %s", err)
	}
	open := 0
	for i := range rows {
		if rows[i].ID == excluding {
			continue
		}
		if rows[i].Status.Open() {
			open++
		}
	}
	return open, nil
}
