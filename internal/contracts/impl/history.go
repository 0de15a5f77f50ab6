package impl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/pdfrender"
)

// History implements contracts.Service.
func (e *Engine) History(ctx context.Context, userID, contractID uuid.UUID) ([]contracts.HistoryEntry, error) {
	c, err := e.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(userID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", contractID)
	}
	entries, err := e.store.GetHistory(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %s", err)
	}
	return entries, nil
}

// VerifyHistory implements contracts.Service. It recomputes every integrity
// hash of the trace and reports the entries that no longer match.
func (e *Engine) VerifyHistory(ctx context.Context, userID, contractID uuid.UUID) (*contracts.HistoryVerification, error) {
	entries, err := e.History(ctx, userID, contractID)
	if err != nil {
		return nil, err
	}
	v := &contracts.HistoryVerification{Entries: len(entries), Valid: true}
	for i := range entries {
		if !entries[i].VerifyIntegrity() {
			v.Valid = false
			v.BadEntries = append(v.BadEntries, entries[i].ID)
		}
	}
	return v, nil
}

// RenderPDF implements contracts.Service. The engine assembles the document
// model; rendering happens in the external renderer service. Persisting
// records the handle on the contract and leaves a trace entry.
func (e *Engine) RenderPDF(ctx context.Context, p contracts.RenderPDFParams) ([]byte, error) {
	if e.renderer == nil {
		return nil, errors.External("rendering document", fmt.Errorf("no renderer configured"))
	}

	c, err := e.load(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	if !c.IsParty(p.UserID) {
		return nil, errors.PermissionDenied("contract %s belongs to other parties", p.ContractID)
	}

	doc := pdfrender.Document{
		ContractNumber: c.ContractNumber,
		ContractType:   string(c.Type),
		State:          string(c.State),
		LandlordData:   c.LandlordData,
		TenantData:     c.TenantData,
		PropertyData:   c.PropertyData,
		EconomicTerms:  c.EconomicTerms,
		ContractTerms:  c.ContractTerms,
		SpecialClauses: c.SpecialClauses,
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		GeneratedAt:    e.clock.Now(),
		Draft:          c.FullySignedAt == nil,
	}
	if p.IncludeSignatures {
		doc.Signatures, err = e.signatureLines(ctx, c, p.IncludeBiometric)
		if err != nil {
			return nil, err
		}
	}

	pdf, err := e.renderer.Render(ctx, doc)
	if err != nil {
		return nil, errors.External("rendering document", err)
	}

	if p.Persist {
		release := e.locks.acquire(c.ID)
		c, err = e.load(ctx, c.ID)
		if err != nil {
			release()
			return nil, err
		}
		now := e.clock.Now()
		c.PDFHandle = fmt.Sprintf("contracts/%s/%s.pdf", c.ID, now.Format("20060102T150405Z"))
		c.UpdatedAt = now
		entry := e.entry(c, contracts.ActionPDFGenerated, p.UserID.String(), c.RoleOf(p.UserID),
			fmt.Sprintf("Contract document rendered as %s", c.PDFHandle), contracts.RequestMeta{})
		err = e.store.UpdateContract(ctx, c, entry)
		release()
		if err != nil {
			return nil, fmt.Errorf("storing document handle: %s", err)
		}
	}
	return pdf, nil
}

// signatureLines builds one line per expected signer, filled in from the
// captured signatures.
func (e *Engine) signatureLines(
	ctx context.Context, c *contracts.Contract, includeBiometric bool,
) ([]pdfrender.SignatureLine, error) {
	sigs, err := e.store.ListSignatures(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing signatures: %s", err)
	}
	byRole := map[workflow.Role]*contracts.Signature{}
	for i := range sigs {
		byRole[sigs[i].SignerRole] = &sigs[i]
	}

	roles := []workflow.Role{workflow.RoleTenant}
	if c.HasGuarantor() {
		roles = append(roles, workflow.RoleGuarantor)
	}
	roles = append(roles, workflow.RoleLandlord)

	lines := make([]pdfrender.SignatureLine, 0, len(roles))
	for _, role := range roles {
		line := pdfrender.SignatureLine{Role: string(role)}
		if sig, ok := byRole[role]; ok {
			line.SignerName = e.displayName(ctx, sig.SignerID)
			line.AuthLevel = string(sig.AuthLevel)
			line.SignedAt = &sig.SignedAt
			line.Biometric = includeBiometric && len(sig.BiometricPayload) > 0
		}
		lines = append(lines, line)
	}
	return lines, nil
}
