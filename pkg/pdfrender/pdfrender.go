// Package pdfrender defines the contract document renderer port. Rendering
// happens in an external service; the engine assembles the document model and
// receives bytes back.
package pdfrender

import (
	"context"
	"time"
)

// SignatureLine is one signature block on the rendered document.
type SignatureLine struct {
	Role       string     `json:"role"`
	SignerName string     `json:"signer_name,omitempty"`
	AuthLevel  string     `json:"auth_level,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	Biometric  bool       `json:"biometric,omitempty"`
}

// Document is the renderer input model.
type Document struct {
	ContractNumber string                 `json:"contract_number"`
	ContractType   string                 `json:"contract_type"`
	State          string                 `json:"state"`
	LandlordData   map[string]interface{} `json:"landlord_data,omitempty"`
	TenantData     map[string]interface{} `json:"tenant_data,omitempty"`
	PropertyData   map[string]interface{} `json:"property_data,omitempty"`
	EconomicTerms  map[string]interface{} `json:"economic_terms,omitempty"`
	ContractTerms  map[string]interface{} `json:"contract_terms,omitempty"`
	SpecialClauses []string               `json:"special_clauses,omitempty"`
	Signatures     []SignatureLine        `json:"signatures,omitempty"`
	StartDate      *time.Time             `json:"start_date,omitempty"`
	EndDate        *time.Time             `json:"end_date,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Draft          bool                   `json:"draft"`
}

// Renderer is the document renderer port.
type Renderer interface {
	// Render produces the PDF bytes for the document.
	Render(ctx context.Context, doc Document) ([]byte, error)
}
