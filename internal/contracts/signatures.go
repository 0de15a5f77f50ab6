package contracts

import (
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

// AuthLevel is the identity assurance tier required to sign a contract.
type AuthLevel string

// The assurance ladder, weakest first.
const (
	AuthBasic    AuthLevel = "basic"
	AuthEnhanced AuthLevel = "enhanced"
	AuthMaximum  AuthLevel = "maximum"
)

// Valid reports whether l is a known auth level.
func (l AuthLevel) Valid() bool {
	switch l {
	case AuthBasic, AuthEnhanced, AuthMaximum:
		return true
	}
	return false
}

// Authentication method names recognized by the ladder.
const (
	MethodPassword    = "password"
	MethodOTP         = "otp"
	MethodFace        = "face"
	MethodDocument    = "document"
	MethodFingerprint = "fingerprint"
)

// AchievedAuthLevel computes the strongest level the given methods satisfy,
// or "" when not even basic is met. Rules: basic requires password; enhanced
// requires password plus a second method; maximum requires password, face and
// document verification with at least three methods total.
func AchievedAuthLevel(methods []string) AuthLevel {
	set := map[string]bool{}
	for _, m := range methods {
		set[m] = true
	}
	if !set[MethodPassword] {
		return ""
	}
	if set[MethodFace] && set[MethodDocument] && len(set) >= 3 {
		return AuthMaximum
	}
	if len(set) >= 2 {
		return AuthEnhanced
	}
	return AuthBasic
}

// AuthSatisfies reports whether the provided methods meet the required level.
func AuthSatisfies(methods []string, required AuthLevel) bool {
	achieved := AchievedAuthLevel(methods)
	if achieved == "" {
		return false
	}
	rank := map[AuthLevel]int{AuthBasic: 1, AuthEnhanced: 2, AuthMaximum: 3}
	return rank[achieved] >= rank[required]
}

// AuthPolicy decides the assurance tier a contract type demands. Overrides
// come from configuration; unlisted types fall back to the defaults.
type AuthPolicy struct {
	Overrides map[Type]AuthLevel
}

// RequiredLevel returns the auth level needed to sign the given contract.
func (p AuthPolicy) RequiredLevel(c *Contract) AuthLevel {
	if level, ok := p.Overrides[c.Type]; ok {
		return level
	}
	switch c.Type {
	case TypeRentalCommercial, TypeRentalRural:
		return AuthMaximum
	case TypeRentalUrban:
		return AuthEnhanced
	default:
		return AuthBasic
	}
}

// Signature is one captured signature. The signature_data payload is opaque
// to the engine; no PKI interpretation happens here.
type Signature struct {
	ID                uuid.UUID     `json:"id"`
	ContractID        uuid.UUID     `json:"contract_id"`
	SignerID          uuid.UUID     `json:"signer_id"`
	SignerRole        workflow.Role `json:"signer_role"`
	SignatureData     Payload       `json:"signature_data"`
	AuthLevel         AuthLevel     `json:"auth_level"`
	AuthMethods       []string      `json:"auth_methods,omitempty"`
	BiometricPayload  []byte        `json:"biometric_payload,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
	UserAgent         string        `json:"user_agent,omitempty"`
	IP                string        `json:"ip,omitempty"`
	SignedAt          time.Time     `json:"signed_at"`
}
