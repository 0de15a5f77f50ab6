package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

func TestCompletionPercentage(t *testing.T) {
	t.Parallel()

	c := &Contract{State: workflow.StateDraft}
	require.Equal(t, 10, c.CompletionPercentage()) // no pending objections counts

	c.LandlordData = Payload{"full_name": "Ana"}
	c.EconomicTerms = Payload{"monthly_rent": json.Number("1500000")}
	c.ContractTerms = Payload{"lease_duration_months": json.Number("12")}
	require.Equal(t, 40, c.CompletionPercentage())

	tenantID := uuid.New()
	now := time.Now().UTC()
	c.TenantID = &tenantID
	c.InvitationAcceptedAt = &now
	c.TenantData = Payload{"full_name": "Luis"}
	require.Equal(t, 60, c.CompletionPercentage())

	c.TenantApproved = true
	c.TenantSigned = true
	c.LandlordSigned = true
	c.Published = true
	require.Equal(t, 100, c.CompletionPercentage())

	c.HasPendingObjections = true
	require.Equal(t, 90, c.CompletionPercentage())
}

func TestMissingDataSummary(t *testing.T) {
	t.Parallel()

	c := &Contract{
		LandlordData:  Payload{"full_name": "Ana", "document_id": "X1", "email": "ana@example.com", "phone": "+34600000000"},
		EconomicTerms: Payload{"monthly_rent": json.Number("1500000")},
		ContractTerms: Payload{"lease_duration_months": json.Number("12"), "start_date": "2025-03-01"},
	}
	missing := c.MissingDataSummary()
	require.Equal(t, []string{"economic_terms.security_deposit"}, missing["landlord"])
	require.Equal(t, []string{"full_name", "document_id", "email", "phone"}, missing["tenant"])

	c.EconomicTerms["security_deposit"] = json.Number("1500000")
	c.TenantData = Payload{"full_name": "Luis", "document_id": "Y2", "email": "luis@example.com", "phone": "+34611111111"}
	require.Empty(t, c.MissingDataSummary())
	require.True(t, c.LandlordDataComplete())
	require.True(t, c.TenantDataComplete())
}

func TestNextSigner(t *testing.T) {
	t.Parallel()

	c := &Contract{}
	require.Equal(t, workflow.RoleTenant, c.NextSigner())

	c.TenantSigned = true
	require.Equal(t, workflow.RoleLandlord, c.NextSigner())

	guarantorID := uuid.New()
	c.GuarantorID = &guarantorID
	require.Equal(t, workflow.RoleGuarantor, c.NextSigner())

	c.GuarantorSigned = true
	require.Equal(t, workflow.RoleLandlord, c.NextSigner())

	c.LandlordSigned = true
	require.Equal(t, workflow.Role(""), c.NextSigner())
	require.True(t, c.AllSigned())
}

func TestResponsibleParty(t *testing.T) {
	t.Parallel()

	c := &Contract{State: workflow.StateBothReviewing}
	require.Equal(t, workflow.RoleTenant, c.ResponsibleParty())
	c.TenantApproved = true
	require.Equal(t, workflow.RoleLandlord, c.ResponsibleParty())
	c.LandlordApproved = true
	require.Equal(t, workflow.RoleSystem, c.ResponsibleParty())

	c.State = workflow.StateReadyToSign
	require.Equal(t, workflow.RoleTenant, c.ResponsibleParty())
	c.TenantSigned = true
	require.Equal(t, workflow.RoleLandlord, c.ResponsibleParty())

	c.State = workflow.StatePublished
	require.Equal(t, workflow.RoleSystem, c.ResponsibleParty())
}

func TestLeaseDurationMonths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   interface{}
		months  int
		wantErr bool
	}{
		{"json number", json.Number("12"), 12, false},
		{"int", 24, 24, false},
		{"float whole", float64(6), 6, false},
		{"string", "18", 18, false},
		{"float fraction", 6.5, 0, true},
		{"zero", json.Number("0"), 0, true},
		{"too long", json.Number("61"), 0, true},
		{"garbage", "a year", 0, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &Contract{ContractTerms: Payload{"lease_duration_months": tc.value}}
			months, err := c.LeaseDurationMonths()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.months, months)
		})
	}

	c := &Contract{ContractTerms: Payload{}}
	_, err := c.LeaseDurationMonths()
	require.Error(t, err)
}

func TestApplyFieldReference(t *testing.T) {
	t.Parallel()

	newContract := func() *Contract {
		return &Contract{
			LandlordData:  Payload{"full_name": "Ana", "bank": map[string]interface{}{"iban": "ES00"}},
			TenantData:    Payload{"full_name": "Luis"},
			EconomicTerms: Payload{"monthly_rent": json.Number("1500000")},
			ContractTerms: Payload{"lease_duration_months": json.Number("12")},
		}
	}

	t.Run("section qualified", func(t *testing.T) {
		t.Parallel()
		c := newContract()
		require.True(t, ApplyFieldReference(c, "economic_terms.monthly_rent", json.Number("1400000")))
		require.Equal(t, json.Number("1400000"), c.EconomicTerms["monthly_rent"])
	})

	t.Run("nested path", func(t *testing.T) {
		t.Parallel()
		c := newContract()
		require.True(t, ApplyFieldReference(c, "landlord_data.bank.iban", "ES99"))
		require.Equal(t, "ES99", c.LandlordData["bank"].(map[string]interface{})["iban"])
	})

	t.Run("bare key first match wins", func(t *testing.T) {
		t.Parallel()
		c := newContract()
		require.True(t, ApplyFieldReference(c, "full_name", "Ana María"))
		require.Equal(t, "Ana María", c.LandlordData["full_name"])
		require.Equal(t, "Luis", c.TenantData["full_name"])
	})

	t.Run("scalar field", func(t *testing.T) {
		t.Parallel()
		c := newContract()
		require.True(t, ApplyFieldReference(c, "start_date", "2025-03-01"))
		require.NotNil(t, c.StartDate)
		require.Equal(t, 2025, c.StartDate.Year())

		require.True(t, ApplyFieldReference(c, "special_clauses", []interface{}{"no short-term sublet"}))
		require.Equal(t, []string{"no short-term sublet"}, c.SpecialClauses)
	})

	t.Run("unknown path flags manual amendment", func(t *testing.T) {
		t.Parallel()
		c := newContract()
		require.False(t, ApplyFieldReference(c, "economic_terms.parking_fee", json.Number("50000")))
		require.False(t, ApplyFieldReference(c, "no_such_field", "x"))
		require.False(t, ApplyFieldReference(c, "unknown_section.key", "x"))
	})
}

func TestIntegrityHash(t *testing.T) {
	t.Parallel()

	contractID := uuid.New()
	ts := time.Date(2025, 3, 1, 10, 30, 0, 123456789, time.UTC)

	e := NewHistoryEntry(contractID, ActionContractPublished, "landlord-1", workflow.RoleLandlord, ts, "contract published")
	require.Len(t, e.IntegrityHash, 64)
	require.True(t, e.VerifyIntegrity())

	// Recomputation is stable.
	again := ComputeIntegrityHash(contractID, ActionContractPublished, "landlord-1", ts, "contract published")
	require.Equal(t, e.IntegrityHash, again)

	// Tampering any hashed field breaks verification.
	tampered := e
	tampered.Description = "contract published early"
	require.False(t, tampered.VerifyIntegrity())

	tampered = e
	tampered.PerformedBy = "someone-else"
	require.False(t, tampered.VerifyIntegrity())
}

func TestAuthLadder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		methods  []string
		achieved AuthLevel
	}{
		{"no password", []string{MethodFace, MethodDocument}, ""},
		{"password only", []string{MethodPassword}, AuthBasic},
		{"password plus otp", []string{MethodPassword, MethodOTP}, AuthEnhanced},
		{"password face document", []string{MethodPassword, MethodFace, MethodDocument}, AuthMaximum},
		{"duplicates collapse", []string{MethodPassword, MethodPassword}, AuthBasic},
		{"face document but no password", []string{MethodFace, MethodDocument, MethodFingerprint}, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.achieved, AchievedAuthLevel(tc.methods))
		})
	}

	require.True(t, AuthSatisfies([]string{MethodPassword, MethodFace, MethodDocument}, AuthEnhanced))
	require.True(t, AuthSatisfies([]string{MethodPassword, MethodOTP}, AuthBasic))
	require.False(t, AuthSatisfies([]string{MethodPassword}, AuthEnhanced))
	require.False(t, AuthSatisfies([]string{MethodFace}, AuthBasic))
}

func TestAuthPolicyRequiredLevel(t *testing.T) {
	t.Parallel()

	policy := AuthPolicy{}
	require.Equal(t, AuthBasic, policy.RequiredLevel(&Contract{Type: TypeRentalRoom}))
	require.Equal(t, AuthBasic, policy.RequiredLevel(&Contract{Type: TypeService}))
	require.Equal(t, AuthEnhanced, policy.RequiredLevel(&Contract{Type: TypeRentalUrban}))
	require.Equal(t, AuthMaximum, policy.RequiredLevel(&Contract{Type: TypeRentalCommercial}))
	require.Equal(t, AuthMaximum, policy.RequiredLevel(&Contract{Type: TypeRentalRural}))

	override := AuthPolicy{Overrides: map[Type]AuthLevel{TypeRentalUrban: AuthMaximum}}
	require.Equal(t, AuthMaximum, override.RequiredLevel(&Contract{Type: TypeRentalUrban}))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	c := &Contract{
		TenantID:      &tenantID,
		EconomicTerms: Payload{"monthly_rent": json.Number("1500000"), "fees": map[string]interface{}{"agency": json.Number("100")}},
	}
	cp := c.Clone()
	cp.EconomicTerms["monthly_rent"] = json.Number("1")
	cp.EconomicTerms["fees"].(map[string]interface{})["agency"] = json.Number("2")
	*cp.TenantID = uuid.New()

	require.Equal(t, json.Number("1500000"), c.EconomicTerms["monthly_rent"])
	require.Equal(t, json.Number("100"), c.EconomicTerms["fees"].(map[string]interface{})["agency"])
	require.Equal(t, tenantID, *c.TenantID)
}

func TestInvitationAcceptable(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := &Invitation{Status: InvitationSent, ExpiresAt: now.Add(time.Hour)}
	require.True(t, inv.Acceptable(now))

	inv.Status = InvitationOpened
	require.True(t, inv.Acceptable(now))

	// Expiry boundary: at exactly expires_at the invitation is no longer valid.
	require.False(t, inv.Acceptable(now.Add(time.Hour)))
	require.False(t, inv.Acceptable(now.Add(time.Hour+time.Microsecond)))

	inv.Status = InvitationAccepted
	require.False(t, inv.Acceptable(now))
}

func TestGuaranteePolicy(t *testing.T) {
	t.Parallel()

	p := DefaultGuaranteePolicy()
	require.True(t, p.Requires(TypeRentalCommercial))
	require.True(t, p.Requires(TypeRentalRural))
	require.False(t, p.Requires(TypeRentalUrban))
	require.False(t, p.Requires(TypeRentalRoom))
}
