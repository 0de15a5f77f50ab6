package impl

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

var testStamp = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func testContract(number string) *contracts.Contract {
	return &contracts.Contract{
		ID:             uuid.New(),
		ContractNumber: number,
		Type:           contracts.TypeRentalUrban,
		State:          workflow.StateDraft,
		LandlordID:     uuid.New(),
		PropertyID:     uuid.New(),
		PropertyData:   contracts.Payload{"address": "Calle Mayor 1, Madrid"},
		EconomicTerms: contracts.Payload{
			"monthly_rent":     json.Number("1250.00"),
			"security_deposit": json.Number("2500.00"),
		},
		ContractTerms: contracts.Payload{
			"lease_duration_months": json.Number("12"),
			"start_date":            "2026-04-01",
		},
		SpecialClauses: []string{"no subletting"},
		CreatedAt:      testStamp,
		UpdatedAt:      testStamp,
	}
}

func createdEntry(c *contracts.Contract) contracts.HistoryEntry {
	return contracts.NewHistoryEntry(
		c.ID, contracts.ActionContractCreated, c.LandlordID.String(), workflow.RoleLandlord,
		c.CreatedAt, "contract created")
}

func TestContractRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000001")
	entry := createdEntry(c)
	require.NoError(t, s.InsertContract(ctx, c, entry))

	got, found, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, c, got)

	byNumber, found, err := s.GetContractByNumber(ctx, "VH-2026-000001")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, c.ID, byNumber.ID)

	_, found, err = s.GetContract(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, found)

	history, err := s.GetHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, entry, history[0])
	require.True(t, history[0].VerifyIntegrity())
}

func TestContractNumberSequence(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextContractNumber(ctx, 2026)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// each year keeps its own counter
	got, err := s.NextContractNumber(ctx, 2027)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestUpdateContractAppendsHistory(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000002")
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	c.State = workflow.StateLandlordCompleting
	c.LandlordData = contracts.Payload{"full_name": "Marta Ruiz"}
	c.UpdatedAt = testStamp.Add(time.Minute)
	moved := contracts.NewHistoryEntry(
		c.ID, contracts.ActionStateChanged, c.LandlordID.String(), workflow.RoleLandlord,
		c.UpdatedAt, "landlord started completing")
	moved.OldState = workflow.StateDraft
	moved.NewState = workflow.StateLandlordCompleting
	require.NoError(t, s.UpdateContract(ctx, c, moved))

	got, found, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, c, got)

	history, err := s.GetHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, contracts.ActionContractCreated, history[0].ActionType)
	require.Equal(t, contracts.ActionStateChanged, history[1].ActionType)
	for _, e := range history {
		require.True(t, e.VerifyIntegrity())
	}

	// updating a contract that was never inserted fails
	missing := testContract("VH-2026-000099")
	require.Error(t, s.UpdateContract(ctx, missing))
}

func TestListContractsByParty(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	landlordID := uuid.New()
	tenantID := uuid.New()

	first := testContract("VH-2026-000003")
	first.LandlordID = landlordID
	second := testContract("VH-2026-000004")
	second.LandlordID = landlordID
	second.State = workflow.StatePublished
	second.TenantID = &tenantID
	second.CreatedAt = testStamp.Add(time.Hour)
	second.UpdatedAt = second.CreatedAt
	other := testContract("VH-2026-000005")

	for _, c := range []*contracts.Contract{first, second, other} {
		require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))
	}

	mine, err := s.ListContractsByParty(ctx, landlordID, contracts.ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// newest first
	require.Equal(t, second.ID, mine[0].ID)
	require.Equal(t, first.ID, mine[1].ID)

	published, err := s.ListContractsByParty(ctx, landlordID, contracts.ListFilter{State: workflow.StatePublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, second.ID, published[0].ID)

	asTenant, err := s.ListContractsByParty(ctx, tenantID, contracts.ListFilter{})
	require.NoError(t, err)
	require.Len(t, asTenant, 1)
	require.Equal(t, second.ID, asTenant[0].ID)

	all, err := s.ListContracts(ctx, contracts.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestInvitationLifecycle(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000006")
	c.State = workflow.StateLandlordCompleting
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	sentAt := testStamp.Add(time.Minute)
	inv := &contracts.Invitation{
		ID:          uuid.New(),
		ContractID:  c.ID,
		TokenHash:   "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03",
		TenantEmail: "ana@example.com",
		TenantName:  "Ana Torres",
		Method:      contracts.InvitationByEmail,
		Status:      contracts.InvitationSent,
		CreatedBy:   c.LandlordID,
		CreatedAt:   sentAt,
		SentAt:      &sentAt,
		ExpiresAt:   sentAt.Add(7 * 24 * time.Hour),
	}
	c.State = workflow.StateTenantInvited
	c.UpdatedAt = sentAt
	sentEntry := contracts.NewHistoryEntry(
		c.ID, contracts.ActionInvitationSent, c.LandlordID.String(), workflow.RoleLandlord, sentAt, "invitation sent")
	require.NoError(t, s.InsertInvitation(ctx, c, inv, sentEntry))

	byHash, found, err := s.GetInvitationByTokenHash(ctx, inv.TokenHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, inv, byHash)

	pending, err := s.ListPendingInvitationsByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// acceptance links the tenant and consumes the invitation atomically
	tenantID := uuid.New()
	acceptedAt := sentAt.Add(time.Hour)
	inv.Status = contracts.InvitationAccepted
	inv.AcceptedBy = &tenantID
	inv.AcceptedAt = &acceptedAt
	c.TenantID = &tenantID
	c.InvitationAcceptedAt = &acceptedAt
	c.State = workflow.StateTenantReviewing
	c.UpdatedAt = acceptedAt
	acceptedEntry := contracts.NewHistoryEntry(
		c.ID, contracts.ActionInvitationAccepted, tenantID.String(), workflow.RoleTenant, acceptedAt, "invitation accepted")
	require.NoError(t, s.UpdateContractWithInvitation(ctx, c, inv, acceptedEntry))

	gotContract, found, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, workflow.StateTenantReviewing, gotContract.State)
	require.Equal(t, &tenantID, gotContract.TenantID)

	gotInv, found, err := s.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, contracts.InvitationAccepted, gotInv.Status)
	require.Equal(t, &tenantID, gotInv.AcceptedBy)

	// accepted invitations are out of reach for the expiry sweep
	expired, err := s.ExpireInvitations(ctx, inv.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, expired)

	pending, err = s.ListPendingInvitationsByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestExpireInvitations(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000007")
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	inv := &contracts.Invitation{
		ID:          uuid.New(),
		ContractID:  c.ID,
		TokenHash:   "c775e7b757ede630cd0aa1113bd102661ab38829ca52a6422ab782862f268646",
		TenantEmail: "leo@example.com",
		TenantName:  "Leo Vidal",
		Method:      contracts.InvitationByEmail,
		Status:      contracts.InvitationSent,
		CreatedBy:   c.LandlordID,
		CreatedAt:   testStamp,
		ExpiresAt:   testStamp.Add(7 * 24 * time.Hour),
	}
	c.State = workflow.StateTenantInvited
	require.NoError(t, s.InsertInvitation(ctx, c, inv))

	openedAt := testStamp.Add(time.Hour)
	inv.Status = contracts.InvitationOpened
	inv.OpenedAt = &openedAt
	require.NoError(t, s.UpdateInvitation(ctx, inv))

	// before expiry nothing changes
	n, err := s.ExpireInvitations(ctx, inv.ExpiresAt.Add(-time.Second))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.ExpireInvitations(ctx, inv.ExpiresAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, found, err := s.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, contracts.InvitationExpired, got.Status)
}

func TestObjectionAcceptance(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000008")
	tenantID := uuid.New()
	c.TenantID = &tenantID
	c.State = workflow.StateTenantReviewing
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	submittedAt := testStamp.Add(time.Hour)
	o := &contracts.Objection{
		ID:             uuid.New(),
		ContractID:     c.ID,
		ObjectedBy:     tenantID,
		ObjectorRole:   workflow.RoleTenant,
		FieldReference: "economic_terms.monthly_rent",
		CurrentValue:   json.Number("1250.00"),
		ProposedValue:  json.Number("1100.00"),
		Justification:  "similar flats in the street go for less",
		Priority:       contracts.ObjectionPriorityMedium,
		Status:         contracts.ObjectionPending,
		SubmittedAt:    submittedAt,
	}
	c.State = workflow.StateObjectionsPending
	c.ObjectionsCount = 1
	c.HasPendingObjections = true
	c.LastObjectionDate = &submittedAt
	c.UpdatedAt = submittedAt
	submitted := contracts.NewHistoryEntry(
		c.ID, contracts.ActionObjectionSubmitted, tenantID.String(), workflow.RoleTenant, submittedAt, "objection submitted")
	require.NoError(t, s.InsertObjection(ctx, c, o, submitted))

	got, found, err := s.GetObjection(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, o, got)

	overdue, err := s.ListOverdueObjections(ctx, submittedAt.Add(-time.Second))
	require.NoError(t, err)
	require.Empty(t, overdue)
	overdue, err = s.ListOverdueObjections(ctx, submittedAt)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	// accepting applies the proposed value and closes the objection atomically
	resolvedAt := submittedAt.Add(2 * time.Hour)
	require.True(t, contracts.ApplyFieldReference(c, o.FieldReference, o.ProposedValue))
	c.HasPendingObjections = false
	c.State = workflow.StateNegotiationInProgress
	c.UpdatedAt = resolvedAt
	o.Status = contracts.ObjectionAccepted
	o.ResponderID = &c.LandlordID
	o.ResponseNote = "fair point, lowering the rent"
	o.ReviewedAt = &resolvedAt
	o.ResolvedAt = &resolvedAt
	responded := contracts.NewHistoryEntry(
		c.ID, contracts.ActionObjectionResponded, c.LandlordID.String(), workflow.RoleLandlord, resolvedAt, "objection accepted")
	require.NoError(t, s.UpdateContractWithObjection(ctx, c, o, responded))

	gotContract, _, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, json.Number("1100.00"), gotContract.EconomicTerms["monthly_rent"])
	require.False(t, gotContract.HasPendingObjections)

	gotObjection, _, err := s.GetObjection(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.ObjectionAccepted, gotObjection.Status)
	require.NotNil(t, gotObjection.ResolvedAt)

	list, err := s.ListObjections(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000009")
	tenantID := uuid.New()
	c.TenantID = &tenantID
	c.State = workflow.StateReadyToSign
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	signedAt := testStamp.Add(time.Hour)
	sig := &contracts.Signature{
		ID:                uuid.New(),
		ContractID:        c.ID,
		SignerID:          tenantID,
		SignerRole:        workflow.RoleTenant,
		SignatureData:     contracts.Payload{"stroke_hash": "4f07bd8e51c1"},
		AuthLevel:         contracts.AuthEnhanced,
		AuthMethods:       []string{"password", "otp"},
		BiometricPayload:  []byte{0x01, 0x02, 0x03},
		DeviceFingerprint: "fp-7c21",
		UserAgent:         "test-agent",
		IP:                "203.0.113.7",
		SignedAt:          signedAt,
	}
	c.TenantSigned = true
	c.TenantSignedAt = &signedAt
	c.UpdatedAt = signedAt
	require.NoError(t, s.InsertSignature(ctx, c, sig, contracts.NewHistoryEntry(
		c.ID, contracts.ActionContractSigned, tenantID.String(), workflow.RoleTenant, signedAt, "tenant signed")))

	list, err := s.ListSignatures(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, *sig, list[0])

	gotContract, _, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, gotContract.TenantSigned)
}

func TestGuaranteeVerification(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	c := testContract("VH-2026-000010")
	c.Type = contracts.TypeRentalCommercial
	require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))

	amount := int64(500000)
	effective := testStamp.Add(24 * time.Hour)
	g := &contracts.Guarantee{
		ID:            uuid.New(),
		ContractID:    c.ID,
		Kind:          contracts.GuaranteeBank,
		AmountCents:   &amount,
		Currency:      "EUR",
		PolicyNumber:  "BG-2026-0042",
		Issuer:        "Banco Hipotecario",
		EffectiveDate: &effective,
		Status:        contracts.GuaranteeStatusPending,
		CreatedAt:     testStamp,
	}
	c.UpdatedAt = testStamp.Add(time.Minute)
	require.NoError(t, s.InsertGuarantee(ctx, c, g, contracts.NewHistoryEntry(
		c.ID, contracts.ActionGuaranteeAdded, c.LandlordID.String(), workflow.RoleLandlord, testStamp, "guarantee added")))

	got, found, err := s.GetGuarantee(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, g, got)

	verifiedAt := testStamp.Add(48 * time.Hour)
	g.Status = contracts.GuaranteeStatusActive
	g.Verified = true
	g.VerifiedBy = &c.LandlordID
	g.VerifiedAt = &verifiedAt
	c.UpdatedAt = verifiedAt
	require.NoError(t, s.UpdateContractWithGuarantee(ctx, c, g, contracts.NewHistoryEntry(
		c.ID, contracts.ActionGuaranteeVerified, c.LandlordID.String(), workflow.RoleLandlord, verifiedAt, "guarantee verified")))

	got, _, err = s.GetGuarantee(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, contracts.GuaranteeStatusActive, got.Status)

	list, err := s.ListGuarantees(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestContractSchedulesAndStats(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	landlordID := uuid.New()

	start := testStamp.Add(24 * time.Hour)
	end := start.AddDate(1, 0, 0)
	published := testContract("VH-2026-000011")
	published.LandlordID = landlordID
	published.State = workflow.StatePublished
	published.Published = true
	published.StartDate = &start
	published.EndDate = &end
	draft := testContract("VH-2026-000012")
	draft.LandlordID = landlordID
	for _, c := range []*contracts.Contract{published, draft} {
		require.NoError(t, s.InsertContract(ctx, c, createdEntry(c)))
	}

	due, err := s.ListContractsDueForActivation(ctx, start.Add(-time.Second))
	require.NoError(t, err)
	require.Empty(t, due)
	due, err = s.ListContractsDueForActivation(ctx, start)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, published.ID, due[0].ID)

	published.State = workflow.StateActive
	require.NoError(t, s.UpdateContract(ctx, published))

	expiring, err := s.ListContractsDueForExpiry(ctx, end)
	require.NoError(t, err)
	require.Len(t, expiring, 1)

	// an open objection counts as pending, and as overdue past the cutoff
	o := &contracts.Objection{
		ID:             uuid.New(),
		ContractID:     draft.ID,
		ObjectedBy:     landlordID,
		ObjectorRole:   workflow.RoleLandlord,
		FieldReference: "economic_terms.monthly_rent",
		ProposedValue:  json.Number("990.00"),
		Justification:  "pricing feedback from the listing",
		Priority:       contracts.ObjectionPriorityLow,
		Status:         contracts.ObjectionPending,
		SubmittedAt:    testStamp,
	}
	draft.ObjectionsCount = 1
	draft.HasPendingObjections = true
	require.NoError(t, s.InsertObjection(ctx, draft, o))

	stats, err := s.ContractStats(ctx, landlordID, testStamp.Add(contracts.OverdueObjectionAge))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Published)
	require.Equal(t, 1, stats.ByState[workflow.StateActive])
	require.Equal(t, 1, stats.ByState[workflow.StateDraft])
	require.Equal(t, 1, stats.PendingObjections)
	require.Equal(t, 1, stats.OverdueObjections)
	wantCompletion := (published.CompletionPercentage() + draft.CompletionPercentage()) / 2
	require.Equal(t, wantCompletion, stats.AverageCompletion)
}
