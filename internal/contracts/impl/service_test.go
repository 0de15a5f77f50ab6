package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/pkg/clock"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/pdfrender"
	sqlstoreimpl "github.com/viviendahub/go-viviendahub/pkg/sqlstore/impl"
	"github.com/viviendahub/go-viviendahub/pkg/tokens"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
	"github.com/viviendahub/go-viviendahub/tests"
)

type fakeNotifier struct {
	mu      sync.Mutex
	created []notifications.CreateParams
}

func (n *fakeNotifier) Create(
	_ context.Context, params notifications.CreateParams,
) (*notifications.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, params)
	return &notifications.Notification{ID: uuid.New()}, nil
}

func (n *fakeNotifier) byTemplate(template string) []notifications.CreateParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifications.CreateParams
	for _, p := range n.created {
		if p.Template == template {
			out = append(out, p)
		}
	}
	return out
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []pdfrender.Document
}

func (r *fakeRenderer) Render(_ context.Context, doc pdfrender.Document) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, doc)
	return []byte("%PDF-1.7 " + doc.ContractNumber), nil
}

type fixture struct {
	engine   *Engine
	notifier *fakeNotifier
	renderer *fakeRenderer
	clock    *clock.Manual

	landlord  userdir.User
	tenant    userdir.User
	guarantor userdir.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlstoreimpl.NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manual := clock.NewManual(time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC))
	landlord := userdir.User{ID: uuid.New(), Email: "luis@example.com", Name: "Luis Prado", Role: userdir.RoleLandlord}
	tenant := userdir.User{ID: uuid.New(), Email: "ana@example.com", Name: "Ana Torres", Role: userdir.RoleTenant}
	guarantor := userdir.User{ID: uuid.New(), Email: "pilar@example.com", Name: "Pilar Vega", Role: userdir.RoleTenant}
	directory := userdir.NewStaticDirectory()
	directory.Put(landlord, "")
	directory.Put(tenant, "")
	directory.Put(guarantor, "")

	notifier := &fakeNotifier{}
	renderer := &fakeRenderer{}
	engine := NewEngine(store, directory, notifier, renderer, WithClock(manual))
	return &fixture{
		engine:    engine,
		notifier:  notifier,
		renderer:  renderer,
		clock:     manual,
		landlord:  landlord,
		tenant:    tenant,
		guarantor: guarantor,
	}
}

func (f *fixture) createDraft(t *testing.T, typ contracts.Type) *contracts.Contract {
	t.Helper()
	c, err := f.engine.CreateDraft(context.Background(), contracts.CreateDraftParams{
		LandlordID:   f.landlord.ID,
		PropertyID:   uuid.New(),
		Type:         typ,
		PropertyData: contracts.Payload{"address": "Calle Serrano 21, Madrid"},
	})
	require.NoError(t, err)
	return c
}

func landlordPayload() contracts.Payload {
	return contracts.Payload{
		"full_name":   "Luis Prado",
		"document_id": "12345678Z",
		"email":       "luis@example.com",
		"phone":       "+34600111222",
	}
}

func tenantPayload() contracts.Payload {
	return contracts.Payload{
		"full_name":   "Ana Torres",
		"document_id": "87654321X",
		"email":       "ana@example.com",
		"phone":       "+34600333444",
	}
}

func economicTerms() contracts.Payload {
	return contracts.Payload{"monthly_rent": "950", "security_deposit": "1900"}
}

func contractTerms() contracts.Payload {
	return contracts.Payload{"lease_duration_months": 12, "start_date": "2025-06-01"}
}

// inviteTenant fills the landlord data and issues the invitation in one call.
func (f *fixture) inviteTenant(t *testing.T, contractID uuid.UUID) *contracts.InvitationGrant {
	t.Helper()
	_, grant, err := f.engine.CompleteLandlordData(context.Background(), contracts.CompleteLandlordDataParams{
		ContractID:    contractID,
		LandlordID:    f.landlord.ID,
		LandlordData:  landlordPayload(),
		EconomicTerms: economicTerms(),
		ContractTerms: contractTerms(),
		Invite: &contracts.InviteContact{
			Email: f.tenant.Email,
			Name:  f.tenant.Name,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, grant)
	return grant
}

func (f *fixture) acceptInvitation(t *testing.T, token string) *contracts.Contract {
	t.Helper()
	c, err := f.engine.AcceptInvitation(context.Background(), contracts.AcceptInvitationParams{
		Token:       token,
		TenantID:    f.tenant.ID,
		TenantEmail: f.tenant.Email,
	})
	require.NoError(t, err)
	return c
}

// toLandlordReviewing drives a fresh draft through invitation acceptance and
// complete tenant data.
func (f *fixture) toLandlordReviewing(t *testing.T, typ contracts.Type) *contracts.Contract {
	t.Helper()
	c := f.createDraft(t, typ)
	grant := f.inviteTenant(t, c.ID)
	f.acceptInvitation(t, grant.Token)
	c, err := f.engine.CompleteTenantData(context.Background(), contracts.CompleteTenantDataParams{
		ContractID: c.ID,
		TenantID:   f.tenant.ID,
		TenantData: tenantPayload(),
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateLandlordReviewing, c.State)
	return c
}

func (f *fixture) approveBoth(t *testing.T, contractID uuid.UUID) *contracts.Contract {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Approve(ctx, contracts.ApproveParams{ContractID: contractID, UserID: f.landlord.ID})
	require.NoError(t, err)
	c, err := f.engine.Approve(ctx, contracts.ApproveParams{ContractID: contractID, UserID: f.tenant.ID})
	require.NoError(t, err)
	return c
}

func TestCreateDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.createDraft(t, contracts.TypeRentalUrban)
	require.Equal(t, workflow.StateDraft, c.State)
	require.True(t, tokens.ValidContractNumber(c.ContractNumber))
	require.Equal(t, "VH-2025-000001", c.ContractNumber)

	history, err := f.engine.History(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, contracts.ActionContractCreated, history[0].ActionType)
	require.True(t, history[0].VerifyIntegrity())

	c2 := f.createDraft(t, contracts.TypeRentalUrban)
	require.Equal(t, "VH-2025-000002", c2.ContractNumber)
}

func TestHappyPathToPublished(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)
	require.Len(t, f.notifier.byTemplate("invitation_accepted"), 1)

	c = f.approveBoth(t, c.ID)
	require.Equal(t, workflow.StateReadyToSign, c.State)

	auth := []string{"password", "otp"}
	_, err := f.engine.Sign(ctx, contracts.SignParams{
		ContractID: c.ID, UserID: f.tenant.ID, AuthMethods: auth,
	})
	require.NoError(t, err)
	c, err = f.engine.Sign(ctx, contracts.SignParams{
		ContractID: c.ID, UserID: f.landlord.ID, AuthMethods: auth,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateFullySigned, c.State)
	require.NotNil(t, c.FullySignedAt)
	require.Len(t, f.notifier.byTemplate("contract_fully_signed"), 2)

	c, err = f.engine.Publish(ctx, contracts.PublishParams{ContractID: c.ID, LandlordID: f.landlord.ID})
	require.NoError(t, err)
	require.Equal(t, workflow.StatePublished, c.State)
	require.True(t, c.Published)
	require.NotNil(t, c.StartDate)
	require.NotNil(t, c.EndDate)
	require.Equal(t, c.StartDate.AddDate(0, 12, 0), *c.EndDate)

	verification, err := f.engine.VerifyHistory(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.True(t, verification.Valid)
	require.True(t, verification.Entries >= 10)

	sigs, err := f.engine.ListSignatures(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
}

func TestOutOfOrderSigningRejectedWithoutTrace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)
	c = f.approveBoth(t, c.ID)
	require.Equal(t, workflow.StateReadyToSign, c.State)

	before, err := f.engine.History(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)

	_, err = f.engine.Sign(ctx, contracts.SignParams{
		ContractID: c.ID, UserID: f.landlord.ID, AuthMethods: []string{"password", "otp"},
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeOutOfOrder, errors.CodeOf(err))

	after, err := f.engine.History(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))

	c, err = f.engine.Get(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.False(t, c.LandlordSigned)
	require.Equal(t, workflow.StateReadyToSign, c.State)
}

func TestSigningRequiresAuthLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)
	c = f.approveBoth(t, c.ID)

	// Urban rentals demand enhanced assurance; a bare password is basic.
	_, err := f.engine.Sign(ctx, contracts.SignParams{
		ContractID: c.ID, UserID: f.tenant.ID, AuthMethods: []string{"password"},
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}

func TestObjectionAcceptAppliesField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)

	o, err := f.engine.SubmitObjection(ctx, contracts.SubmitObjectionParams{
		ContractID:     c.ID,
		UserID:         f.tenant.ID,
		FieldReference: "economic_terms.monthly_rent",
		ProposedValue:  "900",
		Justification:  "Comparable flats in the street rent for less",
		Priority:       contracts.ObjectionPriorityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, "950", o.CurrentValue)

	c, err = f.engine.Get(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateObjectionsPending, c.State)
	require.True(t, c.HasPendingObjections)
	require.Len(t, f.notifier.byTemplate("objection_submitted"), 1)

	o, err = f.engine.RespondObjection(ctx, contracts.RespondObjectionParams{
		ObjectionID: o.ID,
		UserID:      f.landlord.ID,
		Response:    contracts.ResponseAccepted,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.ObjectionAccepted, o.Status)
	require.False(t, o.RequiresManualAmendment)

	c, err = f.engine.Get(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, "900", c.EconomicTerms["monthly_rent"])
	require.Equal(t, workflow.StateBothReviewing, c.State)
	require.False(t, c.HasPendingObjections)
	require.Len(t, f.notifier.byTemplate("objection_responded"), 1)
}

func TestObjectionUnknownFieldNeedsManualAmendment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)

	o, err := f.engine.SubmitObjection(ctx, contracts.SubmitObjectionParams{
		ContractID:     c.ID,
		UserID:         f.tenant.ID,
		FieldReference: "economic_terms.parking_fee",
		ProposedValue:  "0",
		Justification:  "Parking was never part of the discussed terms",
	})
	require.NoError(t, err)

	o, err = f.engine.RespondObjection(ctx, contracts.RespondObjectionParams{
		ObjectionID: o.ID,
		UserID:      f.landlord.ID,
		Response:    contracts.ResponseAccepted,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.ObjectionAccepted, o.Status)
	require.True(t, o.RequiresManualAmendment)
}

func TestObjectionGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)

	_, err := f.engine.SubmitObjection(ctx, contracts.SubmitObjectionParams{
		ContractID:     c.ID,
		UserID:         f.tenant.ID,
		FieldReference: "economic_terms.monthly_rent",
		ProposedValue:  "900",
		Justification:  "too short",
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	o, err := f.engine.SubmitObjection(ctx, contracts.SubmitObjectionParams{
		ContractID:     c.ID,
		UserID:         f.tenant.ID,
		FieldReference: "economic_terms.monthly_rent",
		ProposedValue:  "900",
		Justification:  "Comparable flats in the street rent for less",
	})
	require.NoError(t, err)

	_, err = f.engine.RespondObjection(ctx, contracts.RespondObjectionParams{
		ObjectionID: o.ID,
		UserID:      f.tenant.ID,
		Response:    contracts.ResponseRejected,
	})
	require.Error(t, err)
	require.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))

	// The objector can withdraw instead.
	o, err = f.engine.WithdrawObjection(ctx, contracts.WithdrawObjectionParams{
		ObjectionID: o.ID, UserID: f.tenant.ID,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.ObjectionWithdrawn, o.Status)

	c, err = f.engine.Get(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.False(t, c.HasPendingObjections)
	require.Equal(t, workflow.StateBothReviewing, c.State)
}

func TestInvitationVerifyAcceptResend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.createDraft(t, contracts.TypeRentalUrban)
	grant := f.inviteTenant(t, c.ID)

	_, err := f.engine.VerifyInvitation(ctx, "not-a-token")
	require.Error(t, err)
	require.Equal(t, errors.CodeInvitationInvalid, errors.CodeOf(err))

	view, err := f.engine.VerifyInvitation(ctx, grant.Token)
	require.NoError(t, err)
	require.Equal(t, "Calle Serrano 21, Madrid", view.PropertyAddress)
	require.Equal(t, "Luis Prado", view.LandlordName)
	require.NotNil(t, view.OpenedAt)

	rotated, err := f.engine.ResendInvitation(ctx, contracts.ResendInvitationParams{
		ContractID: c.ID, LandlordID: f.landlord.ID,
	})
	require.NoError(t, err)
	require.NotEqual(t, grant.Token, rotated.Token)
	require.Equal(t, 1, rotated.Invitation.Attempts)

	_, err = f.engine.VerifyInvitation(ctx, grant.Token)
	require.Error(t, err)
	require.Equal(t, errors.CodeInvitationInvalid, errors.CodeOf(err))

	_, err = f.engine.AcceptInvitation(ctx, contracts.AcceptInvitationParams{
		Token:       rotated.Token,
		TenantID:    f.tenant.ID,
		TenantEmail: "somebody.else@example.com",
	})
	require.Error(t, err)
	require.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))

	accepted := f.acceptInvitation(t, rotated.Token)
	require.Equal(t, workflow.StateTenantReviewing, accepted.State)
	require.NotNil(t, accepted.TenantID)
	require.Equal(t, f.tenant.ID, *accepted.TenantID)

	_, err = f.engine.AcceptInvitation(ctx, contracts.AcceptInvitationParams{
		Token:       rotated.Token,
		TenantID:    f.tenant.ID,
		TenantEmail: f.tenant.Email,
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeInvitationInvalid, errors.CodeOf(err))
}

func TestInvitationExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.createDraft(t, contracts.TypeRentalUrban)
	grant := f.inviteTenant(t, c.ID)

	pending, err := f.engine.PendingInvitations(ctx, f.tenant.Email)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	f.clock.Advance(8 * 24 * time.Hour)

	_, err = f.engine.VerifyInvitation(ctx, grant.Token)
	require.Error(t, err)
	require.Equal(t, errors.CodeInvitationInvalid, errors.CodeOf(err))

	pending, err = f.engine.PendingInvitations(ctx, f.tenant.Email)
	require.NoError(t, err)
	require.Empty(t, pending)

	// The lookup already marked this one expired; the sweep finds nothing new.
	expired, err := f.engine.CleanupExpiredInvitations(ctx)
	require.NoError(t, err)
	require.Zero(t, expired)
}

func TestTenantDataPendingPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.createDraft(t, contracts.TypeRentalUrban)
	grant := f.inviteTenant(t, c.ID)
	f.acceptInvitation(t, grant.Token)

	partial := tenantPayload()
	delete(partial, "phone")
	c, err := f.engine.CompleteTenantData(ctx, contracts.CompleteTenantDataParams{
		ContractID: c.ID, TenantID: f.tenant.ID, TenantData: partial,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateTenantDataPending, c.State)

	c, err = f.engine.CompleteTenantData(ctx, contracts.CompleteTenantDataParams{
		ContractID: c.ID, TenantID: f.tenant.ID,
		TenantData: contracts.Payload{"phone": "+34600333444"},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateTenantAuthentication, c.State)

	_, err = f.engine.VerifyIdentity(ctx, contracts.VerifyIdentityParams{
		ContractID: c.ID, TenantID: f.tenant.ID, Methods: []string{"password"},
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	c, err = f.engine.VerifyIdentity(ctx, contracts.VerifyIdentityParams{
		ContractID: c.ID, TenantID: f.tenant.ID, Methods: []string{"password", "otp"},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateLandlordReviewing, c.State)
	require.NotNil(t, c.TenantIdentityVerifiedAt)
}

func TestGuaranteeGateForCommercial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalCommercial)
	c = f.approveBoth(t, c.ID)

	// Both approved, but commercial contracts need a verified guarantee first.
	require.Equal(t, workflow.StateBothReviewing, c.State)
	require.True(t, c.TenantApproved)
	require.True(t, c.LandlordApproved)

	amount := int64(5_000_00)
	g, err := f.engine.AddGuarantee(ctx, contracts.AddGuaranteeParams{
		ContractID:  c.ID,
		UserID:      f.tenant.ID,
		Kind:        contracts.GuaranteeBank,
		AmountCents: &amount,
		Currency:    "EUR",
		Issuer:      "Banco de Prueba",
	})
	require.NoError(t, err)
	require.False(t, g.Verified)

	c, err = f.engine.Get(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateBothReviewing, c.State)

	_, err = f.engine.VerifyGuarantee(ctx, contracts.VerifyGuaranteeParams{
		GuaranteeID: g.ID, VerifierID: f.tenant.ID,
	})
	require.Error(t, err)
	require.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))

	g, err = f.engine.VerifyGuarantee(ctx, contracts.VerifyGuaranteeParams{
		GuaranteeID: g.ID, VerifierID: f.landlord.ID,
	})
	require.NoError(t, err)
	require.True(t, g.Verified)
	require.Equal(t, contracts.GuaranteeStatusActive, g.Status)

	c, err = f.engine.Get(ctx, f.tenant.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateReadyToSign, c.State)
}

func TestGuarantorSignsSecond(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)

	_, err := f.engine.AddGuarantee(ctx, contracts.AddGuaranteeParams{
		ContractID:  c.ID,
		UserID:      f.tenant.ID,
		Kind:        contracts.GuaranteePersonalCosigner,
		GuarantorID: &f.guarantor.ID,
	})
	require.NoError(t, err)

	c = f.approveBoth(t, c.ID)
	require.Equal(t, workflow.StateReadyToSign, c.State)

	auth := []string{"password", "otp"}
	_, err = f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.tenant.ID, AuthMethods: auth})
	require.NoError(t, err)

	// The landlord must wait for the guarantor.
	_, err = f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.landlord.ID, AuthMethods: auth})
	require.Error(t, err)
	require.Equal(t, errors.CodeOutOfOrder, errors.CodeOf(err))

	_, err = f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.guarantor.ID, AuthMethods: auth})
	require.NoError(t, err)
	c, err = f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.landlord.ID, AuthMethods: auth})
	require.NoError(t, err)
	require.Equal(t, workflow.StateFullySigned, c.State)
}

func TestCancelRequiresReasonAndParty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.createDraft(t, contracts.TypeRentalUrban)

	_, err := f.engine.Cancel(ctx, contracts.CancelParams{ContractID: c.ID, UserID: f.landlord.ID})
	require.Error(t, err)
	require.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	_, err = f.engine.Cancel(ctx, contracts.CancelParams{
		ContractID: c.ID, UserID: f.tenant.ID, Reason: "changed my mind",
	})
	require.Error(t, err)
	require.Equal(t, errors.CodePermissionDenied, errors.CodeOf(err))

	c, err = f.engine.Cancel(ctx, contracts.CancelParams{
		ContractID: c.ID, UserID: f.landlord.ID, Reason: "property withdrawn from the market",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StateCancelled, c.State)

	_, err = f.engine.Cancel(ctx, contracts.CancelParams{
		ContractID: c.ID, UserID: f.landlord.ID, Reason: "again",
	})
	require.Error(t, err)
	require.Equal(t, errors.CodeInvalidTransition, errors.CodeOf(err))
}

func TestActivationAndExpirySweeps(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)
	c = f.approveBoth(t, c.ID)
	auth := []string{"password", "otp"}
	_, err := f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.tenant.ID, AuthMethods: auth})
	require.NoError(t, err)
	_, err = f.engine.Sign(ctx, contracts.SignParams{ContractID: c.ID, UserID: f.landlord.ID, AuthMethods: auth})
	require.NoError(t, err)
	c, err = f.engine.Publish(ctx, contracts.PublishParams{ContractID: c.ID, LandlordID: f.landlord.ID})
	require.NoError(t, err)

	activated, err := f.engine.ActivateDue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), activated)

	c, err = f.engine.Get(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateActive, c.State)

	expired, err := f.engine.ExpireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, expired)

	f.clock.Advance(370 * 24 * time.Hour)
	expired, err = f.engine.ExpireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	c, err = f.engine.Get(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StateExpired, c.State)

	history, err := f.engine.History(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	var actions []contracts.ActionType
	for _, entry := range history {
		actions = append(actions, entry.ActionType)
	}
	require.Contains(t, actions, contracts.ActionContractActivated)
	require.Contains(t, actions, contracts.ActionContractExpired)
}

func TestRenderPDFPersistsHandle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c := f.toLandlordReviewing(t, contracts.TypeRentalUrban)
	f.clock.Advance(time.Minute)

	pdf, err := f.engine.RenderPDF(ctx, contracts.RenderPDFParams{
		ContractID: c.ID, UserID: f.landlord.ID, IncludeSignatures: true, Persist: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	require.Len(t, f.renderer.calls, 1)
	require.True(t, f.renderer.calls[0].Draft)
	require.Len(t, f.renderer.calls[0].Signatures, 2)

	c, err = f.engine.Get(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.NotEmpty(t, c.PDFHandle)

	history, err := f.engine.History(ctx, f.landlord.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.ActionPDFGenerated, history[len(history)-1].ActionType)
}

func TestStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.createDraft(t, contracts.TypeRentalUrban)
	f.toLandlordReviewing(t, contracts.TypeRentalUrban)

	stats, err := f.engine.LandlordStats(ctx, f.landlord.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.ByState[workflow.StateDraft])
	require.Equal(t, 1, stats.ByState[workflow.StateLandlordReviewing])
}
