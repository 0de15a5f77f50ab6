package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// ContractController handles the rental contract endpoints.
type ContractController struct {
	engine contracts.Service
}

// NewContractController creates a new ContractController.
func NewContractController(engine contracts.Service) *ContractController {
	return &ContractController{engine: engine}
}

type createDraftRequest struct {
	PropertyID     uuid.UUID         `json:"property_id"`
	ContractType   contracts.Type    `json:"contract_type"`
	PropertyData   contracts.Payload `json:"property_data"`
	EconomicTerms  contracts.Payload `json:"economic_terms"`
	ContractTerms  contracts.Payload `json:"contract_terms"`
	SpecialClauses []string          `json:"special_clauses"`
}

// CreateDraft handles POST /api/v1/contracts.
func (c *ContractController) CreateDraft(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var req createDraftRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.CreateDraft(r.Context(), contracts.CreateDraftParams{
		LandlordID:     user.ID,
		PropertyID:     req.PropertyID,
		Type:           req.ContractType,
		PropertyData:   req.PropertyData,
		EconomicTerms:  req.EconomicTerms,
		ContractTerms:  req.ContractTerms,
		SpecialClauses: req.SpecialClauses,
		Meta:           requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, contract)
}

// List handles GET /api/v1/contracts.
func (c *ContractController) List(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	filter := contracts.ListFilter{
		State:  workflow.State(r.URL.Query().Get("state")),
		Type:   contracts.Type(r.URL.Query().Get("type")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	list, err := c.engine.List(r.Context(), user.ID, filter)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Get handles GET /api/v1/contracts/{id}.
func (c *ContractController) Get(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Get(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type inviteContactRequest struct {
	Email           string                     `json:"email"`
	Phone           string                     `json:"phone"`
	Name            string                     `json:"name"`
	Method          contracts.InvitationMethod `json:"method"`
	PersonalMessage string                     `json:"personal_message"`
	TTLDays         int                        `json:"ttl_days"`
}

func (req *inviteContactRequest) contact() contracts.InviteContact {
	return contracts.InviteContact{
		Email:           req.Email,
		Phone:           req.Phone,
		Name:            req.Name,
		Method:          req.Method,
		PersonalMessage: req.PersonalMessage,
		TTLDays:         req.TTLDays,
	}
}

type completeLandlordDataRequest struct {
	LandlordData  contracts.Payload     `json:"landlord_data"`
	EconomicTerms contracts.Payload     `json:"economic_terms"`
	ContractTerms contracts.Payload     `json:"contract_terms"`
	Invite        *inviteContactRequest `json:"invite,omitempty"`
}

type completeLandlordDataResponse struct {
	Contract   *contracts.Contract       `json:"contract"`
	Invitation *contracts.InvitationGrant `json:"invitation,omitempty"`
}

// CompleteLandlordData handles POST /api/v1/contracts/{id}/landlord-data.
// The invitation token, when an invite rides along, is returned here exactly
// once and never persisted in plaintext.
func (c *ContractController) CompleteLandlordData(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req completeLandlordDataRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	params := contracts.CompleteLandlordDataParams{
		ContractID:    contractID,
		LandlordID:    user.ID,
		LandlordData:  req.LandlordData,
		EconomicTerms: req.EconomicTerms,
		ContractTerms: req.ContractTerms,
		Meta:          requestMeta(r),
	}
	if req.Invite != nil {
		contact := req.Invite.contact()
		params.Invite = &contact
	}
	contract, grant, err := c.engine.CompleteLandlordData(r.Context(), params)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, completeLandlordDataResponse{Contract: contract, Invitation: grant})
}

type completeTenantDataRequest struct {
	TenantData contracts.Payload `json:"tenant_data"`
}

// CompleteTenantData handles POST /api/v1/contracts/{id}/tenant-data.
func (c *ContractController) CompleteTenantData(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req completeTenantDataRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.CompleteTenantData(r.Context(), contracts.CompleteTenantDataParams{
		ContractID: contractID,
		TenantID:   user.ID,
		TenantData: req.TenantData,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type verifyIdentityRequest struct {
	Methods []string `json:"methods"`
}

// VerifyIdentity handles POST /api/v1/contracts/{id}/identity.
func (c *ContractController) VerifyIdentity(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req verifyIdentityRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.VerifyIdentity(r.Context(), contracts.VerifyIdentityParams{
		ContractID: contractID,
		TenantID:   user.ID,
		Methods:    req.Methods,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

// CreateInvitation handles POST /api/v1/contracts/{id}/invitations.
func (c *ContractController) CreateInvitation(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req inviteContactRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	grant, err := c.engine.CreateInvitation(r.Context(), contracts.CreateInvitationParams{
		ContractID: contractID,
		LandlordID: user.ID,
		Contact:    req.contact(),
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, grant)
}

// ResendInvitation handles POST /api/v1/contracts/{id}/invitations/resend.
func (c *ContractController) ResendInvitation(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	grant, err := c.engine.ResendInvitation(r.Context(), contracts.ResendInvitationParams{
		ContractID: contractID,
		LandlordID: user.ID,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, grant)
}

type submitObjectionRequest struct {
	FieldReference string                      `json:"field_reference"`
	ProposedValue  interface{}                 `json:"proposed_value"`
	Justification  string                      `json:"justification"`
	Priority       contracts.ObjectionPriority `json:"priority"`
}

// SubmitObjection handles POST /api/v1/contracts/{id}/objections.
func (c *ContractController) SubmitObjection(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req submitObjectionRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	objection, err := c.engine.SubmitObjection(r.Context(), contracts.SubmitObjectionParams{
		ContractID:     contractID,
		UserID:         user.ID,
		FieldReference: req.FieldReference,
		ProposedValue:  req.ProposedValue,
		Justification:  req.Justification,
		Priority:       req.Priority,
		Meta:           requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, objection)
}

// ListObjections handles GET /api/v1/contracts/{id}/objections.
func (c *ContractController) ListObjections(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	list, err := c.engine.ListObjections(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

type respondObjectionRequest struct {
	Response        contracts.ObjectionResponse `json:"response"`
	Note            string                      `json:"note"`
	CounterProposal interface{}                 `json:"counter_proposal"`
}

// RespondObjection handles POST /api/v1/objections/{id}/response.
func (c *ContractController) RespondObjection(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	objectionID, err := pathUUID(r, "id")
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req respondObjectionRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	objection, err := c.engine.RespondObjection(r.Context(), contracts.RespondObjectionParams{
		ObjectionID:     objectionID,
		UserID:          user.ID,
		Response:        req.Response,
		Note:            req.Note,
		CounterProposal: req.CounterProposal,
		Meta:            requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, objection)
}

// WithdrawObjection handles POST /api/v1/objections/{id}/withdraw.
func (c *ContractController) WithdrawObjection(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	objectionID, err := pathUUID(r, "id")
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	objection, err := c.engine.WithdrawObjection(r.Context(), contracts.WithdrawObjectionParams{
		ObjectionID: objectionID,
		UserID:      user.ID,
		Meta:        requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, objection)
}

// Approve handles POST /api/v1/contracts/{id}/approve.
func (c *ContractController) Approve(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Approve(r.Context(), contracts.ApproveParams{
		ContractID: contractID,
		UserID:     user.ID,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type signRequest struct {
	SignatureData     contracts.Payload `json:"signature_data"`
	AuthMethods       []string          `json:"auth_methods"`
	BiometricPayload  []byte            `json:"biometric_payload,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
}

// Sign handles POST /api/v1/contracts/{id}/sign.
func (c *ContractController) Sign(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req signRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Sign(r.Context(), contracts.SignParams{
		ContractID:        contractID,
		UserID:            user.ID,
		SignatureData:     req.SignatureData,
		AuthMethods:       req.AuthMethods,
		BiometricPayload:  req.BiometricPayload,
		DeviceFingerprint: req.DeviceFingerprint,
		Meta:              requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type publishRequest struct {
	StartDate *time.Time `json:"start_date,omitempty"`
}

// Publish handles POST /api/v1/contracts/{id}/publish.
func (c *ContractController) Publish(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req publishRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Publish(r.Context(), contracts.PublishParams{
		ContractID: contractID,
		LandlordID: user.ID,
		StartDate:  req.StartDate,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/v1/contracts/{id}/cancel.
func (c *ContractController) Cancel(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req reasonRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Cancel(r.Context(), contracts.CancelParams{
		ContractID: contractID,
		UserID:     user.ID,
		Reason:     req.Reason,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

// Terminate handles POST /api/v1/contracts/{id}/terminate.
func (c *ContractController) Terminate(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req reasonRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.Terminate(r.Context(), contracts.TerminateParams{
		ContractID: contractID,
		UserID:     user.ID,
		Reason:     req.Reason,
		Meta:       requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

type addGuaranteeRequest struct {
	GuarantorID   *uuid.UUID              `json:"guarantor_id,omitempty"`
	Kind          contracts.GuaranteeKind `json:"kind"`
	AmountCents   *int64                  `json:"amount_cents,omitempty"`
	Currency      string                  `json:"currency,omitempty"`
	CoSigner      contracts.Payload       `json:"cosigner,omitempty"`
	PolicyNumber  string                  `json:"policy_number,omitempty"`
	Issuer        string                  `json:"issuer,omitempty"`
	EffectiveDate *time.Time              `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time              `json:"expiry_date,omitempty"`
}

// AddGuarantee handles POST /api/v1/contracts/{id}/guarantees.
func (c *ContractController) AddGuarantee(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	var req addGuaranteeRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	guarantee, err := c.engine.AddGuarantee(r.Context(), contracts.AddGuaranteeParams{
		ContractID:    contractID,
		UserID:        user.ID,
		GuarantorID:   req.GuarantorID,
		Kind:          req.Kind,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		CoSigner:      req.CoSigner,
		PolicyNumber:  req.PolicyNumber,
		Issuer:        req.Issuer,
		EffectiveDate: req.EffectiveDate,
		ExpiryDate:    req.ExpiryDate,
		Meta:          requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, guarantee)
}

// ListGuarantees handles GET /api/v1/contracts/{id}/guarantees.
func (c *ContractController) ListGuarantees(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	list, err := c.engine.ListGuarantees(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// VerifyGuarantee handles POST /api/v1/guarantees/{id}/verify.
func (c *ContractController) VerifyGuarantee(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	guaranteeID, err := pathUUID(r, "id")
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	guarantee, err := c.engine.VerifyGuarantee(r.Context(), contracts.VerifyGuaranteeParams{
		GuaranteeID: guaranteeID,
		VerifierID:  user.ID,
		Meta:        requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, guarantee)
}

// History handles GET /api/v1/contracts/{id}/history.
func (c *ContractController) History(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	entries, err := c.engine.History(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, entries)
}

// VerifyHistory handles GET /api/v1/contracts/{id}/history/verification.
func (c *ContractController) VerifyHistory(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	verification, err := c.engine.VerifyHistory(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, verification)
}

// ListSignatures handles GET /api/v1/contracts/{id}/signatures.
func (c *ContractController) ListSignatures(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	list, err := c.engine.ListSignatures(r.Context(), user.ID, contractID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// RenderPDF handles GET /api/v1/contracts/{id}/pdf.
func (c *ContractController) RenderPDF(rw http.ResponseWriter, r *http.Request) {
	user, contractID, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	query := r.URL.Query()
	pdf, err := c.engine.RenderPDF(r.Context(), contracts.RenderPDFParams{
		ContractID:        contractID,
		UserID:            user.ID,
		IncludeSignatures: query.Get("signatures") != "false",
		IncludeBiometric:  query.Get("biometric") == "true",
		Persist:           query.Get("persist") == "true",
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/pdf")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(pdf)
}

// VerifyInvitation handles GET /api/v1/invitations/{token}. This endpoint is
// public: the invitee has a token but no account yet.
func (c *ContractController) VerifyInvitation(rw http.ResponseWriter, r *http.Request) {
	token := pathVar(r, "token")
	view, err := c.engine.VerifyInvitation(r.Context(), token)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, view)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation handles POST /api/v1/invitations/accept.
func (c *ContractController) AcceptInvitation(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var req acceptInvitationRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	contract, err := c.engine.AcceptInvitation(r.Context(), contracts.AcceptInvitationParams{
		Token:       req.Token,
		TenantID:    user.ID,
		TenantEmail: user.Email,
		Meta:        requestMeta(r),
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, contract)
}

// PendingInvitations handles GET /api/v1/invitations/pending.
func (c *ContractController) PendingInvitations(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.PendingInvitations(r.Context(), user.Email)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// LandlordStats handles GET /api/v1/landlord/stats.
func (c *ContractController) LandlordStats(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	stats, err := c.engine.LandlordStats(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, stats)
}

// TenantStats handles GET /api/v1/tenant/stats.
func (c *ContractController) TenantStats(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	stats, err := c.engine.TenantStats(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, stats)
}
