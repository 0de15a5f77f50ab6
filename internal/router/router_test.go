package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	contractsimpl "github.com/viviendahub/go-viviendahub/internal/contracts/impl"
	matchingimpl "github.com/viviendahub/go-viviendahub/internal/matching/impl"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	notificationsimpl "github.com/viviendahub/go-viviendahub/internal/notifications/impl"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
	"github.com/viviendahub/go-viviendahub/pkg/properties"
	sqlstoreimpl "github.com/viviendahub/go-viviendahub/pkg/sqlstore/impl"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
	"github.com/viviendahub/go-viviendahub/tests"
)

type fixture struct {
	handler http.Handler

	landlord      userdir.User
	tenant        userdir.User
	admin         userdir.User
	landlordToken string
	tenantToken   string
	adminToken    string

	property properties.Property
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlstoreimpl.NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	landlord := userdir.User{
		ID: uuid.New(), Email: "luis@example.com", Name: "Luis Prado", Role: userdir.RoleLandlord,
	}
	tenant := userdir.User{
		ID: uuid.New(), Email: "ana@example.com", Name: "Ana Torres", Role: userdir.RoleTenant,
	}
	admin := userdir.User{
		ID: uuid.New(), Email: "ops@example.com", Name: "Eva Ruiz", Role: userdir.RoleAdmin,
	}
	directory := userdir.NewStaticDirectory()
	directory.Put(landlord, "landlord-token")
	directory.Put(tenant, "tenant-token")
	directory.Put(admin, "admin-token")

	property := properties.Property{
		ID:               uuid.New(),
		LandlordID:       landlord.ID,
		Address:          "Calle Serrano 21, Madrid",
		City:             "Madrid",
		Type:             "urban",
		MonthlyRentCents: 95_000,
		Bedrooms:         2,
		Bathrooms:        1,
		AreaM2:           70,
		Available:        true,
	}
	catalog := properties.NewStaticCatalog()
	catalog.Put(property)

	hub := channels.NewHub()
	manager := channels.NewManager(
		channels.Channel{
			Adapter: channels.NewInApp(hub), Priority: 1, RetryAttempts: 3, RetryDelay: time.Minute,
		},
	)
	dispatcher, err := notificationsimpl.NewDispatcher(store, directory, manager)
	require.NoError(t, err)

	contractEngine := contractsimpl.NewEngine(store, directory, dispatcher, nil)
	matchingEngine := matchingimpl.NewEngine(store, catalog, directory, dispatcher)

	router, err := ConfiguredRouter(Config{
		Contracts:     contractEngine,
		Matching:      matchingEngine,
		Notifications: dispatcher,
		Hub:           hub,
		Directory:     directory,
	})
	require.NoError(t, err)

	return &fixture{
		handler:       router.Handler(),
		landlord:      landlord,
		tenant:        tenant,
		admin:         admin,
		landlordToken: "landlord-token",
		tenantToken:   "tenant-token",
		adminToken:    "admin-token",
		property:      property,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.RemoteAddr = "192.0.2.10:4321"
	r.Header.Set("User-Agent", "viviendahub-test/1.0")
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, r)
	return res
}

func decodeInto(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestHealthAndVersion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.do(t, "GET", "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, "GET", "/api/v1/version", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var version map[string]interface{}
	decodeInto(t, res, &version)
	require.Contains(t, version, "git_commit")
}

func TestAuthenticationGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.do(t, "POST", "/api/v1/contracts", "", map[string]interface{}{})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, "GET", "/api/v1/contracts", "bogus-token", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestContractLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// The landlord drafts a contract.
	res := f.do(t, "POST", "/api/v1/contracts", f.landlordToken, map[string]interface{}{
		"property_id":    f.property.ID,
		"contract_type":  "urban",
		"property_data":  map[string]interface{}{"address": f.property.Address},
		"economic_terms": map[string]interface{}{"monthly_rent": "950", "security_deposit": "1900"},
		"contract_terms": map[string]interface{}{"lease_duration_months": 12, "start_date": "2025-06-01"},
	})
	require.Equal(t, http.StatusCreated, res.Code)
	var contract contracts.Contract
	decodeInto(t, res, &contract)
	require.NotEqual(t, uuid.Nil, contract.ID)
	require.Regexp(t, `^VH-\d{4}-\d{6}$`, contract.ContractNumber)

	contractPath := "/api/v1/contracts/" + contract.ID.String()

	// Completing the landlord side with an invite returns the token once.
	personal := map[string]interface{}{
		"full_name": "Luis Prado", "document_id": "12345678Z",
		"email": "luis@example.com", "phone": "+34600111222",
	}
	res = f.do(t, "POST", contractPath+"/landlord-data", f.landlordToken, map[string]interface{}{
		"landlord_data": personal,
		"invite":        map[string]interface{}{"email": "ana@example.com", "name": "Ana Torres"},
	})
	require.Equal(t, http.StatusOK, res.Code)
	var completed struct {
		Contract   contracts.Contract        `json:"contract"`
		Invitation *contracts.InvitationGrant `json:"invitation"`
	}
	decodeInto(t, res, &completed)
	require.NotNil(t, completed.Invitation)
	require.NotEmpty(t, completed.Invitation.Token)
	require.Equal(t, "TENANT_INVITED", string(completed.Contract.State))

	// The invitee can inspect the invitation without an account.
	res = f.do(t, "GET", "/api/v1/invitations/"+completed.Invitation.Token, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var view contracts.InvitationPublicView
	decodeInto(t, res, &view)
	require.Equal(t, f.property.Address, view.PropertyAddress)

	// A bad token gets the generic invitation error, never a hint.
	res = f.do(t, "GET", "/api/v1/invitations/not-a-real-token", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	var svcErr errors.ServiceError
	decodeInto(t, res, &svcErr)
	require.Equal(t, errors.CodeInvitationInvalid, svcErr.Code)

	// The tenant accepts and becomes a party.
	res = f.do(t, "POST", "/api/v1/invitations/accept", f.tenantToken, map[string]interface{}{
		"token": completed.Invitation.Token,
	})
	require.Equal(t, http.StatusOK, res.Code)
	decodeInto(t, res, &contract)
	require.Equal(t, "TENANT_REVIEWING", string(contract.State))
	require.NotNil(t, contract.TenantID)
	require.Equal(t, f.tenant.ID, *contract.TenantID)

	// Both parties can read the contract now; outsiders cannot.
	res = f.do(t, "GET", contractPath, f.tenantToken, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, "GET", contractPath+"/history", f.landlordToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var history []contracts.HistoryEntry
	decodeInto(t, res, &history)
	require.NotEmpty(t, history)

	// The landlord got an in-app notification about the acceptance.
	res = f.do(t, "GET", "/api/v1/notifications?unread=true", f.landlordToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var list []notifications.Notification
	decodeInto(t, res, &list)
	require.NotEmpty(t, list)

	res = f.do(t, "GET", "/api/v1/notifications/unread-count", f.landlordToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var count map[string]int64
	decodeInto(t, res, &count)
	require.Positive(t, count["unread"])
}

func TestMatchingCriteriaRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.do(t, "PUT", "/api/v1/matching/criteria", f.tenantToken, map[string]interface{}{
		"max_price_cents": 120_000,
		"cities":          []string{"Madrid"},
		"min_bedrooms":    2,
	})
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, "GET", "/api/v1/matching/criteria", f.tenantToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var criteria map[string]interface{}
	decodeInto(t, res, &criteria)
	require.Equal(t, f.tenant.ID.String(), criteria["tenant_id"])

	res = f.do(t, "GET", "/api/v1/matching/results", f.tenantToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var matches []properties.Property
	decodeInto(t, res, &matches)
	require.Len(t, matches, 1)
	require.Equal(t, f.property.ID, matches[0].ID)
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.do(t, "GET", "/api/v1/admin/notifications/stats", f.landlordToken, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, "POST", "/api/v1/admin/notifications/bulk", f.landlordToken, map[string]interface{}{})
	require.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, "POST", "/api/v1/admin/notifications/process-scheduled", f.tenantToken, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestSendTestNotification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res := f.do(t, "POST", "/api/v1/notifications/test", f.tenantToken, map[string]interface{}{})
	require.Equal(t, http.StatusCreated, res.Code)
	var n notifications.Notification
	decodeInto(t, res, &n)
	require.Equal(t, f.tenant.ID, n.RecipientID)
	require.Equal(t, "Test notification", n.Title)

	res = f.do(t, "GET", "/api/v1/notifications/unread-count", f.tenantToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var count map[string]int64
	decodeInto(t, res, &count)
	require.Positive(t, count["unread"])
}

func TestAdminNotificationOperations(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// One notification per listed recipient.
	res := f.do(t, "POST", "/api/v1/admin/notifications/bulk", f.adminToken, map[string]interface{}{
		"recipient_ids": []string{f.landlord.ID.String(), f.tenant.ID.String()},
		"category":      "system",
		"priority":      "normal",
		"title":         "Scheduled maintenance",
		"message":       "The platform will be briefly unavailable tonight.",
	})
	require.Equal(t, http.StatusCreated, res.Code)
	var bulk notifications.BulkResult
	decodeInto(t, res, &bulk)
	require.Equal(t, 2, bulk.Created)
	require.Zero(t, bulk.Skipped)

	// An on-demand sweep dispatches them.
	res = f.do(t, "POST", "/api/v1/admin/notifications/process-scheduled", f.adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var sweep notifications.DispatchResult
	decodeInto(t, res, &sweep)
	require.Equal(t, 2, sweep.Processed)

	// Digest creation runs; nobody opted in, so nothing is built.
	res = f.do(t, "POST", "/api/v1/admin/notifications/digests", f.adminToken, map[string]interface{}{
		"type": "daily",
	})
	require.Equal(t, http.StatusOK, res.Code)
	var digest map[string]int
	decodeInto(t, res, &digest)
	require.Zero(t, digest["created"])
}

func TestScannerUserAgentIsBlocked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	r := httptest.NewRequest("GET", "/api/v1/version", nil)
	r.RemoteAddr = "198.51.100.77:4321"
	r.Header.Set("User-Agent", "Mozilla/5.0 sqlmap/1.7")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusForbidden, res.Code)

	// The address stays blocked even with a clean user agent.
	r = httptest.NewRequest("GET", "/api/v1/version", nil)
	r.RemoteAddr = "198.51.100.77:4321"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, r)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRateLimitReturnsRetryAfter(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	store, err := sqlstoreimpl.NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// A dedicated router with a one-request auth budget.
	limits := DefaultRateLimits()
	limits.Buckets[BucketAuth] = middlewares.RateLimiterRouteConfig{MaxRPI: 1, Interval: time.Hour}
	directory := userdir.NewStaticDirectory()
	hub := channels.NewHub()
	manager := channels.NewManager(
		channels.Channel{
			Adapter: channels.NewInApp(hub), Priority: 1, RetryAttempts: 3, RetryDelay: time.Minute,
		},
	)
	dispatcher, err := notificationsimpl.NewDispatcher(store, directory, manager)
	require.NoError(t, err)
	router, err := ConfiguredRouter(Config{
		Contracts:     contractsimpl.NewEngine(store, directory, dispatcher, nil),
		Matching:      matchingimpl.NewEngine(store, properties.NewStaticCatalog(), directory, dispatcher),
		Notifications: dispatcher,
		Hub:           hub,
		Directory:     directory,
		RateLimits:    limits,
	})
	require.NoError(t, err)
	f.handler = router.Handler()

	res := f.do(t, "GET", "/api/v1/invitations/not-a-real-token", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, "GET", "/api/v1/invitations/not-a-real-token", "", nil)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	require.NotEmpty(t, res.Header().Get("Retry-After"))
	var svcErr errors.ServiceError
	decodeInto(t, res, &svcErr)
	require.Equal(t, errors.CodeRateLimited, svcErr.Code)
}
