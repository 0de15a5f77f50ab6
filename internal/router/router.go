package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/matching"
	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	"github.com/viviendahub/go-viviendahub/internal/router/controllers"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/userdir"
)

// Rate limit buckets. Routes opt into one; everything else shares the
// default budget.
const (
	BucketAPI   = "api"
	BucketAuth  = "auth"
	BucketAdmin = "admin"
)

// DefaultRateLimits is the budget applied when the configuration does not
// override it: a generous per-account budget on the API, a tight one on the
// token endpoints.
func DefaultRateLimits() middlewares.RateLimiterConfig {
	return middlewares.RateLimiterConfig{
		Default: middlewares.RateLimiterRouteConfig{MaxRPI: 100, Interval: time.Hour},
		Buckets: map[string]middlewares.RateLimiterRouteConfig{
			BucketAPI:   {MaxRPI: 1000, Interval: time.Hour},
			BucketAuth:  {MaxRPI: 100, Interval: 15 * time.Minute},
			BucketAdmin: {MaxRPI: 1000, Interval: time.Hour},
		},
	}
}

// Config carries everything ConfiguredRouter needs to wire the API.
type Config struct {
	Contracts     contracts.Service
	Matching      matching.Service
	Notifications notifications.Service
	Hub           *channels.Hub
	Directory     userdir.Directory

	RateLimits middlewares.RateLimiterConfig
}

// ConfiguredRouter returns a fully configured Router that can be used as an http handler.
func ConfiguredRouter(cfg Config) (*Router, error) {
	contractController := controllers.NewContractController(cfg.Contracts)
	matchingController := controllers.NewMatchingController(cfg.Matching)
	notificationController := controllers.NewNotificationController(cfg.Notifications, cfg.Hub)
	infraController := controllers.NewInfraController()

	rateLimits := cfg.RateLimits
	if rateLimits.Default.MaxRPI == 0 {
		rateLimits = DefaultRateLimits()
	}
	rateLim, err := middlewares.NewRateLimiter(rateLimits)
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %s", err)
	}

	ipPolicy := middlewares.NewIPPolicy()
	auth := middlewares.Authentication(cfg.Directory)
	admin := middlewares.RequireRole(userdir.RoleAdmin)

	// General router configuration.
	router := NewRouter()
	router.Use(middlewares.CORS, middlewares.TraceID, ipPolicy.Middleware)

	api := func(operation string) []mux.MiddlewareFunc {
		return []mux.MiddlewareFunc{
			middlewares.WithLogging, middlewares.OtelHTTP(operation), auth, rateLim.Limit(BucketAPI),
		}
	}
	authBucket := func(operation string) []mux.MiddlewareFunc {
		return []mux.MiddlewareFunc{
			middlewares.WithLogging, middlewares.OtelHTTP(operation), auth, rateLim.Limit(BucketAuth),
		}
	}
	adminAPI := func(operation string) []mux.MiddlewareFunc {
		return []mux.MiddlewareFunc{
			middlewares.WithLogging, middlewares.OtelHTTP(operation), auth, admin, rateLim.Limit(BucketAdmin),
		}
	}

	// Contract configuration.
	router.Post("/api/v1/contracts", contractController.CreateDraft, api("CreateDraft")...)
	router.Get("/api/v1/contracts", contractController.List, api("ListContracts")...)
	router.Get("/api/v1/contracts/{id}", contractController.Get, api("GetContract")...)
	router.Post("/api/v1/contracts/{id}/landlord-data", contractController.CompleteLandlordData, api("CompleteLandlordData")...) // nolint
	router.Post("/api/v1/contracts/{id}/tenant-data", contractController.CompleteTenantData, api("CompleteTenantData")...)
	router.Post("/api/v1/contracts/{id}/identity", contractController.VerifyIdentity, authBucket("VerifyIdentity")...)
	router.Post("/api/v1/contracts/{id}/approve", contractController.Approve, api("Approve")...)
	router.Post("/api/v1/contracts/{id}/sign", contractController.Sign, authBucket("Sign")...)
	router.Post("/api/v1/contracts/{id}/publish", contractController.Publish, api("Publish")...)
	router.Post("/api/v1/contracts/{id}/cancel", contractController.Cancel, api("Cancel")...)
	router.Post("/api/v1/contracts/{id}/terminate", contractController.Terminate, api("Terminate")...)
	router.Get("/api/v1/contracts/{id}/history", contractController.History, api("History")...)
	router.Get("/api/v1/contracts/{id}/history/verification", contractController.VerifyHistory, api("VerifyHistory")...)
	router.Get("/api/v1/contracts/{id}/signatures", contractController.ListSignatures, api("ListSignatures")...)
	router.Get("/api/v1/contracts/{id}/pdf", contractController.RenderPDF, api("RenderPDF")...)

	// Invitation configuration. Verification is public: the invitee holds a
	// token but no account yet.
	router.Post("/api/v1/contracts/{id}/invitations", contractController.CreateInvitation, authBucket("CreateInvitation")...) // nolint
	router.Post("/api/v1/contracts/{id}/invitations/resend", contractController.ResendInvitation, authBucket("ResendInvitation")...) // nolint
	router.Post("/api/v1/invitations/accept", contractController.AcceptInvitation, authBucket("AcceptInvitation")...)
	router.Get("/api/v1/invitations/pending", contractController.PendingInvitations, api("PendingInvitations")...)
	router.Get("/api/v1/invitations/{token}", contractController.VerifyInvitation,
		middlewares.WithLogging, middlewares.OtelHTTP("VerifyInvitation"), rateLim.Limit(BucketAuth))

	// Objection and guarantee configuration.
	router.Post("/api/v1/contracts/{id}/objections", contractController.SubmitObjection, api("SubmitObjection")...)
	router.Get("/api/v1/contracts/{id}/objections", contractController.ListObjections, api("ListObjections")...)
	router.Post("/api/v1/objections/{id}/response", contractController.RespondObjection, api("RespondObjection")...)
	router.Post("/api/v1/objections/{id}/withdraw", contractController.WithdrawObjection, api("WithdrawObjection")...)
	router.Post("/api/v1/contracts/{id}/guarantees", contractController.AddGuarantee, api("AddGuarantee")...)
	router.Get("/api/v1/contracts/{id}/guarantees", contractController.ListGuarantees, api("ListGuarantees")...)
	router.Post("/api/v1/guarantees/{id}/verify", contractController.VerifyGuarantee, api("VerifyGuarantee")...)

	// Dashboard configuration.
	router.Get("/api/v1/landlord/stats", contractController.LandlordStats, api("LandlordStats")...)
	router.Get("/api/v1/tenant/stats", contractController.TenantStats, api("TenantStats")...)

	// Matching configuration.
	router.Post("/api/v1/matching/requests", matchingController.Submit, api("SubmitMatchRequest")...)
	router.Get("/api/v1/matching/requests", matchingController.ListSent, api("ListMatchRequests")...)
	router.Get("/api/v1/matching/received", matchingController.ListReceived, api("ListReceivedMatchRequests")...)
	router.Get("/api/v1/matching/requests/{id}", matchingController.Get, api("GetMatchRequest")...)
	router.Post("/api/v1/matching/requests/{id}/view", matchingController.MarkViewed, api("MarkMatchRequestViewed")...)
	router.Post("/api/v1/matching/requests/{id}/accept", matchingController.Accept, api("AcceptMatchRequest")...)
	router.Post("/api/v1/matching/requests/{id}/reject", matchingController.Reject, api("RejectMatchRequest")...)
	router.Post("/api/v1/matching/requests/{id}/cancel", matchingController.Cancel, api("CancelMatchRequest")...)
	router.Get("/api/v1/matching/criteria", matchingController.GetCriteria, api("GetCriteria")...)
	router.Put("/api/v1/matching/criteria", matchingController.SaveCriteria, api("SaveCriteria")...)
	router.Get("/api/v1/matching/results", matchingController.FindMatching, api("FindMatching")...)
	router.Get("/api/v1/matching/recommendations", matchingController.Recommendations, api("Recommendations")...)
	router.Get("/api/v1/matching/stats", matchingController.Statistics, api("MatchingStats")...)

	// Notification configuration.
	router.Get("/api/v1/notifications", notificationController.Search, api("SearchNotifications")...)
	router.Get("/api/v1/notifications/unread-count", notificationController.UnreadCount, api("UnreadCount")...)
	router.Get("/api/v1/notifications/preferences", notificationController.GetPreference, api("GetPreference")...)
	router.Put("/api/v1/notifications/preferences", notificationController.PutPreference, api("PutPreference")...)
	router.Get("/api/v1/notifications/digests", notificationController.Digests, api("Digests")...)
	router.Get("/api/v1/notifications/ws", notificationController.Websocket,
		middlewares.WithLogging, auth)
	router.Post("/api/v1/notifications/read-all", notificationController.MarkAllRead, api("MarkAllRead")...)
	router.Post("/api/v1/notifications/test", notificationController.SendTest, api("SendTestNotification")...)
	router.Get("/api/v1/notifications/{id}", notificationController.Get, api("GetNotification")...)
	router.Post("/api/v1/notifications/{id}/read", notificationController.MarkRead, api("MarkRead")...)

	// Admin configuration.
	router.Get("/api/v1/admin/notifications/stats", notificationController.Statistics, adminAPI("NotificationStats")...) // nolint
	router.Get("/api/v1/admin/notifications/analytics", notificationController.Analytics, adminAPI("NotificationAnalytics")...) // nolint
	router.Post("/api/v1/admin/notifications/bulk", notificationController.BulkSend, adminAPI("BulkSendNotifications")...)
	router.Post("/api/v1/admin/notifications/process-scheduled", notificationController.ProcessScheduled, adminAPI("ProcessScheduledNotifications")...) // nolint
	router.Post("/api/v1/admin/notifications/digests", notificationController.CreateDigest, adminAPI("CreateDigests")...)

	// Infra configuration.
	router.Get("/api/v1/version", infraController.Version, middlewares.WithLogging, middlewares.OtelHTTP("Version"))
	router.Get("/healthz", healthHandler)
	router.Get("/health", healthHandler)

	return router, nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Router provides a nice api around mux.Router.
type Router struct {
	r *mux.Router
}

// NewRouter is a Mux HTTP router constructor.
func NewRouter() *Router {
	r := mux.NewRouter()
	r.PathPrefix("/").Methods(http.MethodOptions) // accept OPTIONS on all routes and do nothing
	return &Router{r: r}
}

// Get creates a subroute on the specified URI that only accepts GET. You can provide specific middlewares.
func (r *Router) Get(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodGet)
	sub.Use(mid...)
}

// Post creates a subroute on the specified URI that only accepts POST. You can provide specific middlewares.
func (r *Router) Post(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPost)
	sub.Use(mid...)
}

// Put creates a subroute on the specified URI that only accepts PUT. You can provide specific middlewares.
func (r *Router) Put(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodPut)
	sub.Use(mid...)
}

// Delete creates a subroute on the specified URI that only accepts DELETE. You can provide specific middlewares.
func (r *Router) Delete(uri string, f func(http.ResponseWriter, *http.Request), mid ...mux.MiddlewareFunc) {
	sub := r.r.Path(uri).Subrouter()
	sub.HandleFunc("", f).Methods(http.MethodDelete)
	sub.Use(mid...)
}

// Use adds middlewares to all routes. Should be used when a middleware should be execute all all routes (e.g. CORS).
func (r *Router) Use(mid ...mux.MiddlewareFunc) {
	r.r.Use(mid...)
}

// Handler returns the configured router http handler.
func (r *Router) Handler() http.Handler {
	return r.r
}
