package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
	"github.com/viviendahub/go-viviendahub/internal/router/middlewares"
	"github.com/viviendahub/go-viviendahub/pkg/errors"
)

// NotificationController handles the notification endpoints, including the
// realtime websocket feed.
type NotificationController struct {
	engine notifications.Service
	hub    *channels.Hub
}

// NewNotificationController creates a new NotificationController.
func NewNotificationController(engine notifications.Service, hub *channels.Hub) *NotificationController {
	return &NotificationController{engine: engine, hub: hub}
}

// Search handles GET /api/v1/notifications. The listing is always scoped to
// the authenticated recipient.
func (c *NotificationController) Search(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	query := r.URL.Query()
	filter := notifications.SearchFilter{
		RecipientID: user.ID,
		Category:    notifications.Category(query.Get("category")),
		Status:      notifications.Status(query.Get("status")),
		Priority:    notifications.Priority(query.Get("priority")),
		UnreadOnly:  query.Get("unread") == "true",
		Query:       query.Get("q"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}
	list, err := c.engine.Search(r.Context(), filter)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Get handles GET /api/v1/notifications/{id}.
func (c *NotificationController) Get(rw http.ResponseWriter, r *http.Request) {
	user, id, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	notification, deliveries, err := c.engine.Get(r.Context(), id)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	if notification.RecipientID != user.ID {
		middlewares.WriteError(rw, errors.NotFound("notification %s not found", id))
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, map[string]interface{}{
		"notification": notification,
		"deliveries":   deliveries,
	})
}

// UnreadCount handles GET /api/v1/notifications/unread-count.
func (c *NotificationController) UnreadCount(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	count, err := c.engine.UnreadCount(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, map[string]int64{"unread": count})
}

// MarkRead handles POST /api/v1/notifications/{id}/read.
func (c *NotificationController) MarkRead(rw http.ResponseWriter, r *http.Request) {
	user, id, err := userAndID(r)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	if err := c.engine.MarkRead(r.Context(), id, user.ID); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, map[string]bool{"read": true})
}

// MarkAllRead handles POST /api/v1/notifications/read-all.
func (c *NotificationController) MarkAllRead(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	changed, err := c.engine.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, map[string]int64{"marked": changed})
}

// GetPreference handles GET /api/v1/notifications/preferences.
func (c *NotificationController) GetPreference(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	pref, err := c.engine.GetPreference(r.Context(), user.ID)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, pref)
}

// PutPreference handles PUT /api/v1/notifications/preferences.
func (c *NotificationController) PutPreference(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var pref notifications.Preference
	if err := decodeBody(rw, r, &pref); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	pref.UserID = user.ID
	saved, err := c.engine.PutPreference(r.Context(), pref)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, saved)
}

// Digests handles GET /api/v1/notifications/digests.
func (c *NotificationController) Digests(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	list, err := c.engine.Digests(r.Context(), user.ID, queryInt(r, "limit", 20))
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, list)
}

// Websocket handles GET /api/v1/notifications/ws, upgrading the connection
// and streaming realtime notifications until the client goes away.
func (c *NotificationController) Websocket(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	c.hub.ServeUser(rw, r, user.ID)
}

// SendTest handles POST /api/v1/notifications/test, delivering a canned
// notification to the authenticated user so channel wiring can be checked.
func (c *NotificationController) SendTest(rw http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		middlewares.WriteError(rw, errors.PermissionDenied("authentication is required"))
		return
	}
	var req struct {
		Message  string                      `json:"message"`
		Channels []notifications.ChannelType `json:"channels"`
	}
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	message := req.Message
	if message == "" {
		message = "This is a test notification."
	}
	notification, err := c.engine.Create(r.Context(), notifications.CreateParams{
		RecipientID: user.ID,
		Category:    notifications.CategorySystem,
		Priority:    notifications.PriorityNormal,
		Title:       "Test notification",
		Message:     message,
		Channels:    req.Channels,
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, notification)
}

type bulkSendRequest struct {
	RecipientIDs []uuid.UUID                 `json:"recipient_ids"`
	Template     string                      `json:"template"`
	Category     notifications.Category      `json:"category"`
	Title        string                      `json:"title"`
	Message      string                      `json:"message"`
	Priority     notifications.Priority      `json:"priority"`
	Channels     []notifications.ChannelType `json:"channels"`
	Data         map[string]interface{}      `json:"data"`
}

// BulkSend handles POST /api/v1/admin/notifications/bulk.
func (c *NotificationController) BulkSend(rw http.ResponseWriter, r *http.Request) {
	var req bulkSendRequest
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	result, err := c.engine.BulkSend(r.Context(), notifications.BulkParams{
		RecipientIDs: req.RecipientIDs,
		Template:     req.Template,
		Category:     req.Category,
		Title:        req.Title,
		Message:      req.Message,
		Priority:     req.Priority,
		Channels:     req.Channels,
		Data:         req.Data,
	})
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusCreated, result)
}

// ProcessScheduled handles POST /api/v1/admin/notifications/process-scheduled,
// running one dispatch sweep outside the scheduler cadence.
func (c *NotificationController) ProcessScheduled(rw http.ResponseWriter, r *http.Request) {
	result, err := c.engine.ProcessScheduled(r.Context())
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, result)
}

// CreateDigest handles POST /api/v1/admin/notifications/digests.
func (c *NotificationController) CreateDigest(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Type notifications.DigestType `json:"type"`
	}
	if err := decodeBody(rw, r, &req); err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	if req.Type == "" {
		req.Type = notifications.DigestDaily
	}
	created, err := c.engine.CreateDigests(r.Context(), req.Type)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, map[string]int{"created": created})
}

// Statistics handles GET /api/v1/admin/notifications/stats.
func (c *NotificationController) Statistics(rw http.ResponseWriter, r *http.Request) {
	stats, err := c.engine.Statistics(r.Context())
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, stats)
}

// Analytics handles GET /api/v1/admin/notifications/analytics.
func (c *NotificationController) Analytics(rw http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			middlewares.WriteError(rw, errors.Validation("from is not a valid date: %s", err))
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			middlewares.WriteError(rw, errors.Validation("to is not a valid date: %s", err))
			return
		}
		to = parsed
	}
	rows, err := c.engine.Analytics(r.Context(), from, to)
	if err != nil {
		middlewares.WriteError(rw, err)
		return
	}
	middlewares.WriteJSON(rw, http.StatusOK, rows)
}
