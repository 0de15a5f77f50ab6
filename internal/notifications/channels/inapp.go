package channels

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	logger "github.com/rs/zerolog/log"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
)

var hubLog = logger.With().Str("component", "inapphub").Logger()

// Hub tracks the live websocket connections of signed-in users, keyed by user
// id. One user may hold several connections (several tabs or devices).
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uuid.UUID]map[*websocket.Conn]struct{})}
}

// ServeUser upgrades the request to a websocket and keeps it registered for
// the user until the peer goes away. It blocks for the connection lifetime.
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		hubLog.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	h.register(userID, conn)
	defer h.unregister(userID, conn)

	// Reads drain client pings and detect the peer closing.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) register(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[userID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Publish writes v to every live connection of the user and returns how many
// connections received it. Write failures only drop the dead connection.
func (h *Hub) Publish(ctx context.Context, userID uuid.UUID, v interface{}) int {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for conn := range h.conns[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, time.Second*5)
		err := wsjson.Write(writeCtx, conn, v)
		cancel()
		if err != nil {
			h.unregister(userID, conn)
			continue
		}
		delivered++
	}
	return delivered
}

// Connected reports whether the user has at least one live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// InApp delivers notifications to the live in-app feed. The notification row
// itself is already persisted by the dispatcher; this adapter only pushes it
// to connected clients. A recipient with no live connection still counts as
// sent: the client fetches unread rows on next login.
type InApp struct {
	hub *Hub
}

// NewInApp creates the in-app adapter over the given hub.
func NewInApp(hub *Hub) *InApp {
	return &InApp{hub: hub}
}

// Type implements Adapter.
func (a *InApp) Type() notifications.ChannelType {
	return notifications.ChannelInApp
}

// Send implements Adapter.
func (a *InApp) Send(ctx context.Context, view View) (*Result, error) {
	a.hub.Publish(ctx, view.RecipientID, view)
	return &Result{
		ExternalID: view.NotificationID.String(),
		SentTo:     view.RecipientID.String(),
	}, nil
}
