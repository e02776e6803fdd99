package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/umlforge/umlforge/internal/slogging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period; must be less than pongWait
	pingPeriod = 30 * time.Second
)

// Upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub owns the live connections and wires the transport to the
// presence registry, rate limiter, broadcast router and sync coordinator.
type WebSocketHub struct {
	Registry    *PresenceRegistry
	Router      *BroadcastRouter
	Limiter     *UpdateRateLimiter
	Coordinator *DiagramSyncCoordinator

	projects ProjectStore
	messages *MessageRouter

	mu      sync.RWMutex
	clients map[string]*WebSocketClient

	maxMessageSize int64
	now            func() time.Time
}

// WebSocketClient represents one connected session. Session ids are opaque
// and never reused; a disconnected session id is terminal.
type WebSocketClient struct {
	Hub         *WebSocketHub
	Conn        *websocket.Conn
	SessionID   string
	ConnectedAt time.Time

	// Buffered channel of outbound messages
	Send chan []byte

	closingMu sync.RWMutex
	closing   bool

	subsMu      sync.Mutex
	sessionSubs []*Subscription
	projectSubs map[string][]*Subscription
}

// NewWebSocketHub creates a hub wired to the given collaborators
func NewWebSocketHub(
	registry *PresenceRegistry,
	router *BroadcastRouter,
	limiter *UpdateRateLimiter,
	coordinator *DiagramSyncCoordinator,
	projects ProjectStore,
	maxMessageSize int64,
) *WebSocketHub {
	hub := &WebSocketHub{
		Registry:       registry,
		Router:         router,
		Limiter:        limiter,
		Coordinator:    coordinator,
		projects:       projects,
		clients:        make(map[string]*WebSocketClient),
		maxMessageSize: maxMessageSize,
		now:            time.Now,
	}
	hub.messages = NewMessageRouter()
	return hub
}

// HandleWS upgrades the connection and starts the client pumps
func (h *WebSocketHub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slogging.Get().Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		Hub:         h,
		Conn:        conn,
		SessionID:   uuid.New().String(),
		ConnectedAt: h.now().UTC(),
		Send:        make(chan []byte, 256),
		projectSubs: make(map[string][]*Subscription),
	}

	h.Registry.RecordConnection(client.SessionID)

	// Point-to-point topics exist for the whole connection lifetime.
	client.sessionSubs = []*Subscription{
		h.Router.Subscribe(SessionErrorTopic(client.SessionID), client.Send),
		h.Router.Subscribe(SessionSyncTopic(client.SessionID), client.Send),
	}

	h.mu.Lock()
	h.clients[client.SessionID] = client
	h.mu.Unlock()

	slogging.Get().Info("WebSocket connected - session: %s", client.SessionID)

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of live connections
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendError delivers an error event to one session only
func (h *WebSocketHub) sendError(sessionID string, err error) {
	h.Router.Publish(SessionErrorTopic(sessionID), &ErrorEvent{
		MessageType: MessageTypeError,
		ErrorKind:   ErrorKindOf(err),
		Message:     PublicMessage(err),
		ServerTs:    h.now().UnixMilli(),
	})
}

// broadcastPresence publishes a roster change on the project's presence topic
func (h *WebSocketHub) broadcastPresence(projectID, action string, online int) {
	h.Router.Publish(PresenceTopic(projectID), &PresenceEvent{
		MessageType: MessageTypePresence,
		Action:      action,
		ProjectID:   projectID,
		Online:      online,
		ServerTs:    h.now().UnixMilli(),
	})
}

// handleDisconnect is the terminal transition for a session. It runs for
// every disconnect cause and is idempotent: a duplicate or racing
// disconnect finds nothing left to clean and broadcasts nothing. Cleanup
// failures are logged, never propagated - disconnection always completes.
func (h *WebSocketHub) handleDisconnect(client *WebSocketClient) {
	h.mu.Lock()
	_, known := h.clients[client.SessionID]
	delete(h.clients, client.SessionID)
	h.mu.Unlock()

	affected := h.Registry.RemoveAll(client.SessionID)
	for _, projectID := range affected {
		h.broadcastPresence(projectID, "disconnect", h.Registry.Count(projectID))
	}

	h.Limiter.Forget(client.SessionID)
	h.Registry.ForgetConnection(client.SessionID)

	client.unsubscribeAll()
	client.closeSendChannel()

	if known {
		slogging.Get().Info("WebSocket disconnected - session: %s, rooms left: %d",
			client.SessionID, len(affected))
	}
}

// subscribeProject attaches the client to a project's three topics
func (c *WebSocketClient) subscribeProject(projectID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if _, ok := c.projectSubs[projectID]; ok {
		return
	}
	c.projectSubs[projectID] = []*Subscription{
		c.Hub.Router.Subscribe(SnapshotTopic(projectID), c.Send),
		c.Hub.Router.Subscribe(CursorTopic(projectID), c.Send),
		c.Hub.Router.Subscribe(PresenceTopic(projectID), c.Send),
	}
}

// unsubscribeProject detaches the client from a project's topics
func (c *WebSocketClient) unsubscribeProject(projectID string) {
	c.subsMu.Lock()
	subs := c.projectSubs[projectID]
	delete(c.projectSubs, projectID)
	c.subsMu.Unlock()

	for _, sub := range subs {
		c.Hub.Router.Unsubscribe(sub)
	}
}

func (c *WebSocketClient) unsubscribeAll() {
	c.subsMu.Lock()
	var subs []*Subscription
	subs = append(subs, c.sessionSubs...)
	c.sessionSubs = nil
	for projectID, projectSubs := range c.projectSubs {
		subs = append(subs, projectSubs...)
		delete(c.projectSubs, projectID)
	}
	c.subsMu.Unlock()

	for _, sub := range subs {
		c.Hub.Router.Unsubscribe(sub)
	}
}

// closeSendChannel closes the outbound channel exactly once
func (c *WebSocketClient) closeSendChannel() {
	c.closingMu.Lock()
	defer c.closingMu.Unlock()
	if !c.closing {
		c.closing = true
		close(c.Send)
	}
}

// readPump pumps messages from the WebSocket to the message router. It owns
// the disconnect transition: whatever ends the read loop ends the session.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.handleDisconnect(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slogging.Get().Warn("WebSocket read error - session: %s: %v", c.SessionID, err)
			}
			break
		}
		c.Hub.messages.RouteMessage(c.Hub, c, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain queued messages so a burst does not wait a write
			// deadline per frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
