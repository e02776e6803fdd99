package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlforge/umlforge/internal/config"
)

type wsFixture struct {
	server    *Server
	store     *MemoryStore
	ts        *httptest.Server
	projectID string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	project := &Project{Id: uuid.New(), Name: "Order Service"}
	require.NoError(t, store.Create(context.Background(), project))

	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			// Generous interval so only the explicit throttle test hits it
			UpdateMinInterval: time.Minute,
			MaxNameLength:     255,
			MaxPayloadLength:  5_000_000,
			ReaperInterval:    5 * time.Minute,
			ReaperMaxAge:      time.Hour,
		},
	}
	server := NewServer(cfg, store, store)

	router := gin.New()
	server.RegisterRoutes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &wsFixture{server: server, store: store, ts: ts, projectID: project.Id.String()}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestWebSocket_PresenceEnterLeave(t *testing.T) {
	f := newWSFixture(t)

	connA := f.dial(t)
	sendJSON(t, connA, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})

	event := readEvent(t, connA)
	assert.Equal(t, "presence_event", event["message_type"])
	assert.Equal(t, "enter", event["action"])
	assert.Equal(t, float64(1), event["online"])

	connB := f.dial(t)
	sendJSON(t, connB, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})

	event = readEvent(t, connB)
	assert.Equal(t, "enter", event["action"])
	assert.Equal(t, float64(2), event["online"])

	// The first session observes the join too
	event = readEvent(t, connA)
	assert.Equal(t, "enter", event["action"])
	assert.Equal(t, float64(2), event["online"])

	sendJSON(t, connB, map[string]any{"message_type": "presence_leave", "project_id": f.projectID})
	event = readEvent(t, connA)
	assert.Equal(t, "leave", event["action"])
	assert.Equal(t, float64(1), event["online"])
}

func TestWebSocket_UpdateBroadcastToRoom(t *testing.T) {
	f := newWSFixture(t)

	connA := f.dial(t)
	sendJSON(t, connA, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connA) // own enter

	connB := f.dial(t)
	sendJSON(t, connB, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connB) // own enter
	readEvent(t, connA) // B's enter

	sendJSON(t, connA, map[string]any{
		"message_type": "update",
		"project_id":   f.projectID,
		"clientId":     "client-a",
		"baseVersion":  0,
		"nodes":        `[{"id":"n1"}]`,
	})

	for _, conn := range []*websocket.Conn{connA, connB} {
		event := readEvent(t, conn)
		assert.Equal(t, "diagram_update", event["message_type"])
		assert.Equal(t, float64(1), event["version"])
		assert.Equal(t, false, event["conflict"])
		assert.Equal(t, "client-a", event["clientId"])
		assert.Equal(t, `[{"id":"n1"}]`, event["nodes"])
	}
}

func TestWebSocket_StaleBaseVersionFlagsConflict(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, conn)

	sendJSON(t, conn, map[string]any{
		"message_type": "update",
		"project_id":   f.projectID,
		"clientId":     "client-a",
		"baseVersion":  9,
		"nodes":        `[]`,
	})

	event := readEvent(t, conn)
	assert.Equal(t, "diagram_update", event["message_type"])
	assert.Equal(t, true, event["conflict"])
	assert.Equal(t, float64(1), event["version"])
}

func TestWebSocket_ThrottledUpdateGetsErrorEvent(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, conn)

	update := map[string]any{
		"message_type": "update",
		"project_id":   f.projectID,
		"clientId":     "client-a",
		"nodes":        `[]`,
	}
	sendJSON(t, conn, update)
	event := readEvent(t, conn)
	require.Equal(t, "diagram_update", event["message_type"])

	sendJSON(t, conn, update)
	event = readEvent(t, conn)
	assert.Equal(t, "error", event["message_type"])
	assert.Equal(t, ErrorKindThrottled, event["errorKind"])
}

func TestWebSocket_SyncRequest(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"message_type": "sync_request", "project_id": f.projectID})

	event := readEvent(t, conn)
	assert.Equal(t, "sync_response", event["message_type"])
	assert.Equal(t, f.projectID, event["projectId"])
	assert.Equal(t, float64(0), event["version"])
	assert.Equal(t, "[]", event["nodes"])
}

func TestWebSocket_CursorRelay(t *testing.T) {
	f := newWSFixture(t)

	connA := f.dial(t)
	sendJSON(t, connA, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connA)

	connB := f.dial(t)
	sendJSON(t, connB, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connB)
	readEvent(t, connA)

	sendJSON(t, connB, map[string]any{
		"message_type": "cursor",
		"project_id":   f.projectID,
		"clientId":     "client-b",
		"x":            42.0,
		"y":            7.0,
	})

	event := readEvent(t, connA)
	assert.Equal(t, "cursor_event", event["message_type"])
	assert.Equal(t, "client-b", event["clientId"])
	assert.Equal(t, 42.0, event["x"])
}

func TestWebSocket_EnterUnknownProject(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"message_type": "presence_enter", "project_id": uuid.New().String()})

	event := readEvent(t, conn)
	assert.Equal(t, "error", event["message_type"])
	assert.Equal(t, ErrorKindNotFound, event["errorKind"])
}

func TestWebSocket_UnsupportedMessageType(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t)
	sendJSON(t, conn, map[string]any{"message_type": "teleport", "project_id": f.projectID})

	event := readEvent(t, conn)
	assert.Equal(t, "error", event["message_type"])
	assert.Equal(t, ErrorKindValidation, event["errorKind"])
}

func TestWebSocket_DisconnectBroadcastsToRooms(t *testing.T) {
	f := newWSFixture(t)

	connA := f.dial(t)
	sendJSON(t, connA, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connA)

	connB := f.dial(t)
	sendJSON(t, connB, map[string]any{"message_type": "presence_enter", "project_id": f.projectID})
	readEvent(t, connB)
	readEvent(t, connA)

	require.NoError(t, connB.Close())

	event := readEvent(t, connA)
	assert.Equal(t, "presence_event", event["message_type"])
	assert.Equal(t, "disconnect", event["action"])
	assert.Equal(t, float64(1), event["online"])

	// The registry converges to one member
	require.Eventually(t, func() bool {
		return f.server.Hub().Registry.Count(f.projectID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
