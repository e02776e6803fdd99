package api

import (
	"context"
	"runtime/debug"

	"github.com/umlforge/umlforge/internal/slogging"
)

// MessageHandler defines the interface for handling WebSocket messages
type MessageHandler interface {
	HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error
	MessageType() string
}

// MessageRouter routes inbound WebSocket messages to the appropriate handler
type MessageRouter struct {
	handlers map[string]MessageHandler
}

// NewMessageRouter creates a new message router with default handlers
func NewMessageRouter() *MessageRouter {
	router := &MessageRouter{
		handlers: make(map[string]MessageHandler),
	}

	router.RegisterHandler(&UpdateRequestHandler{})
	router.RegisterHandler(&CursorRequestHandler{})
	router.RegisterHandler(&PresenceEnterHandler{})
	router.RegisterHandler(&PresenceLeaveHandler{})
	router.RegisterHandler(&SyncRequestHandler{})

	return router
}

// RegisterHandler registers a message handler for a specific message type
func (r *MessageRouter) RegisterHandler(handler MessageHandler) {
	r.handlers[handler.MessageType()] = handler
}

// RouteMessage routes a message to the appropriate handler. A bad message
// must never crash the engine or strand other sessions, so routing recovers
// panics and answers protocol violations with per-session error events.
func (r *MessageRouter) RouteMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slogging.Get().Error("PANIC routing message - session: %s, error: %v, stack: %s",
				client.SessionID, rec, debug.Stack())
		}
	}()

	base, err := parseBaseMessage(message)
	if err != nil {
		slogging.Get().Warn("Failed to parse message from session %s: %v", client.SessionID, err)
		hub.sendError(client.SessionID, &ValidationError{Field: "message", Reason: err.Error()})
		return
	}

	switch base.MessageType {
	case MessageTypeDiagramUpdate, MessageTypeCursorEvent, MessageTypePresence,
		MessageTypeSyncResponse, MessageTypeError:
		slogging.Get().Warn("Session %s sent server-only message type %q", client.SessionID, base.MessageType)
		hub.sendError(client.SessionID, &ValidationError{Field: "message_type", Reason: "server-only message type"})
		return
	}

	handler, exists := r.handlers[base.MessageType]
	if !exists {
		slogging.Get().Warn("Unsupported message type %q from session %s", base.MessageType, client.SessionID)
		hub.sendError(client.SessionID, &ValidationError{Field: "message_type", Reason: "unsupported message type"})
		return
	}

	if err := handler.HandleMessage(hub, client, message); err != nil {
		hub.sendError(client.SessionID, err)
	}
}

// UpdateRequestHandler handles committed diagram edits
type UpdateRequestHandler struct{}

func (h *UpdateRequestHandler) MessageType() string {
	return MessageTypeUpdate
}

func (h *UpdateRequestHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	req, err := parseUpdateRequest(message)
	if err != nil {
		return err
	}
	_, err = hub.Coordinator.ApplyUpdate(context.Background(), client.SessionID, req)
	return err
}

// CursorRequestHandler relays ephemeral cursor movement. Failures on this
// path are swallowed: the client never hears about a dropped cursor.
type CursorRequestHandler struct{}

func (h *CursorRequestHandler) MessageType() string {
	return MessageTypeCursor
}

func (h *CursorRequestHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	msg, err := parseCursorMessage(message)
	if err != nil {
		slogging.Get().Debug("Dropping malformed cursor message from session %s: %v", client.SessionID, err)
		return nil
	}
	hub.Coordinator.ApplyCursor(msg.ProjectID, client.SessionID, msg.Payload)
	return nil
}

// PresenceEnterHandler announces a session entering a project room
type PresenceEnterHandler struct{}

func (h *PresenceEnterHandler) MessageType() string {
	return MessageTypePresenceEnter
}

func (h *PresenceEnterHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	var req PresenceRequest
	if err := parseInto(message, &req); err != nil {
		return err
	}

	if _, err := hub.projects.Get(context.Background(), req.ProjectID); err != nil {
		if err == ErrNotFound {
			return &NotFoundError{Resource: "project", ID: req.ProjectID}
		}
		slogging.Get().Error("Project lookup failed for %s: %v", req.ProjectID, err)
		return &InternalError{Cause: err}
	}

	// Subscribe before entering so the joining session sees its own
	// presence event.
	client.subscribeProject(req.ProjectID)
	online := hub.Registry.Enter(req.ProjectID, client.SessionID)
	hub.broadcastPresence(req.ProjectID, "enter", online)

	slogging.Get().Info("Session %s entered project %s, online: %d", client.SessionID, req.ProjectID, online)
	return nil
}

// PresenceLeaveHandler announces an explicit leave. The disconnect path
// covers the implicit case.
type PresenceLeaveHandler struct{}

func (h *PresenceLeaveHandler) MessageType() string {
	return MessageTypePresenceLeave
}

func (h *PresenceLeaveHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	var req PresenceRequest
	if err := parseInto(message, &req); err != nil {
		return err
	}

	online := hub.Registry.Leave(req.ProjectID, client.SessionID)
	hub.broadcastPresence(req.ProjectID, "leave", online)
	client.unsubscribeProject(req.ProjectID)

	slogging.Get().Info("Session %s left project %s, online: %d", client.SessionID, req.ProjectID, online)
	return nil
}

// SyncRequestHandler answers a snapshot request point-to-point
type SyncRequestHandler struct{}

func (h *SyncRequestHandler) MessageType() string {
	return MessageTypeSyncRequest
}

func (h *SyncRequestHandler) HandleMessage(hub *WebSocketHub, client *WebSocketClient, message []byte) error {
	var req PresenceRequest
	if err := parseInto(message, &req); err != nil {
		return err
	}
	_, err := hub.Coordinator.RequestSync(context.Background(), req.ProjectID, client.SessionID)
	return err
}
