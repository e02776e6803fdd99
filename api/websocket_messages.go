package api

import (
	"encoding/json"
	"fmt"
)

// Inbound message type tags.
const (
	MessageTypeUpdate        = "update"
	MessageTypeCursor        = "cursor"
	MessageTypePresenceEnter = "presence_enter"
	MessageTypePresenceLeave = "presence_leave"
	MessageTypeSyncRequest   = "sync_request"
)

const maxClientIDLength = 100

// baseMessage is the envelope shared by every inbound message.
type baseMessage struct {
	MessageType string `json:"message_type"`
	ProjectID   string `json:"project_id"`
}

// UpdateRequest is a committed edit: a partial patch of the diagram plus the
// version the client last saw. Absent fields keep their stored values.
type UpdateRequest struct {
	MessageType string  `json:"message_type"`
	ProjectID   string  `json:"project_id"`
	ClientID    string  `json:"clientId"`
	BaseVersion *int64  `json:"baseVersion,omitempty"`
	Name        *string `json:"name,omitempty"`
	Nodes       *string `json:"nodes,omitempty"`
	Edges       *string `json:"edges,omitempty"`
	Viewport    *string `json:"viewport,omitempty"`
}

// CursorMessage carries an ephemeral payload relayed to co-editors without
// persistence. Everything except the envelope fields is echoed unchanged.
type CursorMessage struct {
	ProjectID string
	Payload   map[string]any
}

// PresenceRequest covers presence_enter, presence_leave and sync_request,
// which carry no body beyond the envelope.
type PresenceRequest struct {
	MessageType string `json:"message_type"`
	ProjectID   string `json:"project_id"`
}

// parseBaseMessage extracts the envelope to pick a route
func parseBaseMessage(message []byte) (*baseMessage, error) {
	var base baseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if base.ProjectID == "" {
		return nil, fmt.Errorf("message has no project_id")
	}
	return &base, nil
}

// parseUpdateRequest parses and boundary-validates an update message.
// Size caps are enforced later by the coordinator; this only rejects
// structurally bad input.
func parseUpdateRequest(message []byte) (*UpdateRequest, error) {
	var req UpdateRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return nil, &ValidationError{Field: "message", Reason: "malformed JSON"}
	}
	if req.ClientID == "" {
		return nil, &ValidationError{Field: "clientId", Reason: "required"}
	}
	if len(req.ClientID) > maxClientIDLength {
		return nil, &ValidationError{Field: "clientId", Reason: "too long"}
	}
	return &req, nil
}

// parseInto unmarshals a body-less request. The envelope was already
// validated by parseBaseMessage.
func parseInto(message []byte, dst any) error {
	if err := json.Unmarshal(message, dst); err != nil {
		return &ValidationError{Field: "message", Reason: "malformed JSON"}
	}
	return nil
}

// parseCursorMessage keeps the arbitrary cursor fields intact, stripping
// only the routing envelope.
func parseCursorMessage(message []byte) (*CursorMessage, error) {
	var raw map[string]any
	if err := json.Unmarshal(message, &raw); err != nil {
		return nil, fmt.Errorf("malformed cursor message: %w", err)
	}

	projectID, _ := raw["project_id"].(string)
	delete(raw, "message_type")
	delete(raw, "project_id")

	return &CursorMessage{ProjectID: projectID, Payload: raw}, nil
}
