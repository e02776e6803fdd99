package api

import (
	"time"

	"github.com/google/uuid"
)

// Error is the structured JSON error body returned by REST endpoints
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Project is the top-level unit of collaboration. Each project owns exactly
// one diagram, created with the project and deleted with it.
type Project struct {
	Id           uuid.UUID  `json:"id"`
	Name         string     `json:"name" binding:"required"`
	PackageBase  string     `json:"package_base,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ModifiedAt   time.Time  `json:"modified_at"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
}

// Diagram is the persisted snapshot of a project's diagram. Nodes and edges
// are stored as serialized JSON strings exactly as the client sent them; the
// server never interprets their contents. Version increments exactly once per
// successful write and is never reused.
type Diagram struct {
	Id         uuid.UUID `json:"id"` // shared with the owning project
	Name       string    `json:"name"`
	Nodes      string    `json:"nodes"`
	Edges      string    `json:"edges"`
	Viewport   *string   `json:"viewport,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// DiagramPatch carries the fields of a partial update. Nil fields keep their
// stored values.
type DiagramPatch struct {
	Name     *string
	Nodes    *string
	Edges    *string
	Viewport *string
}

// SyncEvent is broadcast on a project's snapshot topic after a committed
// update. Conflict is advisory: it flags that the writer's baseVersion
// diverged from the stored version at commit time, but the write still won.
type SyncEvent struct {
	MessageType string  `json:"message_type"`
	ProjectID   string  `json:"projectId"`
	ClientID    string  `json:"clientId,omitempty"`
	Name        string  `json:"name"`
	Nodes       string  `json:"nodes"`
	Edges       string  `json:"edges"`
	Viewport    *string `json:"viewport,omitempty"`
	Version     int64   `json:"version"`
	ServerTs    int64   `json:"serverTs"`
	Conflict    bool    `json:"conflict"`
}

// SyncResponse is delivered point-to-point to a session that requested the
// current snapshot.
type SyncResponse struct {
	MessageType string  `json:"message_type"`
	ProjectID   string  `json:"projectId"`
	Name        string  `json:"name"`
	Nodes       string  `json:"nodes"`
	Edges       string  `json:"edges"`
	Viewport    *string `json:"viewport,omitempty"`
	Version     int64   `json:"version"`
	ServerTs    int64   `json:"serverTs"`
}

// PresenceEvent is broadcast on a project's presence topic whenever the room
// roster changes.
type PresenceEvent struct {
	MessageType string `json:"message_type"`
	Action      string `json:"action"` // enter, leave, disconnect
	ProjectID   string `json:"projectId"`
	Online      int    `json:"online"`
	ServerTs    int64  `json:"serverTs"`
}

// ErrorEvent is delivered on a session's error topic.
type ErrorEvent struct {
	MessageType string `json:"message_type"`
	ErrorKind   string `json:"errorKind"`
	Message     string `json:"message"`
	ServerTs    int64  `json:"serverTs"`
}

// Outbound message type tags.
const (
	MessageTypeDiagramUpdate = "diagram_update"
	MessageTypeCursorEvent   = "cursor_event"
	MessageTypePresence      = "presence_event"
	MessageTypeSyncResponse  = "sync_response"
	MessageTypeError         = "error"
)
