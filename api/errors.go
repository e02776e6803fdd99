package api

import (
	"fmt"
	"time"
)

// Error kinds reported to websocket clients in the errorKind field.
const (
	ErrorKindValidation   = "validation_error"
	ErrorKindThrottled    = "throttled"
	ErrorKindNotFound     = "not_found"
	ErrorKindUnauthorized = "unauthorized_room_access"
	ErrorKindInternal     = "internal_error"
)

// ValidationError indicates an oversized or malformed field, rejected before
// any mutation or broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ThrottledError indicates the session exceeded the update rate limit. It is
// reported to the offending session only, never broadcast.
type ThrottledError struct {
	SessionID   string
	MinInterval time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many updates, minimum interval is %s", e.MinInterval)
}

// NotFoundError indicates an unknown project or diagram.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnauthorizedRoomAccessError indicates an ephemeral message from a session
// that never entered the room. It is logged and swallowed, never surfaced to
// the caller.
type UnauthorizedRoomAccessError struct {
	ProjectID string
	SessionID string
}

func (e *UnauthorizedRoomAccessError) Error() string {
	return fmt.Sprintf("session %s is not a member of project %s", e.SessionID, e.ProjectID)
}

// InternalError wraps an unexpected collaborator failure. The generic message
// goes to the caller; the cause is logged server-side only.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return "internal error"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// ErrorKindOf maps an engine error to its wire errorKind.
func ErrorKindOf(err error) string {
	switch err.(type) {
	case *ValidationError:
		return ErrorKindValidation
	case *ThrottledError:
		return ErrorKindThrottled
	case *NotFoundError:
		return ErrorKindNotFound
	case *UnauthorizedRoomAccessError:
		return ErrorKindUnauthorized
	default:
		return ErrorKindInternal
	}
}

// PublicMessage returns the message safe to send to the caller. Internal
// failures collapse to a generic message.
func PublicMessage(err error) string {
	if _, ok := err.(*InternalError); ok {
		return "internal error"
	}
	return err.Error()
}
