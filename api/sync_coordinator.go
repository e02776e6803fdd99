package api

import (
	"context"
	"errors"
	"time"

	"github.com/umlforge/umlforge/internal/slogging"
)

// SyncLimits are the validation and throttling caps applied to updates.
type SyncLimits struct {
	// MinUpdateInterval is the minimum spacing between accepted updates
	// from one session
	MinUpdateInterval time.Duration
	// MaxNameLength caps the diagram name field
	MaxNameLength int
	// MaxPayloadLength caps the serialized nodes and edges fields
	MaxPayloadLength int
}

// DefaultSyncLimits mirrors the documented protocol caps.
func DefaultSyncLimits() SyncLimits {
	return SyncLimits{
		MinUpdateInterval: 100 * time.Millisecond,
		MaxNameLength:     255,
		MaxPayloadLength:  5_000_000,
	}
}

// DiagramSyncCoordinator validates, throttles, version-checks and commits
// diagram edits, then fans the resulting events out. Concurrent writes to
// the same project are reconciled by overwrite plus an advisory conflict
// flag (last-writer-wins); version allocation is delegated entirely to the
// store's optimistic lock.
type DiagramSyncCoordinator struct {
	store    DiagramStore
	cache    *DiagramCache // nil disables caching
	registry *PresenceRegistry
	limiter  *UpdateRateLimiter
	router   *BroadcastRouter
	limits   SyncLimits
	now      func() time.Time
}

// NewDiagramSyncCoordinator creates a new coordinator
func NewDiagramSyncCoordinator(
	store DiagramStore,
	cache *DiagramCache,
	registry *PresenceRegistry,
	limiter *UpdateRateLimiter,
	router *BroadcastRouter,
	limits SyncLimits,
) *DiagramSyncCoordinator {
	return &DiagramSyncCoordinator{
		store:    store,
		cache:    cache,
		registry: registry,
		limiter:  limiter,
		router:   router,
		limits:   limits,
		now:      time.Now,
	}
}

// ApplyUpdate commits a partial diagram patch and broadcasts the resulting
// snapshot event to the project's primary topic. Validation and throttling
// reject before any mutation or broadcast; the throttle error goes to the
// offending session only.
func (c *DiagramSyncCoordinator) ApplyUpdate(ctx context.Context, sessionID string, req *UpdateRequest) (*SyncEvent, error) {
	if err := c.validateUpdate(req); err != nil {
		return nil, err
	}

	if !c.limiter.Allow(sessionID, c.limits.MinUpdateInterval) {
		slogging.Get().Warn("Rate limit exceeded for session %s on project %s", sessionID, req.ProjectID)
		return nil, &ThrottledError{SessionID: sessionID, MinInterval: c.limits.MinUpdateInterval}
	}

	snapshot, err := c.loadSnapshot(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	patch := DiagramPatch{Name: req.Name, Nodes: req.Nodes, Edges: req.Edges, Viewport: req.Viewport}
	conflict := req.BaseVersion != nil && *req.BaseVersion != snapshot.Version

	newVersion, err := c.store.CompareAndSave(ctx, req.ProjectID, patch, snapshot.Version)
	if errors.Is(err, ErrVersionConflict) {
		// Another writer allocated our version first. Re-read and retry
		// once; the conflict flag is recomputed against the fresh version.
		snapshot, err = c.store.Load(ctx, req.ProjectID)
		if err != nil {
			return nil, c.storeError(req.ProjectID, err)
		}
		conflict = req.BaseVersion != nil && *req.BaseVersion != snapshot.Version
		newVersion, err = c.store.CompareAndSave(ctx, req.ProjectID, patch, snapshot.Version)
	}
	if err != nil {
		return nil, c.storeError(req.ProjectID, err)
	}

	merged := mergePatch(snapshot, patch)
	merged.Version = newVersion

	if c.cache != nil {
		if err := c.cache.Put(ctx, merged); err != nil {
			slogging.Get().Warn("Failed to refresh diagram cache for %s: %v", req.ProjectID, err)
		}
	}

	event := &SyncEvent{
		MessageType: MessageTypeDiagramUpdate,
		ProjectID:   req.ProjectID,
		ClientID:    req.ClientID,
		Name:        merged.Name,
		Nodes:       merged.Nodes,
		Edges:       merged.Edges,
		Viewport:    merged.Viewport,
		Version:     newVersion,
		ServerTs:    c.now().UnixMilli(),
		Conflict:    conflict,
	}
	c.router.Publish(SnapshotTopic(req.ProjectID), event)

	slogging.Get().Debug("Diagram updated - project: %s, version: %d, conflict: %t",
		req.ProjectID, newVersion, conflict)
	return event, nil
}

// ApplyCursor relays an ephemeral payload to the project's cursor topic.
// It never surfaces an error to the caller: a dropped cursor update is a
// normal lossy outcome, not a failure.
func (c *DiagramSyncCoordinator) ApplyCursor(projectID, sessionID string, payload map[string]any) {
	logger := slogging.Get()

	if len(payload) == 0 {
		logger.Debug("Dropping empty cursor payload from session %s", sessionID)
		return
	}

	if !c.registry.IsMember(projectID, sessionID) {
		err := &UnauthorizedRoomAccessError{ProjectID: projectID, SessionID: sessionID}
		logger.Warn("Dropping cursor message: %v", err)
		return
	}

	if _, ok := payload["serverTs"]; !ok {
		payload["serverTs"] = c.now().UnixMilli()
	}
	payload["message_type"] = MessageTypeCursorEvent

	c.router.Publish(CursorTopic(projectID), payload)
}

// RequestSync fetches the current snapshot and delivers it point-to-point to
// the requesting session only.
func (c *DiagramSyncCoordinator) RequestSync(ctx context.Context, projectID, sessionID string) (*SyncResponse, error) {
	snapshot, err := c.loadSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}

	response := &SyncResponse{
		MessageType: MessageTypeSyncResponse,
		ProjectID:   projectID,
		Name:        snapshot.Name,
		Nodes:       snapshot.Nodes,
		Edges:       snapshot.Edges,
		Viewport:    snapshot.Viewport,
		Version:     snapshot.Version,
		ServerTs:    c.now().UnixMilli(),
	}
	c.router.Publish(SessionSyncTopic(sessionID), response)

	slogging.Get().Debug("Sync delivered - project: %s, version: %d, session: %s",
		projectID, snapshot.Version, sessionID)
	return response, nil
}

func (c *DiagramSyncCoordinator) validateUpdate(req *UpdateRequest) error {
	if req.Name != nil && len(*req.Name) > c.limits.MaxNameLength {
		return &ValidationError{Field: "name", Reason: "too long"}
	}
	if req.Nodes != nil && len(*req.Nodes) > c.limits.MaxPayloadLength {
		return &ValidationError{Field: "nodes", Reason: "payload too large"}
	}
	if req.Edges != nil && len(*req.Edges) > c.limits.MaxPayloadLength {
		return &ValidationError{Field: "edges", Reason: "payload too large"}
	}
	return nil
}

// loadSnapshot consults the cache first and falls back to the store
func (c *DiagramSyncCoordinator) loadSnapshot(ctx context.Context, projectID string) (*Diagram, error) {
	if c.cache != nil {
		if cached := c.cache.Get(ctx, projectID); cached != nil {
			return cached, nil
		}
	}

	snapshot, err := c.store.Load(ctx, projectID)
	if err != nil {
		return nil, c.storeError(projectID, err)
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, snapshot); err != nil {
			slogging.Get().Warn("Failed to cache diagram %s: %v", projectID, err)
		}
	}
	return snapshot, nil
}

func (c *DiagramSyncCoordinator) storeError(projectID string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Resource: "diagram", ID: projectID}
	}
	slogging.Get().Error("Diagram store failure for project %s: %v", projectID, err)
	return &InternalError{Cause: err}
}

// mergePatch applies a patch over a snapshot without mutating it
func mergePatch(snapshot *Diagram, patch DiagramPatch) *Diagram {
	merged := *snapshot
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Nodes != nil {
		merged.Nodes = *patch.Nodes
	}
	if patch.Edges != nil {
		merged.Edges = *patch.Edges
	}
	if patch.Viewport != nil {
		vp := *patch.Viewport
		merged.Viewport = &vp
	}
	return &merged
}
