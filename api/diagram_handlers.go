package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umlforge/umlforge/internal/slogging"
)

// DiagramPatchRequest is the PUT /api/projects/:id/diagram body. Absent
// fields keep their stored values; version is the version the caller last
// saw and gates the write.
type DiagramPatchRequest struct {
	Name     *string `json:"name,omitempty"`
	Nodes    *string `json:"nodes,omitempty"`
	Edges    *string `json:"edges,omitempty"`
	Viewport *string `json:"viewport,omitempty"`
	Version  int64   `json:"version"`
}

// GetDiagram returns the current diagram snapshot for a project
// GET /api/projects/:id/diagram and GET /api/diagrams/:id
func (s *Server) GetDiagram(c *gin.Context) {
	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	if s.cache != nil {
		if cached := s.cache.Get(c.Request.Context(), id); cached != nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	diagram, err := s.diagrams.Load(c.Request.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Diagram not found",
			})
			return
		}
		slogging.Get().Error("Failed to load diagram %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load diagram",
		})
		return
	}

	if s.cache != nil {
		if err := s.cache.Put(c.Request.Context(), diagram); err != nil {
			slogging.Get().Debug("Cache put failed for diagram %s: %v", id, err)
		}
	}
	c.JSON(http.StatusOK, diagram)
}

// GetProjectDiagrams returns the project's diagrams as a list. Projects own
// exactly one diagram, so the list always has one element; the list shape is
// kept for clients that predate the 1:1 ownership model.
// GET /api/projects/:id/diagrams
func (s *Server) GetProjectDiagrams(c *gin.Context) {
	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	diagram, err := s.diagrams.Load(c.Request.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Project not found",
			})
			return
		}
		slogging.Get().Error("Failed to load diagrams for project %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load diagrams",
		})
		return
	}
	c.JSON(http.StatusOK, []Diagram{*diagram})
}

// UpdateDiagram applies a partial patch through the same optimistic path the
// collaborative engine uses. A stale version gets 409 rather than the
// advisory conflict flag: REST callers have no broadcast stream to reconcile
// against, so they must re-read and retry.
// PUT /api/projects/:id/diagram
func (s *Server) UpdateDiagram(c *gin.Context) {
	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	var req DiagramPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	if req.Name != nil && len(*req.Name) > 255 {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Diagram name must be at most 255 characters",
		})
		return
	}

	patch := DiagramPatch{Name: req.Name, Nodes: req.Nodes, Edges: req.Edges, Viewport: req.Viewport}
	newVersion, err := s.diagrams.CompareAndSave(c.Request.Context(), id, patch, req.Version)
	if err != nil {
		switch err {
		case ErrNotFound:
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Diagram not found",
			})
		case ErrVersionConflict:
			c.JSON(http.StatusConflict, Error{
				Error:   "version_conflict",
				Message: "Diagram was modified by another writer; reload and retry",
			})
		default:
			slogging.Get().Error("Failed to update diagram %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, Error{
				Error:   "server_error",
				Message: "Failed to update diagram",
			})
		}
		return
	}

	if s.cache != nil {
		s.cache.Invalidate(c.Request.Context(), id)
	}

	diagram, err := s.diagrams.Load(c.Request.Context(), id)
	if err != nil {
		slogging.Get().Error("Failed to reload diagram %s after update: %v", id, err)
		c.JSON(http.StatusOK, gin.H{"version": newVersion})
		return
	}
	c.JSON(http.StatusOK, diagram)
}
