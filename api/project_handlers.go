package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/umlforge/umlforge/internal/slogging"
)

// CreateProjectRequest is the POST /api/projects body
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	PackageBase string `json:"package_base"`
}

// GetProjects returns all projects
// GET /api/projects
func (s *Server) GetProjects(c *gin.Context) {
	projects, err := s.projects.List(c.Request.Context())
	if err != nil {
		slogging.Get().Error("Failed to list projects: %v", err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to list projects",
		})
		return
	}
	c.JSON(http.StatusOK, projects)
}

// GetProject returns a single project by ID
// GET /api/projects/:id
func (s *Server) GetProject(c *gin.Context) {
	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	project, err := s.projects.Get(c.Request.Context(), id)
	if err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Project not found",
			})
			return
		}
		slogging.Get().Error("Failed to get project %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to get project",
		})
		return
	}
	c.JSON(http.StatusOK, project)
}

// CreateProject creates a project together with its default diagram
// POST /api/projects
func (s *Server) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 255 {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Project name must be between 1 and 255 characters",
		})
		return
	}

	project := &Project{
		Id:          uuid.New(),
		Name:        name,
		PackageBase: strings.TrimSpace(req.PackageBase),
	}
	if err := s.projects.Create(c.Request.Context(), project); err != nil {
		slogging.Get().Error("Failed to create project %q: %v", name, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to create project",
		})
		return
	}

	slogging.Get().Info("Created project %s (%s)", project.Id, project.Name)
	c.JSON(http.StatusCreated, project)
}

// DeleteProject removes a project and its diagram
// DELETE /api/projects/:id
func (s *Server) DeleteProject(c *gin.Context) {
	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	if err := s.projects.Delete(c.Request.Context(), id); err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Project not found",
			})
			return
		}
		slogging.Get().Error("Failed to delete project %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to delete project",
		})
		return
	}

	if s.cache != nil {
		s.cache.Invalidate(c.Request.Context(), id)
	}

	slogging.Get().Info("Deleted project %s", id)
	c.Status(http.StatusNoContent)
}

// parseProjectID validates the :id path parameter as a UUID and writes the
// error response itself when invalid.
func parseProjectID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: "Invalid project ID format",
		})
		return "", false
	}
	return id, true
}
