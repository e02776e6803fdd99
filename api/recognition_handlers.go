package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umlforge/umlforge/internal/slogging"
)

const (
	maxRecognitionImageSize = 10 << 20 // 10 MiB
	recognitionAction       = "recognize"
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// RecognizeDiagram accepts a multipart image upload and returns the
// recognized diagram structure. The result is returned to the caller, not
// written to the project; committing it goes through the normal update path.
// POST /api/projects/:id/recognize
func (s *Server) RecognizeDiagram(c *gin.Context) {
	if s.recognizer == nil {
		c.JSON(http.StatusServiceUnavailable, Error{
			Error:   "recognition_disabled",
			Message: "Diagram recognition is not enabled on this server",
		})
		return
	}

	id, ok := parseProjectID(c)
	if !ok {
		return
	}

	if _, err := s.projects.Get(c.Request.Context(), id); err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "Project not found",
			})
			return
		}
		slogging.Get().Error("Project lookup failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to look up project",
		})
		return
	}

	if s.recognitionLimiter != nil {
		allowed, err := s.recognitionLimiter.Allow(c.Request.Context(), c.ClientIP(), recognitionAction)
		if err == nil && !allowed {
			c.JSON(http.StatusTooManyRequests, Error{
				Error:   "rate_limited",
				Message: "Too many recognition requests; try again later",
			})
			return
		}
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Multipart field 'image' is required",
		})
		return
	}
	if fileHeader.Size > maxRecognitionImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, Error{
			Error:   "invalid_request",
			Message: "Image exceeds the 10MB limit",
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[mimeType] {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Image must be PNG, JPEG or WebP",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		slogging.Get().Error("Failed to open uploaded image: %v", err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to read uploaded image",
		})
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(io.LimitReader(file, maxRecognitionImageSize+1))
	if err != nil {
		slogging.Get().Error("Failed to read uploaded image: %v", err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to read uploaded image",
		})
		return
	}

	result, err := s.recognizer.Recognize(c.Request.Context(), imageBytes, mimeType)
	if err != nil {
		slogging.Get().Error("Recognition failed for project %s: %v", id, err)
		c.JSON(http.StatusBadGateway, Error{
			Error:   "recognition_failed",
			Message: "Diagram recognition failed",
		})
		return
	}

	var parsed struct {
		Nodes json.RawMessage `json:"nodes"`
		Edges json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil || parsed.Nodes == nil {
		slogging.Get().Warn("Recognition produced unparseable output for project %s: %v", id, err)
		c.JSON(http.StatusBadGateway, Error{
			Error:   "recognition_failed",
			Message: "Recognition produced an unreadable result",
		})
		return
	}
	if parsed.Edges == nil {
		parsed.Edges = json.RawMessage("[]")
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": id,
		"nodes":      parsed.Nodes,
		"edges":      parsed.Edges,
	})
}
