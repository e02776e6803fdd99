package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	startTime time.Time
	checkDB   func() error
	checkRed  func() error
}

// NewHealthHandler creates a health handler. Either check func may be nil
// when the corresponding backend is not configured.
func NewHealthHandler(checkDB, checkRedis func() error) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		checkDB:   checkDB,
		checkRed:  checkRedis,
	}
}

// Health reports overall status with uptime
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Live reports process liveness
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether backing services are reachable
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if h.checkDB != nil {
		if err := h.checkDB(); err != nil {
			checks["database"] = "unavailable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.checkRed != nil {
		if err := h.checkRed(); err != nil {
			checks["redis"] = "unavailable"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	result := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		result = "degraded"
	}
	c.JSON(status, gin.H{"status": result, "checks": checks})
}
