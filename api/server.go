package api

import (
	"github.com/gin-gonic/gin"

	"github.com/umlforge/umlforge/internal/config"
	"github.com/umlforge/umlforge/internal/slogging"
)

// Server owns the HTTP surface: REST handlers, the WebSocket hub and their
// shared collaborators.
type Server struct {
	projects ProjectStore
	diagrams DiagramStore
	cache    *DiagramCache

	hub    *WebSocketHub
	reaper *PresenceReaper
	health *HealthHandler

	recognizer         DiagramRecognizer
	recognitionLimiter *APIRateLimiter
}

// ServerOption customizes optional server collaborators
type ServerOption func(*Server)

// WithCache enables the Redis snapshot cache
func WithCache(cache *DiagramCache) ServerOption {
	return func(s *Server) { s.cache = cache }
}

// WithRecognizer enables the diagram recognition endpoint
func WithRecognizer(recognizer DiagramRecognizer, limiter *APIRateLimiter) ServerOption {
	return func(s *Server) {
		s.recognizer = recognizer
		s.recognitionLimiter = limiter
	}
}

// WithHealthChecks wires readiness probes for backing services
func WithHealthChecks(checkDB, checkRedis func() error) ServerOption {
	return func(s *Server) { s.health = NewHealthHandler(checkDB, checkRedis) }
}

// NewServer wires the collaboration engine and REST plumbing together.
// The projects and diagrams stores are typically the same value behind two
// interfaces.
func NewServer(cfg *config.Config, projects ProjectStore, diagrams DiagramStore, opts ...ServerOption) *Server {
	s := &Server{
		projects: projects,
		diagrams: diagrams,
		health:   NewHealthHandler(nil, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	registry := NewPresenceRegistry()
	router := NewBroadcastRouter()
	limiter := NewUpdateRateLimiter()

	limits := SyncLimits{
		MinUpdateInterval: cfg.WebSocket.UpdateMinInterval,
		MaxNameLength:     cfg.WebSocket.MaxNameLength,
		MaxPayloadLength:  cfg.WebSocket.MaxPayloadLength,
	}
	coordinator := NewDiagramSyncCoordinator(diagrams, s.cache, registry, limiter, router, limits)

	// Inbound frames can carry a full nodes+edges payload plus envelope.
	maxMessageSize := int64(2*cfg.WebSocket.MaxPayloadLength + 64*1024)
	s.hub = NewWebSocketHub(registry, router, limiter, coordinator, projects, maxMessageSize)
	s.reaper = NewPresenceReaper(registry, limiter, cfg.WebSocket.ReaperInterval, cfg.WebSocket.ReaperMaxAge)

	return s
}

// Hub exposes the WebSocket hub, mainly for tests and shutdown accounting
func (s *Server) Hub() *WebSocketHub {
	return s.hub
}

// Reaper exposes the presence reaper so main can start it with its own context
func (s *Server) Reaper() *PresenceReaper {
	return s.reaper
}

// RegisterRoutes attaches all endpoints to the gin engine
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.Use(slogging.LoggerMiddleware())
	r.Use(slogging.Recoverer())

	r.GET("/health", s.health.Health)
	r.GET("/health/live", s.health.Live)
	r.GET("/health/ready", s.health.Ready)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/projects", s.GetProjects)
		apiGroup.POST("/projects", s.CreateProject)
		apiGroup.GET("/projects/:id", s.GetProject)
		apiGroup.DELETE("/projects/:id", s.DeleteProject)
		apiGroup.GET("/projects/:id/diagram", s.GetDiagram)
		apiGroup.GET("/projects/:id/diagrams", s.GetProjectDiagrams)
		apiGroup.PUT("/projects/:id/diagram", s.UpdateDiagram)
		apiGroup.GET("/diagrams/:id", s.GetDiagram)
		apiGroup.POST("/projects/:id/recognize", s.RecognizeDiagram)
	}

	r.GET("/ws", s.hub.HandleWS)
}
