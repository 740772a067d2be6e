// Package opsapi is the small operations HTTP surface: health, symbol
// addition, progress reads, and cascade deletion. It is not the trading
// dashboard (a separate product); it is the transport the composition root
// exposes so an operator or a script can drive the Coordinator and inspect
// the Progress Store.
package opsapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ares_api/internal/cascade"
	"ares_api/internal/coordinator"
	"ares_api/internal/middleware"
	"ares_api/internal/progressstore"
	"ares_api/internal/websocket"
)

// Server wires the Coordinator, Progress Store and Cascade store into a gin
// engine plus a small read-only gorilla/mux admin sub-router mounted under
// /admin-console.
type Server struct {
	coord    *coordinator.Coordinator
	progress *progressstore.Store
	cascade  *cascade.Store
	ginMode  string
	hub      *websocket.Hub
	pingDB   func() error
}

func New(coord *coordinator.Coordinator, progress *progressstore.Store, casc *cascade.Store, ginMode string) *Server {
	return &Server{coord: coord, progress: progress, cascade: casc, ginMode: ginMode, hub: websocket.NewHub()}
}

// WithDBPing attaches a connectivity check the /health endpoint runs
// against the Analysis catalog, in addition to the process-liveness check
// it always reports.
func (s *Server) WithDBPing(ping func() error) *Server {
	s.pingDB = ping
	return s
}

// Hub exposes the live progress feed so the composition root can attach it
// to the Notifier (internal/notifier.Notifier.WithHub) before the first
// task runs.
func (s *Server) Hub() *websocket.Hub { return s.hub }

// SetCoordinator binds the Coordinator after construction. The composition
// root needs the Server's Hub to build the Notifier before the Coordinator
// can be built, so New accepts a nil coordinator and this closes the loop.
func (s *Server) SetCoordinator(coord *coordinator.Coordinator) { s.coord = coord }

// Router builds the gin engine. JWT-protected routes use
// middleware.AuthMiddleware; health stays open for load balancer probes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.ginMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", s.handleHealth)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.RateLimiter(60, time.Minute))
	{
		admin.POST("/symbols", s.handleAddSymbol)
		admin.GET("/executions/:id", s.handleGetExecutionProgress)
		admin.GET("/executions", s.handleListActiveExecutions)
		admin.POST("/cascade/preview", s.handleCascadePreview)
		admin.POST("/cascade/delete", s.handleCascadeDelete)
	}

	r.Any("/admin-console/*path", gin.WrapH(newAdminMux(s)))

	liveFeed := r.Group("/admin")
	liveFeed.Use(middleware.AuthMiddleware())
	liveFeed.GET("/live", s.handleLiveFeed)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.pingDB != nil {
		if err := s.pingDB(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
