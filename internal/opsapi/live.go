package opsapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"ares_api/internal/logger"
	"ares_api/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator tooling only; there is no browser dashboard origin to pin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLiveFeed upgrades GET /admin/live to a websocket connection that
// receives one message per task terminal event, mirroring what the
// Notifier delivers to the configured webhook.
func (s *Server) handleLiveFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("opsapi: websocket upgrade failed", "error", err.Error())
		return
	}

	client := websocket.NewClient(s.hub, conn)
	s.hub.RegisterClient(client)

	go client.WritePump()
	client.ReadPump()
}
