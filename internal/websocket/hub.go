// Package websocket implements the ops API's live progress feed: a
// broadcast hub that pushes one message per task terminal event
// (early-exit/fail/success) to every connected operator client, alongside
// the Notifier's webhook delivery.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	Send chan []byte
}

// Message is the wire shape pushed to every connected client.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewHub constructs and starts a Hub. Callers own its lifetime; there is no
// process-wide singleton, since the composition root may want one hub per
// server instance (tests build their own).
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) RegisterClient(client *Client)   { h.register <- client }
func (h *Hub) UnregisterClient(client *Client) { h.unregister <- client }

// BroadcastMessage fans a typed event out to every connected client.
func (h *Hub) BroadcastMessage(messageType string, data map[string]interface{}) {
	message := Message{Type: messageType, Data: data, Timestamp: time.Now()}
	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("websocket: marshal broadcast message: %v", err)
		return
	}
	h.broadcast <- jsonData
}

// BroadcastTaskEvent pushes one of the Orchestrator's terminal events
// (completed/early-exit/failed) to every connected operator client, the
// same moment the Notifier fires its webhook for the same event.
func (h *Hub) BroadcastTaskEvent(executionID, symbol, strategy, outcome, detail string) {
	h.BroadcastMessage("task_terminal", map[string]interface{}{
		"execution_id": executionID,
		"symbol":       symbol,
		"strategy":     strategy,
		"outcome":      outcome,
		"detail":       detail,
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NewClient wraps an upgraded connection for registration with hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, Send: make(chan []byte, 256)}
}
