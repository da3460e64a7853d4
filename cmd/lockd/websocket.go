// WebSocket event hub. Connected clients receive every outbound domain
// event the lock service emits, optionally filtered by subscription.
package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quartzcrm/backend/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// lockd serves localhost clients only
		return true
	},
}

// WSEnvelope wraps every message sent to clients.
type WSEnvelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// WSClient is one connected subscriber.
type WSClient struct {
	id            string
	conn          *websocket.Conn
	send          chan []byte
	hub           *WSHub
	mu            sync.Mutex
	subscriptions map[string]bool
}

// WSHub maintains client connections and fans events out to them. It
// satisfies the lock service's Emitter contract.
type WSHub struct {
	clients    map[string]*WSClient
	register   chan *WSClient
	unregister chan *WSClient
	events     chan WSEnvelope
	log        *logging.Logger
	mu         sync.RWMutex
}

// NewWSHub creates the hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		events:     make(chan WSEnvelope, 256),
		log:        logging.Get(),
	}
	go hub.run()
	return hub
}

// Emit queues a domain event for broadcast. Fire-and-forget: a full queue
// drops the event rather than blocking the lock service.
func (h *WSHub) Emit(eventID string, payload interface{}) {
	envelope := WSEnvelope{
		Event:     eventID,
		Data:      payload,
		Timestamp: time.Now().Unix(),
	}
	select {
	case h.events <- envelope:
	default:
		h.log.Warn("event queue full, dropping event", map[string]interface{}{"event": eventID})
	}
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.log.Debug("websocket client connected", map[string]interface{}{"client_id": client.id})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", map[string]interface{}{"client_id": client.id})

		case envelope := <-h.events:
			raw, err := json.Marshal(envelope)
			if err != nil {
				h.log.Error("failed to marshal event", err, map[string]interface{}{"event": envelope.Event})
				continue
			}
			var stalled []*WSClient
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.wants(envelope.Event) {
					continue
				}
				select {
				case client.send <- raw:
				default:
					// Slow consumer; drop the connection
					stalled = append(stalled, client)
				}
			}
			h.mu.RUnlock()
			h.mu.Lock()
			for _, client := range stalled {
				if _, ok := h.clients[client.id]; ok {
					delete(h.clients, client.id)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// wants reports whether the client subscribed to the event. No explicit
// subscriptions means everything.
func (c *WSClient) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[event]
}

func (c *WSClient) readPump() {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.mu.Unlock()
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// HandleWebSocket upgrades connections and registers them with the hub.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
			return
		}

		client := &WSClient{
			id:            time.Now().Format("20060102150405.000000") + "-" + r.RemoteAddr,
			conn:          conn,
			send:          make(chan []byte, 256),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
