// Package realtime streams live payment and alert activity over WebSocket.
//
// The ops dashboard subscribes to /ws/feed instead of polling: transaction
// state changes and security alerts are pushed as they happen, optionally
// filtered by user or minimum risk level.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wkarimi/nyumbapay/internal/alerts"
	"github.com/wkarimi/nyumbapay/internal/metrics"
	"github.com/wkarimi/nyumbapay/internal/risk"
)

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// EventType of a feed event.
type EventType string

const (
	EventTransaction EventType = "transaction"
	EventAlert       EventType = "alert"
)

// Event is one feed entry. UserID and RiskLevel are lifted out of the
// payload so subscription filtering never has to dig through Data.
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	UserID    string     `json:"userId,omitempty"`
	RiskLevel risk.Level `json:"riskLevel,omitempty"`
	Data      any        `json:"data"`
}

// Subscription is a client's filter. A zero Subscription receives
// everything.
type Subscription struct {
	EventTypes   []EventType `json:"eventTypes,omitempty"`
	UserIDs      []string    `json:"userIds,omitempty"`
	MinRiskLevel risk.Level  `json:"minRiskLevel,omitempty"`
}

var levelRank = map[risk.Level]int{
	risk.LevelLow:      0,
	risk.LevelMedium:   1,
	risk.LevelHigh:     2,
	risk.LevelCritical: 3,
}

// matches reports whether the event passes this subscription's filters.
func (s Subscription) matches(e *Event) bool {
	if len(s.EventTypes) > 0 {
		ok := false
		for _, t := range s.EventTypes {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(s.UserIDs) > 0 {
		ok := false
		for _, u := range s.UserIDs {
			if u == e.UserID {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if s.MinRiskLevel != "" && e.RiskLevel != "" {
		if levelRank[e.RiskLevel] < levelRank[s.MinRiskLevel] {
			return false
		}
	}
	return true
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients caps concurrent feed connections.
const MaxClients = 1000

// Hub fans events out to connected feed clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
}

// NewHub creates a feed hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run drives the hub until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("feed hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("feed hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("feed client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("feed client disconnected", "total", n)

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to serialize feed event", "error", err)
				continue
			}
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				c.mu.RLock()
				match := c.sub.matches(event)
				c.mu.RUnlock()
				if !match {
					continue
				}
				select {
				case c.send <- payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						close(c.send)
						delete(h.clients, c)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast queues an event for fan-out, dropping it if the hub is backed
// up. The feed is a convenience view; the store is the source of truth.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("feed channel full, dropping event")
	}
}

// BroadcastAlert pushes a security alert onto the feed.
func (h *Hub) BroadcastAlert(a *alerts.SecurityAlert) {
	h.Broadcast(&Event{
		Type:      EventAlert,
		Timestamp: time.Now().UTC(),
		UserID:    a.UserID,
		Data:      a,
	})
}

// BroadcastTransaction pushes a transaction update onto the feed.
func (h *Hub) BroadcastTransaction(userID string, level risk.Level, tx any) {
	h.Broadcast(&Event{
		Type:      EventTransaction,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		RiskLevel: level,
		Data:      tx,
	})
}

// HandleWebSocket upgrades HTTP to a feed connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= MaxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump consumes subscription updates from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
