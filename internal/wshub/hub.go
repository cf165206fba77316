// Package wshub fans events.Bus CloudEvents out to WebSocket clients. Two
// hubs are wired in cmd/server: one for /ws/game_events (scoreboard and
// round-advance notifications every spectator receives) and one for
// /ws/live_events (flag-stolen notifications), matching the original's
// two distinct WebSocket endpoints rather than one combined firehose.
package wshub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adarena/backend/internal/events"
)

// Hub manages the WebSocket connections for one event stream and
// broadcasts every CloudEvent it is fed to all of them.
type Hub struct {
	name string

	clients    map[*websocket.Conn]bool
	broadcast  chan *events.CloudEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader

	initFunc func() (*events.CloudEvent, error)
}

// New creates a hub identified by name (used only in log lines).
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan *events.CloudEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx-like
// shutdown is signalled by closing done.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Debug("wshub: client connected", "hub", h.name, "total", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			slog.Debug("wshub: client disconnected", "hub", h.name, "total", len(h.clients))

		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					slog.Warn("wshub: write failed, dropping client", "hub", h.name, "error", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SetInitFunc registers a callback invoked for every newly connected client,
// before it joins the broadcast group — used by /ws/game_events to send an
// init_scoreboard snapshot so late joiners don't wait for the next
// scoreboard_update.
func (h *Hub) SetInitFunc(fn func() (*events.CloudEvent, error)) {
	h.initFunc = fn
}

// Pump subscribes to bus for the given event types and feeds every
// received CloudEvent into the hub's broadcast channel until done closes.
func (h *Hub) Pump(bus *events.Bus, done <-chan struct{}, eventTypes ...string) {
	ch := bus.Subscribe(eventTypes...)
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-done:
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				select {
				case h.broadcast <- event:
				default:
					slog.Warn("wshub: broadcast queue full, dropping event", "hub", h.name, "type", event.Type)
				}
			}
		}
	}()
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection. Clients never send meaningful data; the read loop only
// exists to detect disconnects (matching the original's receive-only
// spectator streams).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("wshub: upgrade failed", "hub", h.name, "error", err)
		return
	}

	if h.initFunc != nil {
		if event, err := h.initFunc(); err != nil {
			slog.Warn("wshub: init message failed", "hub", h.name, "error", err)
		} else if event != nil {
			if err := conn.WriteJSON(event); err != nil {
				slog.Warn("wshub: init message write failed", "hub", h.name, "error", err)
			}
		}
	}

	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Stats reports connected-client and pending-broadcast counts, used by the
// admin monitor endpoint.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"hub":               h.name,
		"connected_clients": len(h.clients),
		"broadcast_queue":   len(h.broadcast),
	}
}
