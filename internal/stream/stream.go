// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package stream pushes provider events to WebSocket clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/signalbus"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub serves WebSocket clients and broadcasts every published event to them as a JSON encoded
// signalbus.Message. Newly connected clients first receive the last location message of every source.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    map[string][]byte
	order   []string
}

// New returns an empty Hub.
func New(log *logger.Logger) *Hub {
	return &Hub{
		log:     logger.OrDiscard(log),
		clients: make(map[*client]struct{}),
		last:    make(map[string][]byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Attach publishes every event of bus until the returned function is called.
func (h *Hub) Attach(bus *signalbus.Bus) func() {
	return bus.Subscribe(h.Publish)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts e to every connected client. Slow clients miss messages instead of blocking the caller.
func (h *Hub) Publish(e signalbus.Event) {
	data, err := json.Marshal(e.Message())
	if err != nil {
		h.log.Error("failed to encode stream message", logger.Err(err))
		return
	}

	h.mu.Lock()
	if e.Kind == signalbus.KindLocationUpdated && e.Err == nil ||
		e.Kind == signalbus.KindUpdated && !e.Update.Has(signalbus.UpdateSatellite) {
		if _, ok := h.last[e.Source]; !ok {
			h.order = append(h.order, e.Source)
		}
		h.last[e.Source] = data
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logger.Err(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	for _, source := range h.order {
		c.send <- h.last[source]
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("stream client connected", "remote", r.RemoteAddr, "clients", total)

	go func() {
		defer func() { _ = conn.Close() }()
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			close(c.send)
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("stream client disconnected", "remote", r.RemoteAddr, "clients", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}
