/*
 * Copyright 2025 Veritime Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/reconcile"
)

// Hub fans reconciliation progress events out to websocket subscribers.
// It implements reconcile.Notifier; a slow or dead subscriber is dropped
// rather than ever blocking the engine.
type Hub struct {
	logger   logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan reconcile.ProgressEvent
	conn *websocket.Conn
}

const clientBuffer = 16

// NewHub creates an empty hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger: log.WithComponent("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Notify implements reconcile.Notifier.
func (h *Hub) Notify(event reconcile.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// Subscriber cannot keep up; cut it loose.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{
		send: make(chan reconcile.ProgressEvent, clientBuffer),
		conn: conn,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// SubscriberCount reports connected clients, for the status endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()

	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop drains the connection so pings and close frames are
// processed; inbound payloads are ignored.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
