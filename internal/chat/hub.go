// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"
	"sync"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
)

// Hub is the connection registry and the only place that routes events to
// live connections. It exposes three narrow primitives: emit to a single
// connection, to every connection of a user, and to every member connection
// of a room.
//
// A connection whose send buffer is full is dropped rather than allowed to
// stall fan-out for everyone else; the client reconnects and missed-message
// sync covers the gap.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
	users map[models.UserID]map[string]*Client
	rooms map[models.ConversationID]map[string]*Client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Client),
		users: make(map[models.UserID]map[string]*Client),
		rooms: make(map[models.ConversationID]map[string]*Client),
	}
}

// Add registers a connection with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c.ID] = c
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		h.users[c.UserID] = set
	}
	set[c.ID] = c
}

// Remove deregisters a connection and leaves all its rooms.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.ID)
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	for room := range c.rooms {
		h.leaveRoomLocked(room, c)
	}
}

// JoinRoom subscribes a connection to a room.
func (h *Hub) JoinRoom(c *Client, room models.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.rooms[room]
	if !ok {
		set = make(map[string]*Client)
		h.rooms[room] = set
	}
	set[c.ID] = c
	c.rooms[room] = struct{}{}
}

// JoinUser subscribes every live connection of user to a room. Used when a
// conversation is created or gains a member while its users are online.
func (h *Hub) JoinUser(user models.UserID, room models.ConversationID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.users[user] {
		set, ok := h.rooms[room]
		if !ok {
			set = make(map[string]*Client)
			h.rooms[room] = set
		}
		set[c.ID] = c
		c.rooms[room] = struct{}{}
	}
}

func (h *Hub) leaveRoomLocked(room models.ConversationID, c *Client) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
}

// EmitToConn sends an event to one connection. It reports whether the
// connection was found and accepted the event.
func (h *Hub) EmitToConn(connID string, evt Event) bool {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver([]*Client{c}, evt) == 1
}

// EmitToUser sends an event to every connection of user.
func (h *Hub) EmitToUser(user models.UserID, evt Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[user]))
	for _, c := range h.users[user] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.deliver(targets, evt)
}

// EmitToUserExcept sends an event to every connection of user except the
// named one, for multi-device echo.
func (h *Hub) EmitToUserExcept(user models.UserID, exceptConnID string, evt Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[user]))
	for id, c := range h.users[user] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(targets, evt)
}

// EmitToRoom sends an event to every connection subscribed to room, skipping
// all connections of exceptUser.
func (h *Hub) EmitToRoom(room models.ConversationID, exceptUser models.UserID, evt Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		if c.UserID != exceptUser {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(targets, evt)
}

// deliver enqueues evt on each target, closing slow consumers outside the
// lock. Returns the number of successful enqueues.
func (h *Hub) deliver(targets []*Client, evt Event) int {
	sent := 0
	var slow []*Client
	for _, c := range targets {
		if c.enqueue(evt) {
			sent++
		} else {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		metrics.DroppedConnections.Inc()
		logging.Warn().
			Str("connection", c.ID).
			Str("user", string(c.UserID)).
			Str("event", evt.Event).
			Msg("dropping slow consumer")
		c.Close()
	}
	return sent
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Serve implements suture.Service. The hub itself is passive; Serve blocks
// until shutdown, then closes every connection so pumps drain promptly.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string {
	return "chat-hub"
}
