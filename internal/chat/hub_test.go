// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"testing"

	"github.com/openlancer/relay/internal/models"
)

func newHubClient(user models.UserID, buffer int) *Client {
	return &Client{
		ID:     string(user) + "-conn",
		UserID: user,
		send:   make(chan Event, buffer),
		rooms:  make(map[models.ConversationID]struct{}),
		closed: make(chan struct{}),
	}
}

func TestHubEmitPrimitives(t *testing.T) {
	h := NewHub()
	a1 := newHubClient("alice", 8)
	a1.ID = "a1"
	a2 := newHubClient("alice", 8)
	a2.ID = "a2"
	bob := newHubClient("bob", 8)
	h.Add(a1)
	h.Add(a2)
	h.Add(bob)

	evt := Event{Event: "test"}

	if !h.EmitToConn("a1", evt) {
		t.Error("EmitToConn(a1) = false, want true")
	}
	if h.EmitToConn("nope", evt) {
		t.Error("EmitToConn(unknown) = true, want false")
	}

	if got := h.EmitToUser("alice", evt); got != 2 {
		t.Errorf("EmitToUser(alice) = %d, want 2", got)
	}
	if got := h.EmitToUserExcept("alice", "a1", evt); got != 1 {
		t.Errorf("EmitToUserExcept(alice, a1) = %d, want 1", got)
	}
	if len(drain(a2)) != 2 {
		t.Error("a2 should have the user emit and the except emit")
	}

	h.JoinRoom(a1, "room-1")
	h.JoinRoom(bob, "room-1")
	if got := h.EmitToRoom("room-1", "alice", evt); got != 1 {
		t.Errorf("EmitToRoom excluding alice = %d, want 1 (bob)", got)
	}

	h.Remove(a1)
	if got := h.EmitToRoom("room-1", "", evt); got != 1 {
		t.Errorf("EmitToRoom after Remove = %d, want 1", got)
	}
	if h.ConnCount() != 2 {
		t.Errorf("ConnCount() = %d, want 2", h.ConnCount())
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h := NewHub()
	slow := newHubClient("slug", 1)
	h.Add(slow)

	evt := Event{Event: "test"}
	if got := h.EmitToUser("slug", evt); got != 1 {
		t.Fatalf("first emit = %d, want 1", got)
	}

	// Buffer is full now; the next emit drops the connection.
	if got := h.EmitToUser("slug", evt); got != 0 {
		t.Errorf("emit to saturated connection = %d, want 0", got)
	}
	select {
	case <-slow.closed:
	default:
		t.Error("slow consumer should have been closed")
	}
}
