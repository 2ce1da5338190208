// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
	"github.com/openlancer/relay/internal/store"
)

// TypingRelay broadcasts ephemeral typing transitions to conversation
// peers. Nothing is persisted and delivery is best-effort. Indicators
// without an explicit stop expire server-side so an ungraceful disconnect
// never leaves a peer stuck on "typing".
//
// TypingRelay is a suture.Service; Serve runs the expiry reaper.
type TypingRelay struct {
	hub     *Hub
	st      store.Store
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	active map[typingKey]time.Time
}

// typingKey scopes one live indicator to a typist and their target.
type typingKey struct {
	user      models.UserID
	room      models.ConversationID
	recipient models.UserID
}

// NewTypingRelay creates a relay whose indicators expire after timeout.
func NewTypingRelay(hub *Hub, st store.Store, timeout time.Duration) *TypingRelay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TypingRelay{
		hub:     hub,
		st:      st,
		timeout: timeout,
		now:     time.Now,
		active:  make(map[typingKey]time.Time),
	}
}

// Start relays a typing:start to the target's online peers and arms the
// expiry timer. Repeated starts refresh the timer.
func (t *TypingRelay) Start(ctx context.Context, c *Client, req TypingRequest) error {
	key, err := t.relay(ctx, c.UserID, req, EventTypingStart)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.active[key] = t.now().Add(t.timeout)
	t.mu.Unlock()
	return nil
}

// Stop relays a typing:stop and disarms the expiry timer.
func (t *TypingRelay) Stop(ctx context.Context, c *Client, req TypingRequest) error {
	key, err := t.relay(ctx, c.UserID, req, EventTypingStop)
	if err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.active, key)
	t.mu.Unlock()
	return nil
}

// relay validates the target and broadcasts one typing transition.
func (t *TypingRelay) relay(ctx context.Context, user models.UserID, req TypingRequest, event string) (typingKey, error) {
	switch {
	case req.RoomID != "" && req.RecipientID != "":
		return typingKey{}, errValidation("specify either recipientId or roomId, not both")

	case req.RoomID != "":
		conv, err := t.st.Conversation(ctx, req.RoomID)
		if err != nil {
			return typingKey{}, err
		}
		if !conv.HasMember(user) {
			return typingKey{}, errForbidden("not a member of this room")
		}
		evt, err := NewEvent(event, TypingPayload{UserID: user, ConversationID: conv.ID})
		if err != nil {
			return typingKey{}, err
		}
		t.hub.EmitToRoom(conv.ID, user, evt)
		return typingKey{user: user, room: conv.ID}, nil

	case req.RecipientID != "":
		evt, err := NewEvent(event, TypingPayload{UserID: user})
		if err != nil {
			return typingKey{}, err
		}
		t.hub.EmitToUser(req.RecipientID, evt)
		return typingKey{user: user, recipient: req.RecipientID}, nil

	default:
		return typingKey{}, errValidation("recipientId or roomId required")
	}
}

// sweep broadcasts implicit stops for every expired indicator.
func (t *TypingRelay) sweep() {
	now := t.now()

	t.mu.Lock()
	var expired []typingKey
	for key, deadline := range t.active {
		if !deadline.After(now) {
			expired = append(expired, key)
			delete(t.active, key)
		}
	}
	t.mu.Unlock()

	for _, key := range expired {
		metrics.TypingExpirations.Inc()
		evt, err := NewEvent(EventTypingStop, TypingPayload{UserID: key.user, ConversationID: key.room})
		if err != nil {
			logging.Error().Err(err).Msg("build implicit typing stop")
			continue
		}
		if key.room != "" {
			t.hub.EmitToRoom(key.room, key.user, evt)
		} else {
			t.hub.EmitToUser(key.recipient, evt)
		}
	}
}

// Serve implements suture.Service, running the expiry reaper until
// shutdown.
func (t *TypingRelay) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.sweep()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (t *TypingRelay) String() string {
	return "typing-relay"
}
