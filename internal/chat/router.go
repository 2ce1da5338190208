// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
	"github.com/openlancer/relay/internal/presence"
	"github.com/openlancer/relay/internal/store"
	"github.com/openlancer/relay/internal/validation"
)

// Config tunes the socket core.
type Config struct {
	// MaxMessageBytes caps message content size.
	MaxMessageBytes int
	// SendBuffer is the per-connection outbound event buffer.
	SendBuffer int
	// EventRate and EventBurst bound inbound events per connection.
	EventRate  float64
	EventBurst int
	// TypingTimeout is how long a typing indicator lives without an
	// explicit stop.
	TypingTimeout time.Duration
}

// Router owns connection lifecycle and routes inbound events to the
// responsible component.
type Router struct {
	cfg      Config
	hub      *Hub
	tracker  *presence.Tracker
	st       store.Store
	typing   *TypingRelay
	delivery *DeliveryTracker
	syncer   *Syncer
	dispatch *Dispatcher
}

// NewRouter wires the socket core together. The hub and typing relay are
// passed in because they also run as supervised services.
func NewRouter(cfg Config, hub *Hub, tracker *presence.Tracker, st store.Store, typing *TypingRelay) *Router {
	delivery := &DeliveryTracker{st: st, hub: hub}
	r := &Router{
		cfg:      cfg,
		hub:      hub,
		tracker:  tracker,
		st:       st,
		typing:   typing,
		delivery: delivery,
		syncer:   &Syncer{st: st, hub: hub, delivery: delivery},
	}
	r.dispatch = &Dispatcher{cfg: cfg, st: st, hub: hub, tracker: tracker, delivery: delivery}
	return r
}

// Connect registers a freshly authenticated connection: it joins the user's
// rooms, announces the online transition to conversation peers on the first
// connection, and replays missed messages.
func (r *Router) Connect(ctx context.Context, c *Client) {
	r.hub.Add(c)
	first := r.tracker.Register(c.UserID, c.ID)

	convs, err := r.st.ConversationsFor(ctx, c.UserID)
	if err != nil {
		logging.Error().Err(err).Str("user", string(c.UserID)).Msg("room join on connect failed")
	} else {
		for _, conv := range convs {
			r.hub.JoinRoom(c, conv.ID)
		}
	}

	if first {
		r.broadcastPresence(ctx, c.UserID, EventUserOnline, nil)
	}

	if err := r.syncer.Replay(ctx, c); err != nil {
		logging.Error().Err(err).Str("user", string(c.UserID)).Msg("missed-message replay on connect failed")
	}

	logging.Info().
		Str("connection", c.ID).
		Str("user", string(c.UserID)).
		Bool("first_connection", first).
		Msg("connection registered")
}

// Disconnect deregisters a connection. The last connection of a user
// records the durable last-seen time and announces the offline transition.
func (r *Router) Disconnect(c *Client) {
	ctx := context.Background()
	r.hub.Remove(c)

	last := r.tracker.Deregister(c.UserID, c.ID)
	if !last {
		return
	}

	now := time.Now().UTC()
	if err := r.st.SetLastSeen(ctx, c.UserID, now); err != nil {
		logging.Error().Err(err).Str("user", string(c.UserID)).Msg("persist last-seen failed")
	}
	r.broadcastPresence(ctx, c.UserID, EventUserOffline, &now)

	logging.Info().
		Str("connection", c.ID).
		Str("user", string(c.UserID)).
		Msg("last connection closed, user offline")
}

// broadcastPresence notifies every online user sharing a conversation with
// user about an online/offline transition.
func (r *Router) broadcastPresence(ctx context.Context, user models.UserID, event string, lastSeen *time.Time) {
	contacts, err := r.st.ContactsOf(ctx, user)
	if err != nil {
		logging.Error().Err(err).Str("user", string(user)).Msg("contact resolution for presence broadcast failed")
		return
	}

	evt, err := NewEvent(event, PresencePayload{UserID: user, LastSeen: lastSeen})
	if err != nil {
		logging.Error().Err(err).Msg("build presence event")
		return
	}
	for _, contact := range r.tracker.Online(contacts) {
		r.hub.EmitToUser(contact, evt)
	}
}

// Route dispatches one inbound event. Failures go back to the originating
// connection only.
func (r *Router) Route(c *Client, evt Event) {
	ctx := context.Background()

	var err error
	switch evt.Event {
	case EventMessageSend:
		var req SendRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.dispatch.Send(ctx, c, req)
		}
	case EventMessageRead:
		var req ReadRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.delivery.HandleRead(ctx, c, req)
		}
	case EventTypingStart:
		var req TypingRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.typing.Start(ctx, c, req)
		}
	case EventTypingStop:
		var req TypingRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.typing.Stop(ctx, c, req)
		}
	case EventGetOnlineStatus:
		var req OnlineStatusRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.handleOnlineStatus(ctx, c, req)
		}
	case EventSyncMissed:
		err = r.syncer.Replay(ctx, c)
	default:
		err = errValidation("unknown event: " + evt.Event)
	}

	if err != nil {
		r.emitError(c, asSocketError(err))
	}
}

// handleOnlineStatus answers a presence query on the requesting connection.
// Offline users unseen by this process fall back to the durable last-seen
// record.
func (r *Router) handleOnlineStatus(ctx context.Context, c *Client, req OnlineStatusRequest) error {
	statuses := r.tracker.Snapshot(req.UserIDs)
	for i := range statuses {
		if statuses[i].Online || statuses[i].LastSeen != nil {
			continue
		}
		ts, err := r.st.LastSeen(ctx, statuses[i].UserID)
		if err != nil {
			return err
		}
		statuses[i].LastSeen = ts
	}

	evt, err := NewEvent(EventUserOnlineStatus, OnlineStatusPayload{Statuses: statuses})
	if err != nil {
		return err
	}
	r.hub.EmitToConn(c.ID, evt)
	return nil
}

// emitError reports a failed operation to the originating connection.
func (r *Router) emitError(c *Client, se *SocketError) {
	metrics.RecordSocketError(se.Code)
	evt, err := NewEvent(EventError, ErrorPayload{Code: se.Code, Message: se.Message})
	if err != nil {
		logging.Error().Err(err).Msg("build error event")
		return
	}
	c.enqueue(evt)
}

// decode unmarshals and validates an inbound payload.
func decode(data json.RawMessage, out interface{}) error {
	if len(data) == 0 {
		return errValidation("missing event payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errValidation("malformed event payload")
	}
	if err := validation.Validate(out); err != nil {
		return errValidation(err.Error())
	}
	return nil
}
