// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
	"github.com/openlancer/relay/internal/presence"
	"github.com/openlancer/relay/internal/store"
)

// Dispatcher accepts send requests, persists messages, and fans them out to
// every connection of every online recipient.
type Dispatcher struct {
	cfg      Config
	st       store.Store
	hub      *Hub
	tracker  *presence.Tracker
	delivery *DeliveryTracker
}

// Send handles one message:send request from a connection. The persisted
// message is echoed to all of the sender's connections as acknowledgment,
// so every device converges on the same message list.
func (d *Dispatcher) Send(ctx context.Context, c *Client, req SendRequest) error {
	if len(req.Content) > d.cfg.MaxMessageBytes {
		return errValidation(fmt.Sprintf("content exceeds %d bytes", d.cfg.MaxMessageBytes))
	}

	conv, err := d.resolveTarget(ctx, c, req)
	if err != nil {
		return err
	}

	msgType := models.MessageType(req.MessageType)
	if msgType == "" {
		msgType = models.MessageText
	}

	msg := &models.Message{
		ID:             models.MessageID(uuid.New().String()),
		ConversationID: conv.ID,
		SenderID:       c.UserID,
		Content:        req.Content,
		Type:           msgType,
		Mentions:       req.Mentions,
		CreatedAt:      time.Now().UTC(),
	}

	persisted, created, err := d.st.AppendMessage(ctx, msg, req.ClientToken)
	if err != nil {
		return err
	}

	receiveEvt, err := NewEvent(EventMessageReceive, MessagePayload{Message: persisted})
	if err != nil {
		return err
	}

	// Duplicate client retry: re-acknowledge without fanning out again.
	if !created {
		d.hub.EmitToConn(c.ID, receiveEvt)
		return nil
	}
	metrics.MessagesSent.Inc()

	// Acknowledgment and multi-device echo in one emit.
	d.hub.EmitToUser(c.UserID, receiveEvt)

	// Fan out to online recipients concurrently and confirm delivery for
	// each one reached.
	var wg sync.WaitGroup
	for _, recipient := range d.tracker.Online(persisted.RecipientIDs()) {
		wg.Add(1)
		go func(recipient models.UserID) {
			defer wg.Done()
			if d.hub.EmitToUser(recipient, receiveEvt) == 0 {
				// Recipient dropped between the online check and the emit;
				// missed-message sync covers them on reconnect.
				return
			}
			metrics.MessagesFannedOut.Inc()
			d.delivery.Confirm(ctx, persisted, recipient)
		}(recipient)
	}
	wg.Wait()

	d.notifyConversationUpdate(conv)
	return nil
}

// resolveTarget maps a send request to its conversation, creating the
// direct conversation on first contact.
func (d *Dispatcher) resolveTarget(ctx context.Context, c *Client, req SendRequest) (*models.Conversation, error) {
	switch {
	case req.RoomID != "" && req.RecipientID != "":
		return nil, errValidation("specify either recipientId or roomId, not both")

	case req.RoomID != "":
		conv, err := d.st.Conversation(ctx, req.RoomID)
		if err != nil {
			return nil, err
		}
		if !conv.HasMember(c.UserID) {
			return nil, errForbidden("not a member of this room")
		}
		return conv, nil

	case req.RecipientID != "":
		if req.RecipientID == c.UserID {
			return nil, errValidation("cannot send a message to yourself")
		}
		conv, created, err := d.st.EnsureDirectConversation(ctx, c.UserID, req.RecipientID)
		if err != nil {
			return nil, err
		}
		if created {
			for _, member := range conv.Members {
				d.hub.JoinUser(member, conv.ID)
			}
			logging.Debug().
				Str("conversation", string(conv.ID)).
				Msg("direct conversation created on first contact")
		}
		return conv, nil

	default:
		return nil, errValidation("recipientId or roomId required")
	}
}

// notifyConversationUpdate tells room members the conversation changed so
// clients can reorder their conversation lists.
func (d *Dispatcher) notifyConversationUpdate(conv *models.Conversation) {
	evt, err := NewEvent(EventConversationUpdate, ConversationPayload{Conversation: conv})
	if err != nil {
		logging.Error().Err(err).Msg("build conversation update event")
		return
	}
	d.hub.EmitToRoom(conv.ID, "", evt)
}
