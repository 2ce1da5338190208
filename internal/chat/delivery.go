// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"
	"time"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/models"
	"github.com/openlancer/relay/internal/store"
)

// DeliveryTracker advances per-recipient delivery state and confirms the
// transitions back to the sender's connections.
type DeliveryTracker struct {
	st  store.Store
	hub *Hub
}

// Confirm marks the message delivered to recipient and notifies the sender.
// Repeat confirmations are no-ops; the state machine never moves backwards.
func (t *DeliveryTracker) Confirm(ctx context.Context, msg *models.Message, recipient models.UserID) {
	updated, changed, err := t.st.MarkDelivered(ctx, msg.ID, recipient, time.Now().UTC())
	if err != nil {
		logging.Error().Err(err).
			Str("message", string(msg.ID)).
			Str("recipient", string(recipient)).
			Msg("mark delivered failed")
		return
	}
	if !changed {
		return
	}

	receipt := updated.Receipt(recipient)
	evt, err := NewEvent(EventMessageDelivered, DeliveredPayload{
		MessageID:   updated.ID,
		RecipientID: recipient,
		At:          *receipt.DeliveredAt,
	})
	if err != nil {
		logging.Error().Err(err).Msg("build delivered event")
		return
	}
	t.hub.EmitToUser(updated.SenderID, evt)
}

// HandleRead processes a message:read acknowledgment covering one or more
// messages in a conversation and confirms each transition to the original
// sender's connections.
func (t *DeliveryTracker) HandleRead(ctx context.Context, c *Client, req ReadRequest) error {
	updated, err := t.st.MarkRead(ctx, req.ConversationID, req.MessageIDs, c.UserID, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return nil
	}

	// One confirmation per sender, covering all their messages in the batch.
	type readBatch struct {
		ids []models.MessageID
		at  time.Time
	}
	bySender := make(map[models.UserID]*readBatch)
	for _, msg := range updated {
		batch, ok := bySender[msg.SenderID]
		if !ok {
			batch = &readBatch{}
			bySender[msg.SenderID] = batch
		}
		batch.ids = append(batch.ids, msg.ID)
		if receipt := msg.Receipt(c.UserID); receipt != nil && receipt.ReadAt != nil {
			batch.at = *receipt.ReadAt
		}
	}

	for sender, batch := range bySender {
		evt, err := NewEvent(EventMessageRead, ReadPayload{
			MessageIDs: batch.ids,
			ReaderID:   c.UserID,
			At:         batch.at,
		})
		if err != nil {
			return err
		}
		t.hub.EmitToUser(sender, evt)
	}
	return nil
}
