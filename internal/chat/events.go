// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/openlancer/relay/internal/models"
)

// Client to server events.
const (
	EventMessageSend     = "message:send"
	EventMessageRead     = "message:read"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventGetOnlineStatus = "user:get_online_status"
	EventSyncMissed      = "user:sync_missed_messages"
)

// Server to client events.
const (
	EventMessageReceive     = "message:receive"
	EventMessageDelivered   = "message:delivered"
	EventConversationUpdate = "conversation:update"
	EventUserOnline         = "user:online"
	EventUserOffline        = "user:offline"
	EventUserOnlineStatus   = "user:online_status"
	EventError              = "error"
)

// Event is the wire frame exchanged over a connection in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an outbound event, marshaling the payload once so a single
// frame can fan out to many connections.
func NewEvent(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Event{Event: name, Data: data}, nil
}

// SendRequest is the message:send payload. Exactly one of RecipientID and
// RoomID must be set.
type SendRequest struct {
	RecipientID models.UserID         `json:"recipientId,omitempty"`
	RoomID      models.ConversationID `json:"roomId,omitempty"`
	Content     string                `json:"content" validate:"required"`
	MessageType string                `json:"messageType,omitempty" validate:"omitempty,msgtype"`
	Mentions    []models.UserID       `json:"mentions,omitempty"`
	// ClientToken is a client-generated idempotency token. Retrying a send
	// with the same token returns the originally persisted message instead
	// of appending a duplicate.
	ClientToken string `json:"clientToken,omitempty"`
}

// ReadRequest is the message:read payload.
type ReadRequest struct {
	ConversationID models.ConversationID `json:"conversationId" validate:"required"`
	MessageIDs     []models.MessageID    `json:"messageIds" validate:"required,min=1"`
}

// TypingRequest is the typing:start / typing:stop payload. Exactly one of
// RecipientID and RoomID must be set.
type TypingRequest struct {
	RecipientID models.UserID         `json:"recipientId,omitempty"`
	RoomID      models.ConversationID `json:"roomId,omitempty"`
}

// OnlineStatusRequest is the user:get_online_status payload.
type OnlineStatusRequest struct {
	UserIDs []models.UserID `json:"userIds" validate:"required,min=1"`
}

// MessagePayload carries a new or replayed message.
type MessagePayload struct {
	Message *models.Message `json:"message"`
}

// DeliveredPayload confirms delivery to one recipient.
type DeliveredPayload struct {
	MessageID   models.MessageID `json:"messageId"`
	RecipientID models.UserID    `json:"recipientId"`
	At          time.Time        `json:"at"`
}

// ReadPayload confirms a read acknowledgment.
type ReadPayload struct {
	MessageIDs []models.MessageID `json:"messageIds"`
	ReaderID   models.UserID      `json:"readerId"`
	At         time.Time          `json:"at"`
}

// ConversationPayload announces changed conversation metadata.
type ConversationPayload struct {
	Conversation *models.Conversation `json:"conversation"`
}

// TypingPayload relays a typing transition to conversation peers.
type TypingPayload struct {
	UserID         models.UserID         `json:"userId"`
	ConversationID models.ConversationID `json:"conversationId,omitempty"`
}

// PresencePayload announces an online/offline transition.
type PresencePayload struct {
	UserID   models.UserID `json:"userId"`
	LastSeen *time.Time    `json:"lastSeen,omitempty"`
}

// OnlineStatusPayload answers a user:get_online_status query.
type OnlineStatusPayload struct {
	Statuses []models.PresenceStatus `json:"statuses"`
}

// ErrorPayload reports a failed operation to the originating connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
