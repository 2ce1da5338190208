// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package models

import (
	"sort"
	"time"
)

// UserID is the opaque stable identifier for a platform user. It is extracted
// from a verified credential by the auth layer and never interpreted here.
type UserID string

// ConversationID identifies a conversation (direct or group).
type ConversationID string

// MessageID identifies a single message.
type MessageID string

// ConversationType distinguishes direct (two-member) conversations from
// group rooms.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// MessageType categorizes message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageText, MessageFile, MessageSystem:
		return true
	}
	return false
}

// DeliveryState is the per-recipient lifecycle of a message.
// Transitions are strictly monotonic: sent -> delivered -> read.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// rank orders delivery states for monotonicity checks.
func (s DeliveryState) rank() int {
	switch s {
	case StateSent:
		return 0
	case StateDelivered:
		return 1
	case StateRead:
		return 2
	}
	return -1
}

// Before reports whether s strictly precedes other in the delivery lifecycle.
func (s DeliveryState) Before(other DeliveryState) bool {
	return s.rank() < other.rank()
}

// Conversation is a set of users who can exchange messages. Direct
// conversations have exactly two members; groups have N members and a
// display name. Conversations are never implicitly destroyed.
type Conversation struct {
	ID        ConversationID   `json:"id"`
	Type      ConversationType `json:"type"`
	Name      string           `json:"name,omitempty"`
	Members   []UserID         `json:"members"`
	CreatedBy UserID           `json:"created_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// HasMember reports whether user belongs to the conversation. The membership
// list is the sole authority for who may send or receive its messages.
func (c *Conversation) HasMember(user UserID) bool {
	for _, m := range c.Members {
		if m == user {
			return true
		}
	}
	return false
}

// OtherMembers returns every member except user, preserving member order.
func (c *Conversation) OtherMembers(user UserID) []UserID {
	others := make([]UserID, 0, len(c.Members))
	for _, m := range c.Members {
		if m != user {
			others = append(others, m)
		}
	}
	return others
}

// DirectKey returns a canonical key for a direct conversation between two
// users, independent of argument order.
func DirectKey(a, b UserID) string {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

// Receipt tracks one recipient's delivery state for one message.
type Receipt struct {
	State       DeliveryState `json:"state"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`
}

// Message is a single message within a conversation. It is immutable once
// created except for per-recipient receipt transitions. Seq is the
// server-assigned per-conversation sequence that defines delivery order.
type Message struct {
	ID             MessageID           `json:"id"`
	ConversationID ConversationID      `json:"conversation_id"`
	SenderID       UserID              `json:"sender_id"`
	Content        string              `json:"content"`
	Type           MessageType         `json:"type"`
	Mentions       []UserID            `json:"mentions,omitempty"`
	Seq            uint64              `json:"seq"`
	CreatedAt      time.Time           `json:"created_at"`
	Recipients     map[UserID]*Receipt `json:"recipients"`
}

// Receipt returns the receipt for user, or nil if user is not a recipient.
func (m *Message) Receipt(user UserID) *Receipt {
	return m.Recipients[user]
}

// RecipientIDs returns the recipients in deterministic (sorted) order.
func (m *Message) RecipientIDs() []UserID {
	ids := make([]UserID, 0, len(m.Recipients))
	for id := range m.Recipients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PresenceStatus is the answer to an online-status query for one user.
type PresenceStatus struct {
	UserID   UserID     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
