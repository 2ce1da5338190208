// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package store persists conversations, messages, and per-recipient delivery
// receipts in BadgerDB. It is the single source of truth for durable state;
// conflicting writes to the same conversation are serialized by Badger's
// transactional conflict detection.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/openlancer/relay/internal/models"
)

// Store errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMember            = errors.New("user is not a conversation member")
	ErrUnavailable          = errors.New("storage unavailable")
)

// Store is the durable conversation/message store consumed by the socket
// core and the REST surface.
type Store interface {
	// EnsureDirectConversation returns the direct conversation between a and
	// b, creating it if none exists. The second result reports creation.
	EnsureDirectConversation(ctx context.Context, a, b models.UserID) (*models.Conversation, bool, error)

	// CreateGroup creates a group room. The creator is always a member.
	CreateGroup(ctx context.Context, name string, creator models.UserID, members []models.UserID) (*models.Conversation, error)

	// AddMember adds a user to a group room and returns the updated
	// conversation.
	AddMember(ctx context.Context, id models.ConversationID, user models.UserID) (*models.Conversation, error)

	// Conversation fetches a conversation by ID.
	Conversation(ctx context.Context, id models.ConversationID) (*models.Conversation, error)

	// ConversationsFor lists every conversation the user belongs to. This is
	// the room-membership authority used for join-on-connect and send
	// authorization.
	ConversationsFor(ctx context.Context, user models.UserID) ([]*models.Conversation, error)

	// ContactsOf returns the distinct users sharing at least one
	// conversation with user, sorted.
	ContactsOf(ctx context.Context, user models.UserID) ([]models.UserID, error)

	// AppendMessage persists a message with initial state "sent" for every
	// recipient and assigns the per-conversation sequence. A non-empty
	// idempotency token that was seen before returns the originally
	// persisted message with created=false instead of appending twice.
	AppendMessage(ctx context.Context, msg *models.Message, idempotencyToken string) (persisted *models.Message, created bool, err error)

	// Messages returns up to limit messages of a conversation in sequence
	// order. beforeSeq of 0 means "latest".
	Messages(ctx context.Context, id models.ConversationID, limit int, beforeSeq uint64) ([]*models.Message, error)

	// MessageByID fetches a single message.
	MessageByID(ctx context.Context, id models.MessageID) (*models.Message, error)

	// MarkDelivered transitions (message, recipient) to delivered. The
	// transition is monotonic; marking an already delivered or read message
	// reports changed=false and keeps the prior state.
	MarkDelivered(ctx context.Context, id models.MessageID, recipient models.UserID, at time.Time) (msg *models.Message, changed bool, err error)

	// MarkRead transitions the given messages to read for the reader,
	// coercing a missing delivered step. Returns the messages whose state
	// actually changed.
	MarkRead(ctx context.Context, id models.ConversationID, msgIDs []models.MessageID, reader models.UserID, at time.Time) ([]*models.Message, error)

	// UndeliveredFor returns every message addressed to user whose receipt
	// is still "sent", ordered by conversation and sequence.
	UndeliveredFor(ctx context.Context, user models.UserID) ([]*models.Message, error)

	// SetLastSeen records when the user's last connection closed.
	SetLastSeen(ctx context.Context, user models.UserID, at time.Time) error

	// LastSeen returns the recorded last-seen time, or nil if never seen.
	LastSeen(ctx context.Context, user models.UserID) (*time.Time, error)

	Close() error
}
