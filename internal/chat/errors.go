// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"errors"

	"github.com/openlancer/relay/internal/store"
)

// Error codes reported to clients in error events.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeForbidden            = "forbidden"
	CodeValidationFailed     = "validation_failed"
	CodeConversationNotFound = "conversation_not_found"
	CodeTimeout              = "timeout"
)

// SocketError is an operation failure destined for the originating
// connection. It never tears down the connection.
type SocketError struct {
	Code    string
	Message string
}

func (e *SocketError) Error() string {
	return e.Code + ": " + e.Message
}

func errForbidden(msg string) *SocketError {
	return &SocketError{Code: CodeForbidden, Message: msg}
}

func errValidation(msg string) *SocketError {
	return &SocketError{Code: CodeValidationFailed, Message: msg}
}

// asSocketError maps any error to the client-facing taxonomy. Store errors
// translate to their socket equivalents; anything unrecognized is reported
// as a retryable timeout so internals never leak to clients.
func asSocketError(err error) *SocketError {
	var se *SocketError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		return &SocketError{Code: CodeConversationNotFound, Message: "conversation not found"}
	case errors.Is(err, store.ErrNotMember):
		return errForbidden("not a member of this conversation")
	case errors.Is(err, store.ErrUnavailable):
		return &SocketError{Code: CodeTimeout, Message: "storage unavailable, retry with the same client token"}
	default:
		return &SocketError{Code: CodeTimeout, Message: "operation failed, retry"}
	}
}
