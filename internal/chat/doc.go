// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package chat implements the socket core: the connection hub, the message
// dispatcher with per-recipient delivery tracking, missed-message replay on
// reconnect, and the ephemeral typing relay.
//
// Components are wired through narrow emit primitives on the Hub
// (emit-to-connection, emit-to-user, emit-to-room) rather than a shared
// socket object. The Router owns connection lifecycle and routes inbound
// events to the responsible component; every post-handshake failure is
// reported as an "error" event to the originating connection only.
package chat
