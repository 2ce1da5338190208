// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package models defines the domain types shared across the messaging core:
// conversations, messages, per-recipient delivery receipts, and presence.
package models
