// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"context"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/store"
)

// Syncer replays messages that were sent while a user had no live
// connection. Replay is idempotent: each replayed message transitions to
// delivered, so the next sync skips it, and clients de-duplicate by
// message identifier.
type Syncer struct {
	st       store.Store
	hub      *Hub
	delivery *DeliveryTracker
}

// Replay emits every still-undelivered message addressed to the
// connection's user, in per-conversation order, then marks each delivered.
func (s *Syncer) Replay(ctx context.Context, c *Client) error {
	pending, err := s.st.UndeliveredFor(ctx, c.UserID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	replayed := 0
	for _, msg := range pending {
		evt, err := NewEvent(EventMessageReceive, MessagePayload{Message: msg})
		if err != nil {
			return err
		}
		if !s.hub.EmitToConn(c.ID, evt) {
			// Connection gone or saturated mid-replay; whatever was not
			// delivered stays pending for the next sync.
			break
		}
		metrics.MessagesReplayed.Inc()
		replayed++
		s.delivery.Confirm(ctx, msg, c.UserID)
	}

	logging.Info().
		Str("user", string(c.UserID)).
		Str("connection", c.ID).
		Int("pending", len(pending)).
		Int("replayed", replayed).
		Msg("missed-message sync complete")
	return nil
}
