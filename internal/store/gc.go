// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/thejerf/suture/v4"

	"github.com/openlancer/relay/internal/logging"
)

// GCService periodically runs Badger value-log garbage collection. It is a
// suture.Service and belongs in the data layer of the supervisor tree.
type GCService struct {
	db       *badger.DB
	interval time.Duration
}

// NewGCService creates a GC service for the given database.
func NewGCService(db *badger.DB, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Rewriting at most one value-log file per tick keeps GC cheap.
			err := g.db.RunValueLogGC(0.5)
			switch {
			case err == nil:
				logging.Debug().Msg("badger value log gc reclaimed a file")
			case errors.Is(err, badger.ErrNoRewrite):
				// Nothing to reclaim.
			case errors.Is(err, badger.ErrGCInMemoryMode):
				// In-memory stores have no value log; stop for good.
				return suture.ErrDoNotRestart
			default:
				logging.Warn().Err(err).Msg("badger value log gc failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (g *GCService) String() string {
	return "store-gc"
}
