// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package presence tracks which users currently hold at least one open
// socket connection. A user is online while any of their connections is
// registered; the last deregistration flips them offline and records the
// in-memory last-seen time used for status snapshots.
package presence

import (
	"sync"
	"time"

	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
)

// Tracker is the in-memory presence authority. Durable last-seen state
// lives in the store; this structure only answers "online right now".
type Tracker struct {
	mu       sync.RWMutex
	conns    map[models.UserID]map[string]struct{}
	lastSeen map[models.UserID]time.Time

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[models.UserID]map[string]struct{}),
		lastSeen: make(map[models.UserID]time.Time),
		now:      time.Now,
	}
}

// Register records a connection for user. It returns true when this is the
// user's first live connection, meaning they just came online.
func (t *Tracker) Register(user models.UserID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		set = make(map[string]struct{})
		t.conns[user] = set
	}
	set[connID] = struct{}{}

	metrics.ActiveConnections.Inc()
	if !ok {
		metrics.OnlineUsers.Inc()
		metrics.PresenceTransitions.WithLabelValues("online").Inc()
	}
	return !ok
}

// Deregister removes a connection for user. It returns true when no
// connections remain, meaning the user just went offline.
func (t *Tracker) Deregister(user models.UserID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	metrics.ActiveConnections.Dec()

	if len(set) > 0 {
		return false
	}
	delete(t.conns, user)
	t.lastSeen[user] = t.now().UTC()
	metrics.OnlineUsers.Dec()
	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	return true
}

// IsOnline reports whether user has at least one live connection.
func (t *Tracker) IsOnline(user models.UserID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns[user]) > 0
}

// Connections returns the IDs of user's live connections.
func (t *Tracker) Connections(user models.UserID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.conns[user]))
	for id := range t.conns[user] {
		ids = append(ids, id)
	}
	return ids
}

// Online filters users down to the ones currently online.
func (t *Tracker) Online(users []models.UserID) []models.UserID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	online := make([]models.UserID, 0, len(users))
	for _, u := range users {
		if len(t.conns[u]) > 0 {
			online = append(online, u)
		}
	}
	return online
}

// Snapshot returns the presence status of each requested user. Offline
// users carry the last-seen time from this process's memory when known.
func (t *Tracker) Snapshot(users []models.UserID) []models.PresenceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]models.PresenceStatus, 0, len(users))
	for _, u := range users {
		status := models.PresenceStatus{UserID: u, Online: len(t.conns[u]) > 0}
		if !status.Online {
			if ts, ok := t.lastSeen[u]; ok {
				status.LastSeen = &ts
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}
