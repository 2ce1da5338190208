// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package store

import (
	"container/list"
	"sync"

	"github.com/openlancer/relay/internal/models"
)

// convCache is a small LRU over conversations. Membership is checked on
// every send, so the hot path should not hit disk for unchanged rooms.
// Writers must call put after any membership change to keep it coherent.
type convCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[models.ConversationID]*list.Element
	order    *list.List // front = most recently used
}

type convCacheEntry struct {
	id   models.ConversationID
	conv *models.Conversation
}

func newConvCache(capacity int) *convCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &convCache{
		capacity: capacity,
		entries:  make(map[models.ConversationID]*list.Element),
		order:    list.New(),
	}
}

func (c *convCache) get(id models.ConversationID) (*models.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*convCacheEntry).conv, true
}

func (c *convCache) put(conv *models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[conv.ID]; ok {
		elem.Value.(*convCacheEntry).conv = conv
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&convCacheEntry{id: conv.ID, conv: conv})
	c.entries[conv.ID] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*convCacheEntry).id)
	}
}

func (c *convCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
