// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package chat

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/models"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// readSlack covers event-frame overhead beyond the content limit.
	readSlack = 4096
)

// Client is one live websocket connection owned by an authenticated user.
type Client struct {
	ID          string
	UserID      models.UserID
	ConnectedAt time.Time

	conn    *websocket.Conn
	router  *Router
	send    chan Event
	limiter *rate.Limiter

	// rooms is guarded by the hub's lock, not the client's.
	rooms map[models.ConversationID]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded websocket connection.
func NewClient(router *Router, conn *websocket.Conn, user models.UserID) *Client {
	cfg := router.cfg
	return &Client{
		ID:          uuid.New().String(),
		UserID:      user,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		router:      router,
		send:        make(chan Event, cfg.SendBuffer),
		limiter:     rate.NewLimiter(rate.Limit(cfg.EventRate), cfg.EventBurst),
		rooms:       make(map[models.ConversationID]struct{}),
		closed:      make(chan struct{}),
	}
}

// enqueue offers an event to the write pump without blocking.
func (c *Client) enqueue(evt Event) bool {
	select {
	case <-c.closed:
		return false
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// Close signals both pumps to stop. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Run starts the pumps and blocks until the connection is gone. Lifecycle
// registration with the router happens before Run; deregistration happens
// when the read pump exits.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump reads inbound events and routes them until the connection drops.
// It owns deregistration so a connection is cleaned up exactly once no
// matter how it dies.
func (c *Client) readPump() {
	defer func() {
		c.router.Disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(int64(c.router.cfg.MaxMessageBytes + readSlack))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Str("connection", c.ID).Msg("websocket read error")
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.router.emitError(c, errValidation("malformed event frame"))
			continue
		}

		if !c.limiter.Allow() {
			logging.Debug().
				Str("connection", c.ID).
				Str("event", evt.Event).
				Msg("event rate limit exceeded, dropping")
			continue
		}

		c.router.Route(c, evt)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(evt)
			if err != nil {
				logging.Error().Err(err).Str("event", evt.Event).Msg("marshal outbound event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
