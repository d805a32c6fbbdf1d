// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perety/airwave/signaling"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 256 * 1024

	// defaultPingInterval applies when the relay config leaves
	// ping_interval unset.
	defaultPingInterval = 20 * time.Second

	sendQueueSize = 64
)

// client is one station's websocket connection. The read pump feeds
// the hub; the write pump drains sendQueue. Both exit when the
// connection dies or the hub drops the client.
type client struct {
	user string
	hub  *Hub
	conn *websocket.Conn

	// pingPeriod paces the keepalive pings; a station that misses two
	// intervals (pongWait) is considered gone.
	pingPeriod time.Duration
	pongWait   time.Duration

	sendQueue chan signaling.Message

	closeOnce sync.Once
	closed    chan struct{}

	logger *slog.Logger
}

func newClient(user string, hub *Hub, conn *websocket.Conn, pingInterval time.Duration, logger *slog.Logger) *client {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &client{
		user:       user,
		hub:        hub,
		conn:       conn,
		pingPeriod: pingInterval,
		pongWait:   2 * pingInterval,
		sendQueue:  make(chan signaling.Message, sendQueueSize),
		closed:     make(chan struct{}),
		logger:     logger,
	}
}

// shutdown closes the connection and releases both pumps. Safe to call
// from the hub or either pump.
func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// readPump feeds inbound messages to the hub until the connection
// dies, then unregisters so the disconnect becomes a leave.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var message signaling.Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("station read error", "user", c.user, "error", err)
			}
			return
		}
		select {
		case c.hub.inbound <- inbound{client: c, message: message}:
		case <-c.closed:
			return
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case message := <-c.sendQueue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
