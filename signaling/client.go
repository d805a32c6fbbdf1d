// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perety/airwave/radio"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long the client waits for any traffic before
	// declaring the relay gone. Pings go out at pingPeriod so a
	// healthy relay always answers within the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. SDP blobs with embedded
	// candidates run a few KB; 256 KB is generous headroom.
	maxMessageSize = 256 * 1024
)

// Client is the production Signaler: one websocket connection to the
// relay, a reader goroutine feeding Messages, and a write path
// serialized by a mutex.
//
// The client never reconnects on its own. When the connection drops,
// Messages closes, Err reports radio.ErrRelayDisconnected, and the
// station must dial again and rejoin — automatic resume would risk
// stale duplicate memberships.
type Client struct {
	user   string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	messages chan Message

	closeOnce sync.Once
	closed    chan struct{}

	errMu sync.Mutex
	err   error
}

var _ Signaler = (*Client)(nil)

// Dial connects to the relay's websocket endpoint and identifies as
// user. The returned client is ready to Send; the first messages
// arrive after a join.
func Dial(ctx context.Context, relayURL, user string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	endpoint, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("signaling: bad relay URL %q: %w", relayURL, err)
	}
	query := endpoint.Query()
	query.Set("user", user)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: dialing relay: %w", err)
	}

	client := &Client{
		user:     user,
		conn:     conn,
		logger:   logger,
		messages: make(chan Message, 64),
		closed:   make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go client.readLoop()
	go client.pingLoop()

	logger.Info("signaling connected", "relay", relayURL, "user", user)
	return client, nil
}

// Send forwards one message to the relay. The From field is stamped
// with the client's user.
func (c *Client) Send(ctx context.Context, message Message) error {
	select {
	case <-c.closed:
		return fmt.Errorf("signaling send: %w", radio.ErrRelayDisconnected)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	message.From = c.user

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(message); err != nil {
		c.fail(fmt.Errorf("signaling write: %w", radio.ErrRelayDisconnected))
		return fmt.Errorf("signaling send: %w", err)
	}
	return nil
}

// Messages returns the inbound stream, closed when the connection is
// lost or Close is called.
func (c *Client) Messages() <-chan Message { return c.messages }

// Err returns the terminal error after Messages closes. Nil after a
// clean Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the connection down cleanly.
func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) fail(err error) {
	c.shutdown(err)
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.closed)
		c.conn.Close()
		if err != nil {
			c.logger.Warn("signaling connection lost", "user", c.user, "error", err)
		}
	})
}

// readLoop feeds inbound messages until the connection dies, then
// closes Messages so the orchestrator can tear down peer links.
func (c *Client) readLoop() {
	defer close(c.messages)

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			select {
			case <-c.closed: // clean Close, not a transport loss
			default:
				c.fail(fmt.Errorf("signaling read: %w", radio.ErrRelayDisconnected))
			}
			return
		}

		select {
		case c.messages <- message:
		case <-c.closed:
			return
		}
	}
}

// pingLoop keeps the connection's liveness window open.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.fail(fmt.Errorf("signaling ping: %w", radio.ErrRelayDisconnected))
				return
			}
		case <-c.closed:
			return
		}
	}
}
