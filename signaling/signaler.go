// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import "context"

// Signaler is a station's handle on the signaling plane. The
// production implementation is Client over a websocket; tests use
// MemorySignaler endpoints.
//
// Delivery is at-most-once: the relay forwards and forgets, so a
// message to a departed peer simply vanishes. The orchestrator's
// timeouts, not the signaler, provide liveness.
type Signaler interface {
	// Send forwards one message to the relay for routing. Directed
	// messages (To set) reach only the recipient; undirected ones
	// are broadcast to the channel minus the sender.
	Send(ctx context.Context, message Message) error

	// Messages returns the inbound stream. The channel is closed
	// when the signaling transport is lost; Err then reports why.
	// After the close the station must reconnect and rejoin
	// explicitly — there is no silent resume.
	Messages() <-chan Message

	// Err returns the terminal error after Messages closes, nil
	// after a clean Close.
	Err() error

	// Close tears down the signaling connection.
	Close() error
}
