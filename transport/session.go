// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// Session is one peer media connection. Negotiation payloads are
// opaque SDP strings; the orchestrator ferries them over signaling
// without inspection.
//
// A session is single-use: once Close is called or the Failed event
// fires, the orchestrator discards it and builds a fresh one for any
// retry.
type Session interface {
	// CreateOffer produces the local SDP offer. Called only on the
	// initiating side.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptOffer applies the remote offer and produces the local SDP
	// answer. Called only on the answering side.
	AcceptOffer(ctx context.Context, offer string) (string, error)

	// AcceptAnswer applies the remote answer, completing the
	// description exchange. Connectivity is reported via Events.
	AcceptAnswer(ctx context.Context, answer string) error

	// AddCandidate applies one trickled remote ICE candidate.
	AddCandidate(candidate string) error

	// WriteAudio sends one encoded audio frame to the peer. The frame
	// duration is fixed by the capture pipeline.
	WriteAudio(frame []byte, duration time.Duration) error

	// Close releases the session. Idempotent.
	Close() error
}

// Events are the session's callbacks into the orchestrator. All fire
// from the session's own goroutines; handlers must not block.
type Events struct {
	// Candidate fires for each locally gathered ICE candidate, to be
	// trickled to the peer.
	Candidate func(candidate string)

	// Connected fires when the media path is established.
	Connected func()

	// Failed fires when an established or negotiating connection is
	// lost for good.
	Failed func()
}

// SessionFactory builds a session toward the named peer.
type SessionFactory func(remote string, events Events) (Session, error)

// ICEConfig holds the ICE servers handed to new sessions. The station
// may refresh TURN credentials periodically; new sessions pick up the
// updated set.
type ICEConfig struct {
	// Servers in gathering order (STUN first, then TURN). Empty means
	// host candidates only, which suffices on one LAN.
	Servers []webrtc.ICEServer
}
