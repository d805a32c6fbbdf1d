// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"

	"github.com/perety/airwave/lib/clock"
)

// PeerLink states. Exported for UI rendering.
const (
	LinkNegotiating = "negotiating"
	LinkConnected   = "connected"
	LinkFailed      = "failed"
	LinkClosed      = "closed"
)

// peer link FSM events.
const (
	eventEstablish = "establish"
	eventFail      = "fail"
	eventClose     = "close"
)

// PeerLink tracks one peer connection attempt. It never outlives
// either endpoint's membership: the orchestrator closes it as soon as
// the remote leaves the channel or the local station leaves or loses
// the relay.
//
// State is mutated only from the orchestrator's run loop; reads
// through State and Established are safe from any goroutine because
// looplab/fsm locks internally.
type PeerLink struct {
	remote  string
	session Session

	// initiator records which side opened the link: the member with
	// the lower join sequence offers, the later joiner answers.
	initiator bool

	machine *fsm.FSM
	logger  *slog.Logger

	// deadline bounds the negotiation. Nil once the link connects.
	deadline *clock.Timer

	// retried is set when the single allowed renegotiation attempt has
	// been spent.
	retried bool
}

func newPeerLink(remote string, session Session, initiator bool, logger *slog.Logger) *PeerLink {
	link := &PeerLink{
		remote:    remote,
		session:   session,
		initiator: initiator,
		logger:    logger,
	}
	link.machine = fsm.NewFSM(
		LinkNegotiating,
		fsm.Events{
			{Name: eventEstablish, Src: []string{LinkNegotiating}, Dst: LinkConnected},
			{Name: eventFail, Src: []string{LinkNegotiating, LinkConnected}, Dst: LinkFailed},
			{Name: eventClose, Src: []string{LinkNegotiating, LinkConnected, LinkFailed}, Dst: LinkClosed},
		},
		fsm.Callbacks{},
	)
	return link
}

// State returns the link's lifecycle state.
func (l *PeerLink) State() string { return l.machine.Current() }

// Established reports whether media is flowing.
func (l *PeerLink) Established() bool { return l.State() == LinkConnected }

// Remote returns the peer's user.
func (l *PeerLink) Remote() string { return l.remote }

func (l *PeerLink) fire(event string) {
	if err := l.machine.Event(context.Background(), event); err != nil {
		l.logger.Error("peer link transition rejected",
			"peer", l.remote, "event", event, "state", l.machine.Current(), "error", err)
	}
}

// establish marks the media path up and cancels the negotiation
// deadline.
func (l *PeerLink) establish() {
	l.stopDeadline()
	l.fire(eventEstablish)
}

func (l *PeerLink) failed() {
	l.stopDeadline()
	l.fire(eventFail)
}

// shutdown closes the session and rests the machine in closed.
func (l *PeerLink) shutdown() {
	l.stopDeadline()
	if l.State() != LinkClosed {
		l.fire(eventClose)
	}
	if l.session != nil {
		l.session.Close()
	}
}

func (l *PeerLink) stopDeadline() {
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
}
