// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/perety/airwave/radio"
)

// MemorySignaler is an in-process signaling plane for tests. Two or
// more endpoints sharing one MemorySignaler can exchange negotiation
// messages and observe membership changes without a relay process or
// any network.
//
// It implements the relay's routing semantics — directed delivery,
// channel broadcast minus sender, member lists in join order — but no
// policy, capacity, or persistence. Orchestrator tests that need
// those go through the real relay package.
type MemorySignaler struct {
	mu        sync.Mutex
	endpoints map[string]*MemoryEndpoint
	channels  map[string]string // user → joined channel
	seq       uint64
	seqs      map[string]uint64 // user → join seq
}

// NewMemorySignaler creates an empty in-process signaling plane.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		endpoints: make(map[string]*MemoryEndpoint),
		channels:  make(map[string]string),
		seqs:      make(map[string]uint64),
	}
}

// Endpoint registers a user and returns their Signaler. Registering
// the same user twice replaces the previous endpoint.
func (s *MemorySignaler) Endpoint(user string) *MemoryEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint := &MemoryEndpoint{
		user:     user,
		plane:    s,
		messages: make(chan Message, 64),
	}
	s.endpoints[user] = endpoint
	return endpoint
}

// route implements the relay's forwarding rules under the plane lock.
func (s *MemorySignaler) route(message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch message.Type {
	case TypeJoin:
		s.joinLocked(message)
	case TypeLeave:
		s.leaveLocked(message.From)
	default:
		if message.To != "" {
			s.deliverLocked(message.To, message)
			return
		}
		s.broadcastLocked(message.Channel, message.From, message)
	}
}

func (s *MemorySignaler) joinLocked(message Message) {
	user := message.From

	// Single-channel presence: a join implicitly leaves the previous
	// channel.
	if previous, ok := s.channels[user]; ok && previous != message.Channel {
		s.leaveChannelLocked(user, previous)
	}

	s.seq++
	s.channels[user] = message.Channel
	s.seqs[user] = s.seq

	members := s.membersLocked(message.Channel)
	s.deliverLocked(user, NewMessage(TypeMemberList, "", user, message.Channel,
		MemberListPayload{Members: members}))

	announcement := NewMessage(TypeMembership, user, "", message.Channel, MembershipPayload{
		Event:  MemberJoined,
		Member: Member{User: user, Seq: s.seqs[user], State: radio.MemberListening},
	})
	s.broadcastLocked(message.Channel, user, announcement)
}

func (s *MemorySignaler) leaveLocked(user string) {
	channel, ok := s.channels[user]
	if !ok {
		return
	}
	s.leaveChannelLocked(user, channel)
}

func (s *MemorySignaler) leaveChannelLocked(user, channel string) {
	seq := s.seqs[user]
	delete(s.channels, user)
	delete(s.seqs, user)

	announcement := NewMessage(TypeMembership, user, "", channel, MembershipPayload{
		Event:  MemberLeft,
		Member: Member{User: user, Seq: seq},
	})
	s.broadcastLocked(channel, user, announcement)
}

func (s *MemorySignaler) membersLocked(channel string) []Member {
	var members []Member
	for user, joined := range s.channels {
		if joined != channel {
			continue
		}
		members = append(members, Member{User: user, Seq: s.seqs[user], State: radio.MemberListening})
	}
	// Commit order, mirroring the registry's guarantee.
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j-1].Seq > members[j].Seq; j-- {
			members[j-1], members[j] = members[j], members[j-1]
		}
	}
	return members
}

func (s *MemorySignaler) broadcastLocked(channel, sender string, message Message) {
	for user, joined := range s.channels {
		if joined != channel || user == sender {
			continue
		}
		s.deliverLocked(user, message)
	}
}

func (s *MemorySignaler) deliverLocked(user string, message Message) {
	endpoint, ok := s.endpoints[user]
	if !ok || endpoint.closed {
		return
	}
	select {
	case endpoint.messages <- message:
	default:
		// A test endpoint that stops reading loses messages, same as
		// a dead websocket. At-most-once, never buffered beyond the
		// queue.
	}
}

// Disconnect mirrors a dropped websocket: membership is removed and
// remaining members are told.
func (s *MemorySignaler) Disconnect(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leaveLocked(user)
	if endpoint, ok := s.endpoints[user]; ok && !endpoint.closed {
		endpoint.closed = true
		close(endpoint.messages)
	}
	delete(s.endpoints, user)
}

// MemoryEndpoint is one user's Signaler on a MemorySignaler plane.
type MemoryEndpoint struct {
	user     string
	plane    *MemorySignaler
	messages chan Message
	closed   bool
}

var _ Signaler = (*MemoryEndpoint)(nil)

// Send routes the message through the in-process plane. The From
// field is stamped with the endpoint's user.
func (e *MemoryEndpoint) Send(_ context.Context, message Message) error {
	e.plane.mu.Lock()
	closed := e.closed
	e.plane.mu.Unlock()
	if closed {
		return fmt.Errorf("memory signaler: %w", radio.ErrRelayDisconnected)
	}

	message.From = e.user
	e.plane.route(message)
	return nil
}

// Messages returns the inbound stream. Closed by Close or disconnect.
func (e *MemoryEndpoint) Messages() <-chan Message { return e.messages }

// Err always returns nil: the in-process plane cannot fail, only
// close.
func (e *MemoryEndpoint) Err() error { return nil }

// Close drops the endpoint, removing its membership like a real
// disconnect would.
func (e *MemoryEndpoint) Close() error {
	e.plane.Disconnect(e.user)
	return nil
}
