// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/perety/airwave/radio"
)

// Type discriminates wire messages.
type Type string

const (
	// TypeJoin asks the relay to join a channel. From the station.
	TypeJoin Type = "join"
	// TypeLeave asks the relay to leave the current channel.
	TypeLeave Type = "leave"

	// TypeOffer, TypeAnswer, and TypeCandidate carry opaque
	// negotiation payloads between two stations. Always directed.
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "ice-candidate"

	// TypeMemberList answers a join with the channel's current
	// members in commit order.
	TypeMemberList Type = "member-list"
	// TypeMembership announces a join or leave to remaining members.
	TypeMembership Type = "membership"

	// TypeTransmission broadcasts a transmission gate flip, or
	// delivers a whisper flip when directed.
	TypeTransmission Type = "transmission"

	// TypeError reports a rejected request back to the sender.
	TypeError Type = "error"
)

// Message is the signaling wire envelope. Payload interpretation
// depends on Type; for offer/answer/ice-candidate it is opaque to
// everything but the two endpoints.
type Message struct {
	Type    Type            `json:"type"`
	From    string          `json:"fromUser,omitempty"`
	To      string          `json:"toUser,omitempty"`
	Channel string          `json:"channelId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Member is one channel member as carried in member-list and
// membership payloads.
type Member struct {
	User string `json:"user"`
	// Seq is the registry commit sequence of the member's join. The
	// lower Seq of a pair initiates peer negotiation.
	Seq   uint64                `json:"seq"`
	State radio.MembershipState `json:"state"`
}

// MemberListPayload is the payload of TypeMemberList.
type MemberListPayload struct {
	// Kind is the joined channel's access kind, so the station can
	// mark transmissions on an emergency channel without a second
	// lookup.
	Kind    radio.ChannelKind `json:"channelKind,omitempty"`
	Members []Member          `json:"members"`
}

// Membership change kinds carried in MembershipPayload.Event.
const (
	MemberJoined = "joined"
	MemberLeft   = "left"
)

// MembershipPayload is the payload of TypeMembership.
type MembershipPayload struct {
	Event  string `json:"event"`
	Member Member `json:"member"`
}

// TransmissionPayload is the payload of TypeTransmission.
type TransmissionPayload struct {
	Kind   radio.TransmissionKind `json:"kind"`
	Active bool                   `json:"active"`
}

// DescriptionPayload carries an SDP blob for offers and answers. The
// relay and orchestrator treat the contents as opaque.
type DescriptionPayload struct {
	SDP string `json:"sdp"`
}

// CandidatePayload carries one trickled ICE candidate. Candidate is
// the JSON-encoded candidate in the peer library's own format; the
// relay never parses it.
type CandidatePayload struct {
	Candidate string `json:"candidate"`
}

// Error codes carried in ErrorPayload.Code.
const (
	CodeAccessDenied    = "access-denied"
	CodeChannelFull     = "channel-full"
	CodeUnknownChannel  = "unknown-channel"
	CodeChannelInactive = "channel-inactive"
	CodeNotMember       = "not-member"
	CodeBadRequest      = "bad-request"
)

// ErrorPayload is the payload of TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Err maps the payload's code onto the radio error taxonomy so
// stations can match with errors.Is.
func (p ErrorPayload) Err() error {
	switch p.Code {
	case CodeAccessDenied:
		return radio.ErrAccessDenied
	case CodeChannelFull:
		return radio.ErrChannelFull
	case CodeUnknownChannel:
		return radio.ErrUnknownChannel
	case CodeChannelInactive:
		return radio.ErrChannelInactive
	case CodeNotMember:
		return radio.ErrNotMember
	default:
		return fmt.Errorf("relay rejected request: %s %s", p.Code, p.Message)
	}
}

// NewMessage builds a message with an encoded payload. Panics only on
// unmarshalable payload types, which is a programming error.
func NewMessage(messageType Type, from, to, channel string, payload any) Message {
	message := Message{Type: messageType, From: from, To: to, Channel: channel}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("signaling: encoding %s payload: %v", messageType, err))
		}
		message.Payload = encoded
	}
	return message
}

// DecodePayload decodes the message payload into out.
func (m Message) DecodePayload(out any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("signaling: %s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("signaling: decoding %s payload: %w", m.Type, err)
	}
	return nil
}
