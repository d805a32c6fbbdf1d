// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/perety/airwave/lib/testutil"
	"github.com/perety/airwave/radio"
)

func join(t *testing.T, endpoint *MemoryEndpoint, channel string) {
	t.Helper()
	err := endpoint.Send(context.Background(), Message{Type: TypeJoin, Channel: channel})
	if err != nil {
		t.Fatalf("join %s: %v", channel, err)
	}
}

// expect pulls the next message and checks its type.
func expect(t *testing.T, endpoint *MemoryEndpoint, want Type) Message {
	t.Helper()
	message := testutil.RequireReceive(t, endpoint.Messages(), time.Second, "message of type %s", want)
	if message.Type != want {
		t.Fatalf("got message type %s, want %s", message.Type, want)
	}
	return message
}

func TestMemorySignalerJoinDeliversMemberList(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := signaler.Endpoint("alpha")
	bravo := signaler.Endpoint("bravo")

	join(t, alpha, "dispatch")
	listAlpha := expect(t, alpha, TypeMemberList)
	var payload MemberListPayload
	if err := listAlpha.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Members) != 1 || payload.Members[0].User != "alpha" {
		t.Fatalf("alpha's member list = %+v, want just alpha", payload.Members)
	}

	join(t, bravo, "dispatch")
	listBravo := expect(t, bravo, TypeMemberList)
	if err := listBravo.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Members) != 2 {
		t.Fatalf("bravo's member list has %d members, want 2", len(payload.Members))
	}
	// Commit order: alpha joined first so carries the lower seq.
	if payload.Members[0].User != "alpha" || payload.Members[1].User != "bravo" {
		t.Fatalf("member list order = %+v, want alpha then bravo", payload.Members)
	}
	if payload.Members[0].Seq >= payload.Members[1].Seq {
		t.Fatalf("seqs not increasing: %d then %d",
			payload.Members[0].Seq, payload.Members[1].Seq)
	}

	// Alpha sees bravo's arrival.
	joined := expect(t, alpha, TypeMembership)
	var membership MembershipPayload
	if err := joined.DecodePayload(&membership); err != nil {
		t.Fatal(err)
	}
	if membership.Event != MemberJoined || membership.Member.User != "bravo" {
		t.Fatalf("membership = %+v, want bravo joined", membership)
	}
}

func TestMemorySignalerDirectedDelivery(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := signaler.Endpoint("alpha")
	bravo := signaler.Endpoint("bravo")
	charlie := signaler.Endpoint("charlie")

	join(t, alpha, "dispatch")
	join(t, bravo, "dispatch")
	join(t, charlie, "dispatch")
	drain(alpha)
	drain(bravo)
	drain(charlie)

	offer := NewMessage(TypeOffer, "", "bravo", "dispatch", DescriptionPayload{SDP: "v=0"})
	if err := alpha.Send(context.Background(), offer); err != nil {
		t.Fatal(err)
	}

	got := expect(t, bravo, TypeOffer)
	if got.From != "alpha" || got.To != "bravo" {
		t.Fatalf("offer routed as from=%s to=%s", got.From, got.To)
	}
	testutil.RequireNoReceive(t, charlie.Messages(), 50*time.Millisecond, "offer leaked to a third party")
}

func TestMemorySignalerBroadcastSkipsSender(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := signaler.Endpoint("alpha")
	bravo := signaler.Endpoint("bravo")

	join(t, alpha, "dispatch")
	join(t, bravo, "dispatch")
	drain(alpha)
	drain(bravo)

	tx := NewMessage(TypeTransmission, "", "", "dispatch",
		TransmissionPayload{Kind: radio.TransmissionNormal, Active: true})
	if err := alpha.Send(context.Background(), tx); err != nil {
		t.Fatal(err)
	}

	got := expect(t, bravo, TypeTransmission)
	if got.From != "alpha" {
		t.Fatalf("transmission from %s, want alpha", got.From)
	}
	testutil.RequireNoReceive(t, alpha.Messages(), 50*time.Millisecond, "broadcast echoed to sender")
}

func TestMemorySignalerJoinImpliesLeave(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := signaler.Endpoint("alpha")
	bravo := signaler.Endpoint("bravo")

	join(t, alpha, "dispatch")
	join(t, bravo, "dispatch")
	drain(alpha)
	drain(bravo)

	// Bravo hops to another channel; dispatch must see a leave.
	join(t, bravo, "tactical")
	expect(t, bravo, TypeMemberList)

	left := expect(t, alpha, TypeMembership)
	var membership MembershipPayload
	if err := left.DecodePayload(&membership); err != nil {
		t.Fatal(err)
	}
	if membership.Event != MemberLeft || membership.Member.User != "bravo" {
		t.Fatalf("membership = %+v, want bravo left", membership)
	}
}

func TestMemorySignalerDisconnectClosesEndpoint(t *testing.T) {
	signaler := NewMemorySignaler()
	alpha := signaler.Endpoint("alpha")
	bravo := signaler.Endpoint("bravo")

	join(t, alpha, "dispatch")
	join(t, bravo, "dispatch")
	drain(alpha)
	drain(bravo)

	signaler.Disconnect("bravo")

	left := expect(t, alpha, TypeMembership)
	var membership MembershipPayload
	if err := left.DecodePayload(&membership); err != nil {
		t.Fatal(err)
	}
	if membership.Event != MemberLeft || membership.Member.User != "bravo" {
		t.Fatalf("membership = %+v, want bravo left", membership)
	}

	testutil.RequireClosed(t, bravo.Messages(), time.Second, "disconnected endpoint kept its message stream")

	err := bravo.Send(context.Background(), Message{Type: TypeLeave})
	if !errors.Is(err, radio.ErrRelayDisconnected) {
		t.Fatalf("send on disconnected endpoint = %v, want ErrRelayDisconnected", err)
	}
}

func TestErrorPayloadSentinels(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{CodeAccessDenied, radio.ErrAccessDenied},
		{CodeChannelFull, radio.ErrChannelFull},
		{CodeUnknownChannel, radio.ErrUnknownChannel},
		{CodeChannelInactive, radio.ErrChannelInactive},
	}
	for _, tc := range cases {
		payload := ErrorPayload{Code: tc.code, Message: "denied"}
		if err := payload.Err(); !errors.Is(err, tc.want) {
			t.Errorf("code %s mapped to %v, want %v", tc.code, err, tc.want)
		}
	}
	if err := (ErrorPayload{Code: "made-up"}).Err(); err == nil {
		t.Error("unknown code mapped to nil error")
	}
}

// drain empties an endpoint's buffered messages.
func drain(endpoint *MemoryEndpoint) {
	for {
		select {
		case <-endpoint.Messages():
		default:
			return
		}
	}
}
