// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"

	"github.com/perety/airwave/radio"
)

// mapDirectory is a literal Directory for tests.
type mapDirectory struct {
	roles  map[string][]string
	onDuty map[string]bool
}

func (d mapDirectory) Roles(user string) []string       { return d.roles[user] }
func (d mapDirectory) OnDutyEmergency(user string) bool { return d.onDuty[user] }

// mapGrants is a literal GrantSource keyed by "role|channel".
type mapGrants map[string]Grant

func (g mapGrants) Grant(role, channelID string) (Grant, bool) {
	grant, ok := g[role+"|"+channelID]
	return grant, ok
}

var (
	public    = radio.Channel{ID: "city", Kind: radio.ChannelPublic, Active: true}
	private   = radio.Channel{ID: "pd", Kind: radio.ChannelPrivate, Active: true}
	emergency = radio.Channel{ID: "911", Kind: radio.ChannelEmergency, Priority: 5, Active: true}
)

func TestDefaultsByKind(t *testing.T) {
	resolver := NewResolver(mapDirectory{}, mapGrants{})

	if !resolver.CanJoin("civ-1", public) {
		t.Error("public channel denied without grants")
	}
	if resolver.CanJoin("civ-1", private) {
		t.Error("private channel open without grants")
	}
	if resolver.CanJoin("civ-1", emergency) {
		t.Error("emergency channel open to off-duty user")
	}
}

func TestExplicitGrantOverridesDefault(t *testing.T) {
	directory := mapDirectory{roles: map[string][]string{
		"officer-1": {"police"},
		"civ-1":     {"civilian"},
	}}
	grants := mapGrants{
		"police|pd":     {CanJoin: true, CanTransmit: true},
		"civilian|city": {CanJoin: false, CanTransmit: false},
	}
	resolver := NewResolver(directory, grants)

	if !resolver.CanJoin("officer-1", private) {
		t.Error("explicit grant did not open private channel")
	}
	// An explicit denial closes even a public channel.
	if resolver.CanJoin("civ-1", public) {
		t.Error("explicit denial did not close public channel")
	}
	// Users without the denied role keep the public default.
	if !resolver.CanJoin("civ-2", public) {
		t.Error("denial for one role leaked to unrelated user")
	}
}

func TestAnyAllowingRoleWins(t *testing.T) {
	directory := mapDirectory{roles: map[string][]string{
		"sgt-1": {"police", "supervisor"},
	}}
	grants := mapGrants{
		"police|pd":     {CanJoin: false},
		"supervisor|pd": {CanJoin: true, CanTransmit: true},
	}
	resolver := NewResolver(directory, grants)

	if !resolver.CanJoin("sgt-1", private) {
		t.Error("allowing role did not override denying role")
	}
}

func TestOnDutyEmergencyBypass(t *testing.T) {
	directory := mapDirectory{onDuty: map[string]bool{"ems-1": true}}
	resolver := NewResolver(directory, mapGrants{})

	if !resolver.CanJoin("ems-1", emergency) {
		t.Error("on-duty user denied emergency channel")
	}
	if !resolver.CanTransmit("ems-1", emergency) {
		t.Error("on-duty user cannot transmit on emergency channel")
	}
	// The bypass is scoped to emergency channels.
	if resolver.CanJoin("ems-1", private) {
		t.Error("on-duty bypass leaked to private channel")
	}
}

func TestActiveSpeakerEmergencyWins(t *testing.T) {
	active := []ActiveTransmission{
		{Event: radio.TransmissionEvent{User: "civ-1", Channel: "city", Kind: radio.TransmissionNormal, Active: true}, Priority: 1},
		{Event: radio.TransmissionEvent{User: "ems-1", Channel: "911", Kind: radio.TransmissionEmergency, Active: true}, Priority: 5},
	}

	winner, ok := ActiveSpeaker(active)
	if !ok {
		t.Fatal("no speaker resolved")
	}
	if winner.User != "ems-1" {
		t.Errorf("winner = %s, want ems-1", winner.User)
	}
}

func TestActiveSpeakerPriorityThenStability(t *testing.T) {
	low := ActiveTransmission{Event: radio.TransmissionEvent{User: "a", Channel: "city", Active: true}, Priority: 1}
	high := ActiveTransmission{Event: radio.TransmissionEvent{User: "b", Channel: "pd", Active: true}, Priority: 3}
	peer := ActiveTransmission{Event: radio.TransmissionEvent{User: "c", Channel: "fd", Active: true}, Priority: 3}

	winner, _ := ActiveSpeaker([]ActiveTransmission{low, high, peer})
	if winner.User != "b" {
		t.Errorf("winner = %s, want b (higher priority, earliest tie)", winner.User)
	}
}

func TestActiveSpeakerIgnoresInactive(t *testing.T) {
	active := []ActiveTransmission{
		{Event: radio.TransmissionEvent{User: "a", Active: false}, Priority: 9},
		{Event: radio.TransmissionEvent{User: "b", Active: true}, Priority: 1},
	}
	winner, ok := ActiveSpeaker(active)
	if !ok || winner.User != "b" {
		t.Errorf("winner = %v ok=%v, want b", winner.User, ok)
	}

	if _, ok := ActiveSpeaker(nil); ok {
		t.Error("empty contest resolved a speaker")
	}
}
