// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"github.com/perety/airwave/radio"
)

// Grant is an explicit per-role permission for one channel. An
// explicit grant overrides the channel-kind default in both
// directions: it can open a private channel to a role or close a
// public one.
type Grant struct {
	CanJoin     bool
	CanTransmit bool
}

// Directory answers identity questions about users. The production
// implementation reads the dashboard's role tables through the store;
// tests use a literal map.
type Directory interface {
	// Roles returns the role names held by the user.
	Roles(user string) []string

	// OnDutyEmergency reports whether the user currently holds an
	// on-duty emergency-service role (dispatch, EMS, fire). On-duty
	// users bypass the ACL on emergency channels.
	OnDutyEmergency(user string) bool
}

// GrantSource resolves explicit per-role grants. The production
// implementation is the store; tests use a literal map.
type GrantSource interface {
	// Grant returns the explicit grant for (role, channel) and
	// whether one exists.
	Grant(role, channelID string) (Grant, bool)
}

// Resolver evaluates join and transmit permissions. Resolution order:
//
//  1. An on-duty emergency role bypasses the ACL on emergency
//     channels.
//  2. Any explicit per-role grant for the channel overrides the
//     default: allowed if at least one of the user's roles grants the
//     permission, denied if grants exist and none do.
//  3. Absent any explicit grant, public channels are open and
//     private/emergency channels are denied.
type Resolver struct {
	directory Directory
	grants    GrantSource
}

// NewResolver builds a Resolver over the given identity and grant
// sources.
func NewResolver(directory Directory, grants GrantSource) *Resolver {
	return &Resolver{directory: directory, grants: grants}
}

// CanJoin reports whether user may join the channel.
func (r *Resolver) CanJoin(user string, channel radio.Channel) bool {
	return r.resolve(user, channel, func(g Grant) bool { return g.CanJoin })
}

// CanTransmit reports whether user may transmit on the channel.
// Membership is checked by the registry, not here.
func (r *Resolver) CanTransmit(user string, channel radio.Channel) bool {
	return r.resolve(user, channel, func(g Grant) bool { return g.CanTransmit })
}

func (r *Resolver) resolve(user string, channel radio.Channel, allowed func(Grant) bool) bool {
	if channel.Kind == radio.ChannelEmergency && r.directory.OnDutyEmergency(user) {
		return true
	}

	explicit := false
	for _, role := range r.directory.Roles(user) {
		grant, ok := r.grants.Grant(role, channel.ID)
		if !ok {
			continue
		}
		explicit = true
		if allowed(grant) {
			return true
		}
	}
	if explicit {
		// Grants exist for this user and none allow: an explicit
		// denial beats the kind default.
		return false
	}

	return channel.Kind == radio.ChannelPublic
}

// ActiveTransmission pairs a live transmission with its channel's
// priority so the speaker contest can be resolved without a registry
// lookup.
type ActiveTransmission struct {
	Event    radio.TransmissionEvent
	Priority int
}

// ActiveSpeaker resolves which of several simultaneously active
// transmissions is surfaced as "currently speaking". Emergency-kind
// traffic beats everything; otherwise the higher channel priority
// wins; ties resolve to the earliest entry for a stable indicator.
//
// This governs only the indicator. No audio stream is muted by losing
// the contest, matching half-duplex radio discipline.
func ActiveSpeaker(active []ActiveTransmission) (radio.TransmissionEvent, bool) {
	var winner ActiveTransmission
	found := false
	for _, candidate := range active {
		if !candidate.Event.Active {
			continue
		}
		if !found || outranks(candidate, winner) {
			winner = candidate
			found = true
		}
	}
	return winner.Event, found
}

// outranks reports whether a beats b in the speaker contest.
func outranks(a, b ActiveTransmission) bool {
	aEmergency := a.Event.Kind == radio.TransmissionEmergency
	bEmergency := b.Event.Kind == radio.TransmissionEmergency
	if aEmergency != bEmergency {
		return aEmergency
	}
	return a.Priority > b.Priority
}
