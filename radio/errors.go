// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package radio

import "errors"

// Error taxonomy surfaced to users. Callers match with errors.Is;
// wrapping with fmt.Errorf("...: %w") preserves identity across
// package boundaries.
var (
	// ErrAccessDenied means the permission check failed. Surfaced,
	// never retried.
	ErrAccessDenied = errors.New("access denied")

	// ErrChannelFull means the channel's capacity is reached.
	// Surfaced, never retried.
	ErrChannelFull = errors.New("channel full")

	// ErrChannelInactive means the channel exists but is disabled.
	ErrChannelInactive = errors.New("channel inactive")

	// ErrUnknownChannel means the channel id is not registered.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrNotMember means the user has no membership in the channel.
	ErrNotMember = errors.New("not a member")

	// ErrNegotiationTimeout means a peer link did not reach connected
	// within the bound. Retried once, then surfaced as peer
	// unreachable; other links are unaffected.
	ErrNegotiationTimeout = errors.New("negotiation timeout")

	// ErrPeerUnreachable means negotiation failed after the retry.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrDeviceUnavailable means the microphone is missing or
	// permission was denied. Channel joins still succeed in
	// listen-only mode.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrRelayDisconnected means the signaling transport was lost.
	// All local peer links are proactively closed; the user must
	// reconnect and rejoin explicitly.
	ErrRelayDisconnected = errors.New("relay disconnected")

	// ErrRegistryUnavailable means the registry's own backing
	// connectivity is gone. Fatal to the session: forces
	// re-authentication.
	ErrRegistryUnavailable = errors.New("registry unavailable")
)
