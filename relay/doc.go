// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the server side of the signaling plane. It accepts
// websocket connections from stations, runs the channel registry, and
// routes signaling messages: membership changes fan out to a channel's
// members in registry commit order, negotiation payloads (offers,
// answers, ICE candidates) are forwarded verbatim to their addressee.
//
// The relay never inspects SDP or candidate payloads and never touches
// audio. Media flows peer to peer.
package relay
