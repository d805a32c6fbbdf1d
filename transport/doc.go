// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport establishes and supervises the peer audio links of
// one station. The Orchestrator consumes the signaling stream: on a
// membership change it decides, by join sequence, which side opens the
// link (the earlier joiner offers, the newcomer answers), drives the
// negotiation through an abstract Session, and enforces the
// negotiation deadline with a single retry before declaring the peer
// unreachable.
//
// Sessions carry the media. The production implementation wraps a
// pion/webrtc PeerConnection with one outbound audio track and
// trickled ICE; tests substitute scripted sessions.
package transport
