// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling defines the wire protocol between stations and the
// relay, and the Signaler abstraction the orchestrator drives.
//
// The relay never inspects negotiation payloads: offers, answers, and
// ICE candidates are opaque blobs routed by recipient. Membership and
// transmission messages are the only typed payloads.
//
// Two Signaler implementations exist: Client speaks JSON over a
// websocket to the production relay; MemorySignaler is an in-process
// switchboard for tests, letting two orchestrators negotiate without
// any network.
package signaling
