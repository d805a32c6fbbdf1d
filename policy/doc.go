// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy is the single authoritative evaluation point for who
// may join or transmit on a channel, and which of several simultaneous
// transmissions wins the active-speaker indicator.
//
// Centralizing these decisions here means the registry, relay, and UI
// all see the same answer; no component re-derives permissions ad hoc.
package policy
