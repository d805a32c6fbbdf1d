// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate implements the per-user transmission gate: the state
// machine that combines push-to-talk key state, voice-activity
// detection, and mute into the single "is transmitting now" signal the
// channel sees.
//
// Exactly one of push-to-talk or voice activity drives the gate at a
// time, selected by configuration; both share the same state machine
// so the UI and remote peers see one consistent signal. Entering and
// leaving the transmitting state are the only points that emit
// transmission events, which makes the gate idempotent under repeated
// identical input: a held key produces one active event and its
// release one inactive event, never a burst.
package gate
