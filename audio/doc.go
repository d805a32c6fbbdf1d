// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package audio wraps the local capture device behind a Source of PCM
// frames and provides the two signal-side primitives the transmission
// gate needs: a rolling level monitor for voice-activity detection and
// an outbound gain stage for mute/volume control.
//
// Codec work (Opus encode/decode) and network transport belong to the
// peer-to-peer session layer, not here. This package deals only in
// raw 16-bit PCM.
package audio
