// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the relay's authoritative record of channel
// membership. All joins and leaves commit under one lock, which gives
// every membership a total order (Seq) and makes capacity enforcement
// race-free: of two joiners racing for the last slot, exactly one
// commits.
//
// Channel definitions are owned by the dashboard; the registry only
// reads them and can be given a fresh set with ReplaceChannels when
// an administrator edits one.
package registry
