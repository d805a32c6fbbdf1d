// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package radio defines the shared domain model of the airwave voice
// network: channels, memberships, transmission events, per-user audio
// configuration, and the error taxonomy surfaced to users.
//
// The types here are plain data. Behavior lives in the packages that
// own each concern: registry (membership), policy (access and
// priority), gate (transmission state), transport (peer links).
package radio
