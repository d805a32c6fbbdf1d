// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the relay's durable state in SQLite: channel
// definitions, role grants, per-user audio configuration, and the
// audit log. The live layer treats channels and grants as read-mostly;
// the dashboard writes them.
//
// Store implements policy.Directory and policy.GrantSource so the
// permission layer reads straight from the role tables. Audit writes
// are fire-and-forget through a buffered queue: a failed or dropped
// audit record is logged, never surfaced to the membership path.
package store
