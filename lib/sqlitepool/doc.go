// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the airwave-standard SQLite connection
// pool.
//
// The relay uses this package for its local structured storage:
// channel definitions, role grants, audio configuration snapshots, and
// the audit log. It wraps zombiezen.com/go/sqlite with production
// defaults: WAL journal mode, NORMAL synchronous for process-crash
// durability without fsync-per-commit overhead, memory-mapped I/O for
// read performance, and a busy timeout to handle write contention
// gracefully.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for
// the duration of its work.
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no query
// builder and no ORM. The store writes SQL, uses sqlitex.Execute for
// cached statements, and manages transactions explicitly.
package sqlitepool
