// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the airwave-standard CBOR encoding.
//
// The store persists audio configuration snapshots and audit payloads
// as CBOR blobs. Encoding uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so stored blobs are directly comparable.
//
// The live signaling wire is JSON (see package signaling); this codec
// is for at-rest data only.
package codec
