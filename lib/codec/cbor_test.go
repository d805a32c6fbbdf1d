// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// storedConfig mirrors the shape the store persists: struct with cbor
// tags, decoded by a different (possibly newer) schema on read.
type storedConfig struct {
	Volume    float64 `cbor:"volume"`
	Threshold float64 `cbor:"threshold"`
	Quality   string  `cbor:"quality"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := storedConfig{Volume: 0.8, Threshold: 0.2, Quality: "high"}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("deterministic encoding produced different bytes for equal values")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A future writer adds a field this reader does not know about.
	extended := map[string]any{
		"volume":    0.5,
		"threshold": 0.1,
		"quality":   "low",
		"ptt_key":   "F2",
	}
	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded storedConfig
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Volume != 0.5 || decoded.Quality != "low" {
		t.Errorf("decoded = %+v, want volume 0.5 quality low", decoded)
	}
}

func TestUnmarshalAnyUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": int64(1)}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Fatalf("nested type = %T, want map[string]any", outer["nested"])
	}
}
