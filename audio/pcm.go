// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import "encoding/binary"

// EncodePCM16 packs the frame as little-endian 16-bit PCM, the wire
// layout the session layer ships.
func (f Frame) EncodePCM16() []byte {
	encoded := make([]byte, 2*len(f.Samples))
	for i, sample := range f.Samples {
		binary.LittleEndian.PutUint16(encoded[2*i:], uint16(sample))
	}
	return encoded
}

// DecodePCM16 unpacks a little-endian 16-bit PCM payload. A trailing
// odd byte is ignored.
func DecodePCM16(payload []byte) Frame {
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return Frame{Samples: samples}
}
