// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"math"
	"sync"
)

// Gain is the outbound gain stage between the capture source and the
// peer links. The transmission gate mutes it outside transmitting
// intervals; the user's output volume scales it.
//
// Gain is safe for concurrent use: the capture loop applies it while
// the gate flips mute from its own goroutine.
type Gain struct {
	mu     sync.RWMutex
	volume float64
	muted  bool
}

// NewGain creates a gain stage at the given volume (0.0–1.0), muted.
// The gate unmutes it when a transmission opens.
func NewGain(volume float64) *Gain {
	return &Gain{volume: clampUnit(volume), muted: true}
}

// SetVolume updates the volume multiplier.
func (g *Gain) SetVolume(volume float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = clampUnit(volume)
}

// SetMuted flips the mute flag.
func (g *Gain) SetMuted(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = muted
}

// Muted reports the current mute flag.
func (g *Gain) Muted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.muted
}

// Apply scales the frame in place and reports whether it should be
// forwarded at all. A muted gain returns false without touching the
// samples, so the capture loop can skip the peer-link write entirely.
func (g *Gain) Apply(frame Frame) bool {
	g.mu.RLock()
	muted := g.muted
	volume := g.volume
	g.mu.RUnlock()

	if muted {
		return false
	}
	if volume == 1.0 {
		return true
	}
	for i, s := range frame.Samples {
		frame.Samples[i] = int16(math.Round(float64(s) * volume))
	}
	return true
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
