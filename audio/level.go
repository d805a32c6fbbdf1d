// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package audio

// LevelMonitor maintains a rolling average of frame levels for
// voice-activity detection. The window smooths out single-frame
// spikes (keyboard clicks, plosives) so the gate reacts to sustained
// speech, not transients.
//
// LevelMonitor is not safe for concurrent use; the station's capture
// loop is its only caller.
type LevelMonitor struct {
	window []float64
	next   int
	filled int
	sum    float64
}

// NewLevelMonitor creates a monitor averaging over the given number of
// frames. With 20ms frames, a window of 10 averages the last 200ms.
func NewLevelMonitor(window int) *LevelMonitor {
	if window < 1 {
		window = 1
	}
	return &LevelMonitor{window: make([]float64, window)}
}

// Push records a frame's level and returns the updated rolling
// average.
func (m *LevelMonitor) Push(frame Frame) float64 {
	level := frame.Level()

	if m.filled == len(m.window) {
		m.sum -= m.window[m.next]
	} else {
		m.filled++
	}
	m.window[m.next] = level
	m.sum += level
	m.next = (m.next + 1) % len(m.window)

	return m.Average()
}

// Average returns the current rolling average, 0.0 when no frames
// have been pushed.
func (m *LevelMonitor) Average() float64 {
	if m.filled == 0 {
		return 0
	}
	return m.sum / float64(m.filled)
}

// Reset clears the window, e.g. after the capture device changes.
func (m *LevelMonitor) Reset() {
	for i := range m.window {
		m.window[i] = 0
	}
	m.next = 0
	m.filled = 0
	m.sum = 0
}
