// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/perety/airwave/radio"
)

// SampleRate is the capture sample rate in Hz. All sources produce
// mono 16-bit PCM at this rate.
const SampleRate = 48000

// FrameDuration is the length of one capture frame, matching the
// packetization the session layer expects.
const FrameDuration = 20 * time.Millisecond

// FrameSamples is the number of samples in one frame: 20ms at 48kHz.
const FrameSamples = 960

// Frame is one capture interval of mono PCM16 audio.
type Frame struct {
	// Samples holds FrameSamples signed 16-bit values.
	Samples []int16
}

// Level returns the root-mean-square amplitude of the frame,
// normalized to 0.0–1.0.
func (f Frame) Level() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Source produces capture frames. Read blocks until the next frame is
// available or ctx is cancelled. A source that loses its device
// returns an error wrapping radio.ErrDeviceUnavailable; the station
// then continues in listen-only mode.
type Source interface {
	// Read returns the next capture frame.
	Read(ctx context.Context) (Frame, error)

	// Close releases the capture device.
	Close() error
}

// ToneSource is a synthetic Source producing a fixed-amplitude sine
// tone. It stands in for a real microphone in tests and in the
// station's --tone smoke mode.
type ToneSource struct {
	// Amplitude is the peak amplitude, 0.0–1.0.
	Amplitude float64
	// Frequency is the tone frequency in Hz.
	Frequency float64

	phase  float64
	closed bool
}

// Read synthesizes the next frame. It never blocks.
func (s *ToneSource) Read(ctx context.Context) (Frame, error) {
	if s.closed {
		return Frame{}, fmt.Errorf("tone source: %w", radio.ErrDeviceUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	samples := make([]int16, FrameSamples)
	step := 2 * math.Pi * s.Frequency / SampleRate
	for i := range samples {
		samples[i] = int16(s.Amplitude * math.MaxInt16 * math.Sin(s.phase))
		s.phase += step
	}
	return Frame{Samples: samples}, nil
}

// Close marks the device gone; subsequent reads fail with
// radio.ErrDeviceUnavailable.
func (s *ToneSource) Close() error {
	s.closed = true
	return nil
}

// FrameSource is a Source fed explicitly by a test. Push queues a
// frame; Read delivers queued frames in order.
type FrameSource struct {
	frames chan Frame
}

// NewFrameSource creates a FrameSource with the given queue depth.
func NewFrameSource(depth int) *FrameSource {
	return &FrameSource{frames: make(chan Frame, depth)}
}

// Push queues a frame for delivery.
func (s *FrameSource) Push(frame Frame) {
	s.frames <- frame
}

func (s *FrameSource) Read(ctx context.Context) (Frame, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return Frame{}, fmt.Errorf("frame source: %w", radio.ErrDeviceUnavailable)
		}
		return frame, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *FrameSource) Close() error {
	close(s.frames)
	return nil
}
