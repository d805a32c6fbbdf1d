// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package audio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/perety/airwave/radio"
)

// constantFrame builds a frame where every sample has the given
// normalized amplitude.
func constantFrame(amplitude float64) Frame {
	samples := make([]int16, FrameSamples)
	value := int16(amplitude * math.MaxInt16)
	for i := range samples {
		samples[i] = value
	}
	return Frame{Samples: samples}
}

func TestFrameLevelRMS(t *testing.T) {
	if level := (Frame{}).Level(); level != 0 {
		t.Errorf("empty frame level = %f, want 0", level)
	}

	// A constant signal's RMS equals its amplitude.
	level := constantFrame(0.5).Level()
	if math.Abs(level-0.5) > 0.001 {
		t.Errorf("constant 0.5 frame level = %f, want ≈0.5", level)
	}
}

func TestToneSourceLevelMatchesAmplitude(t *testing.T) {
	source := &ToneSource{Amplitude: 0.8, Frequency: 440}
	defer source.Close()

	frame, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// RMS of a sine is amplitude/√2.
	want := 0.8 / math.Sqrt2
	if got := frame.Level(); math.Abs(got-want) > 0.01 {
		t.Errorf("tone level = %f, want ≈%f", got, want)
	}
}

func TestClosedToneSourceReportsDeviceUnavailable(t *testing.T) {
	source := &ToneSource{Amplitude: 0.5, Frequency: 440}
	source.Close()

	_, err := source.Read(context.Background())
	if !errors.Is(err, radio.ErrDeviceUnavailable) {
		t.Errorf("Read after Close = %v, want ErrDeviceUnavailable", err)
	}
}

func TestLevelMonitorRollingAverage(t *testing.T) {
	monitor := NewLevelMonitor(4)

	if monitor.Average() != 0 {
		t.Error("fresh monitor average nonzero")
	}

	for i := 0; i < 4; i++ {
		monitor.Push(constantFrame(0.4))
	}
	if avg := monitor.Average(); math.Abs(avg-0.4) > 0.001 {
		t.Errorf("average = %f, want ≈0.4", avg)
	}

	// Two loud frames displace half the window.
	monitor.Push(constantFrame(0.8))
	monitor.Push(constantFrame(0.8))
	if avg := monitor.Average(); math.Abs(avg-0.6) > 0.001 {
		t.Errorf("average after displacement = %f, want ≈0.6", avg)
	}

	monitor.Reset()
	if monitor.Average() != 0 {
		t.Error("average nonzero after Reset")
	}
}

func TestGainMutedDropsFrame(t *testing.T) {
	gain := NewGain(1.0)

	frame := constantFrame(0.5)
	if gain.Apply(frame) {
		t.Error("muted gain forwarded a frame")
	}

	gain.SetMuted(false)
	if !gain.Apply(frame) {
		t.Error("unmuted gain dropped a frame")
	}
}

func TestGainScalesSamples(t *testing.T) {
	gain := NewGain(0.5)
	gain.SetMuted(false)

	frame := constantFrame(0.5)
	original := frame.Samples[0]
	gain.Apply(frame)

	want := int16(math.Round(float64(original) * 0.5))
	if frame.Samples[0] != want {
		t.Errorf("scaled sample = %d, want %d", frame.Samples[0], want)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	frame := Frame{Samples: []int16{0, -1, math.MaxInt16, math.MinInt16, 12345}}
	decoded := DecodePCM16(frame.EncodePCM16())
	if len(decoded.Samples) != len(frame.Samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded.Samples), len(frame.Samples))
	}
	for i, sample := range frame.Samples {
		if decoded.Samples[i] != sample {
			t.Errorf("sample %d = %d, want %d", i, decoded.Samples[i], sample)
		}
	}
}

func TestFrameSourceDeliversInOrder(t *testing.T) {
	source := NewFrameSource(2)
	source.Push(constantFrame(0.1))
	source.Push(constantFrame(0.9))

	first, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	second, err := source.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Level() >= second.Level() {
		t.Error("frames delivered out of order")
	}
}
