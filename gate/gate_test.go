// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"testing"

	"github.com/perety/airwave/audio"
	"github.com/perety/airwave/radio"
)

// recorder captures emitted transmission events in order.
type recorder struct {
	events []radio.TransmissionEvent
}

func (r *recorder) emit(event radio.TransmissionEvent) {
	r.events = append(r.events, event)
}

func newPTTGate(rec *recorder) (*Gate, *audio.Gain) {
	gain := audio.NewGain(1.0)
	g := New("unit-12", Config{Mode: ModePTT}, gain, rec.emit, nil)
	return g, gain
}

func TestPTTHoldEmitsExactlyOnePair(t *testing.T) {
	rec := &recorder{}
	g, gain := newPTTGate(rec)
	g.Joined("dispatch", radio.ChannelPublic)

	// Holding the key repeatedly reports key-down; the gate must not
	// emit duplicates.
	for i := 0; i < 5; i++ {
		g.PressPTT()
	}
	if !g.Transmitting() {
		t.Fatal("gate not transmitting while PTT held")
	}
	if gain.Muted() {
		t.Error("outbound gain muted during transmission")
	}

	g.ReleasePTT()
	g.ReleasePTT()
	if g.Transmitting() {
		t.Fatal("gate still transmitting after release")
	}
	if !gain.Muted() {
		t.Error("outbound gain open after release")
	}

	if len(rec.events) != 2 {
		t.Fatalf("emitted %d events, want exactly 2: %+v", len(rec.events), rec.events)
	}
	if !rec.events[0].Active || rec.events[1].Active {
		t.Errorf("event order wrong: %+v", rec.events)
	}
	for _, event := range rec.events {
		if event.Channel != "dispatch" || event.User != "unit-12" {
			t.Errorf("event misattributed: %+v", event)
		}
		if event.Kind != radio.TransmissionNormal {
			t.Errorf("kind = %s, want normal", event.Kind)
		}
	}
}

func TestPTTWithoutChannelOnlyArms(t *testing.T) {
	rec := &recorder{}
	g, _ := newPTTGate(rec)

	g.PressPTT()
	if got := g.State(); got != StateArmed {
		t.Errorf("state = %s, want armed (no channel joined)", got)
	}
	if len(rec.events) != 0 {
		t.Errorf("events emitted without a channel: %+v", rec.events)
	}

	// Joining while the key is held opens the transmission.
	g.Joined("dispatch", radio.ChannelPublic)
	if !g.Transmitting() {
		t.Error("gate did not open after join with key held")
	}
}

func TestVoiceActivityHysteresis(t *testing.T) {
	rec := &recorder{}
	g := New("unit-3", Config{Mode: ModeVoiceActivity, VoiceThreshold: 0.4}, nil, rec.emit, nil)
	g.Joined("city", radio.ChannelPublic)

	g.Observe(0.5)
	if !g.Transmitting() {
		t.Fatal("level above threshold did not open the gate")
	}

	// Falling below the threshold but above half of it must hold the
	// gate open.
	g.Observe(0.3)
	if !g.Transmitting() {
		t.Error("gate closed inside the hysteresis band")
	}

	g.Observe(0.19)
	if g.Transmitting() {
		t.Error("gate open below half the threshold")
	}

	if len(rec.events) != 2 {
		t.Errorf("emitted %d events, want 2", len(rec.events))
	}
}

func TestPTTIgnoredInVoiceActivityMode(t *testing.T) {
	rec := &recorder{}
	g := New("unit-3", Config{Mode: ModeVoiceActivity, VoiceThreshold: 0.4}, nil, rec.emit, nil)
	g.Joined("city", radio.ChannelPublic)

	g.PressPTT()
	if g.Transmitting() {
		t.Error("PTT opened the gate in voice-activity mode")
	}
}

func TestMuteInterruptsTransmission(t *testing.T) {
	rec := &recorder{}
	g, gain := newPTTGate(rec)
	g.Joined("dispatch", radio.ChannelPublic)

	g.PressPTT()
	g.SetMuted(true)
	if got := g.State(); got != StateMuted {
		t.Fatalf("state = %s, want muted", got)
	}
	if !gain.Muted() {
		t.Error("gain open while gate muted")
	}

	// Unmuting with the key still held resumes transmitting.
	g.SetMuted(false)
	if !g.Transmitting() {
		t.Error("gate did not resume after unmute")
	}

	// active, inactive (mute), active (resume).
	if len(rec.events) != 3 {
		t.Fatalf("emitted %d events, want 3: %+v", len(rec.events), rec.events)
	}
	if !rec.events[0].Active || rec.events[1].Active || !rec.events[2].Active {
		t.Errorf("event sequence wrong: %+v", rec.events)
	}
}

func TestEmergencyChannelMarksKind(t *testing.T) {
	rec := &recorder{}
	g, _ := newPTTGate(rec)
	g.Joined("911", radio.ChannelEmergency)

	g.PressPTT()
	g.ReleasePTT()

	for _, event := range rec.events {
		if event.Kind != radio.TransmissionEmergency {
			t.Errorf("kind = %s, want emergency", event.Kind)
		}
	}
}

func TestWhisperTargetsSingleRecipient(t *testing.T) {
	rec := &recorder{}
	g, _ := newPTTGate(rec)
	g.Joined("dispatch", radio.ChannelPublic)
	g.SetWhisperTarget("unit-7")

	g.PressPTT()
	g.ReleasePTT()

	if len(rec.events) != 2 {
		t.Fatalf("emitted %d events, want 2", len(rec.events))
	}
	for _, event := range rec.events {
		if event.Kind != radio.TransmissionWhisper {
			t.Errorf("kind = %s, want whisper", event.Kind)
		}
		if event.Target != "unit-7" {
			t.Errorf("target = %q, want unit-7", event.Target)
		}
	}
}

func TestWhisperFlipMidTransmissionClosesFirst(t *testing.T) {
	rec := &recorder{}
	g, _ := newPTTGate(rec)
	g.Joined("dispatch", radio.ChannelPublic)

	g.PressPTT()
	g.SetWhisperTarget("unit-7")

	// Broadcast open, broadcast close, whisper open.
	if len(rec.events) != 3 {
		t.Fatalf("emitted %d events, want 3: %+v", len(rec.events), rec.events)
	}
	if rec.events[1].Active || rec.events[1].Target != "" {
		t.Errorf("expected broadcast close, got %+v", rec.events[1])
	}
	if !rec.events[2].Active || rec.events[2].Target != "unit-7" {
		t.Errorf("expected whisper open, got %+v", rec.events[2])
	}
}

func TestLeaveClosesOpenTransmission(t *testing.T) {
	rec := &recorder{}
	g, _ := newPTTGate(rec)
	g.Joined("dispatch", radio.ChannelPublic)

	g.PressPTT()
	g.Left()

	if g.Transmitting() {
		t.Fatal("gate transmitting after leave")
	}
	last := rec.events[len(rec.events)-1]
	if last.Active {
		t.Error("no inactive event on leave")
	}
	if last.Channel != "dispatch" {
		t.Errorf("inactive event channel = %q, want dispatch", last.Channel)
	}
}
