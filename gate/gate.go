// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/perety/airwave/audio"
	"github.com/perety/airwave/radio"
)

// Mode selects which input drives the gate.
type Mode string

const (
	// ModePTT arms the gate while the push-to-talk key is held.
	ModePTT Mode = "ptt"
	// ModeVoiceActivity arms the gate while the rolling voice level
	// exceeds the configured threshold.
	ModeVoiceActivity Mode = "voice-activity"
)

// Gate states. Exported for UI rendering.
const (
	StateIdle         = "idle"
	StateArmed        = "armed"
	StateTransmitting = "transmitting"
	StateMuted        = "muted"
)

// gate FSM events. The recompute loop fires these one legal step at a
// time until the machine rests in the desired state.
const (
	eventArm    = "arm"
	eventDisarm = "disarm"
	eventOpen   = "open"
	eventClose  = "close"
	eventMute   = "mute"
	eventUnmute = "unmute"
)

// Config holds the gate's tuning, derived from the user's AudioConfig.
type Config struct {
	// Mode selects push-to-talk or voice-activity operation.
	Mode Mode

	// VoiceThreshold is the rolling-average level that arms the gate
	// in voice-activity mode. The gate disarms only when the level
	// falls below half this value, preventing rapid chatter on noisy
	// signals.
	VoiceThreshold float64
}

// Gate is the per-user transmission state machine. All mutating
// methods are safe for concurrent use; transmission events are
// emitted outside the internal lock, in flip order.
type Gate struct {
	user   string
	config Config
	gain   *audio.Gain
	emit   func(radio.TransmissionEvent)
	logger *slog.Logger

	mu      sync.Mutex
	machine *fsm.FSM

	// Inputs.
	pttHeld  bool
	vadArmed bool // hysteresis latch in voice-activity mode
	muted    bool

	// Channel context. Empty channel means not joined; the gate can
	// arm but never opens.
	channel     string
	channelKind radio.ChannelKind

	// whisperTarget, when set, redirects emitted events to a single
	// recipient without touching broadcast membership state.
	whisperTarget string

	// pending collects events raised by FSM callbacks while the lock
	// is held; recompute drains it after unlocking.
	pending []radio.TransmissionEvent
}

// New creates a Gate for the given user. The gain stage is muted and
// unmuted as transmissions close and open; emit receives every
// transmission flip (nil is allowed).
func New(user string, config Config, gain *audio.Gain, emit func(radio.TransmissionEvent), logger *slog.Logger) *Gate {
	if emit == nil {
		emit = func(radio.TransmissionEvent) {}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g := &Gate{
		user:   user,
		config: config,
		gain:   gain,
		emit:   emit,
		logger: logger,
	}

	g.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventArm, Src: []string{StateIdle}, Dst: StateArmed},
			{Name: eventDisarm, Src: []string{StateArmed}, Dst: StateIdle},
			{Name: eventOpen, Src: []string{StateArmed}, Dst: StateTransmitting},
			{Name: eventClose, Src: []string{StateTransmitting}, Dst: StateArmed},
			{Name: eventMute, Src: []string{StateIdle, StateArmed, StateTransmitting}, Dst: StateMuted},
			{Name: eventUnmute, Src: []string{StateMuted}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_" + StateTransmitting: g.enterTransmitting,
			"leave_" + StateTransmitting: g.leaveTransmitting,
		},
	)
	return g
}

// PressPTT records the push-to-talk key going down. Ignored in
// voice-activity mode.
func (g *Gate) PressPTT() {
	g.input(func() {
		if g.config.Mode == ModePTT {
			g.pttHeld = true
		}
	})
}

// ReleasePTT records the push-to-talk key going up.
func (g *Gate) ReleasePTT() {
	g.input(func() {
		if g.config.Mode == ModePTT {
			g.pttHeld = false
		}
	})
}

// Observe feeds the rolling-average voice level, typically straight
// from an audio.LevelMonitor. Ignored in push-to-talk mode.
//
// Hysteresis: the latch sets at VoiceThreshold and clears at half of
// it, so a level hovering near the threshold cannot flap the gate.
func (g *Gate) Observe(level float64) {
	g.input(func() {
		if g.config.Mode != ModeVoiceActivity {
			return
		}
		switch {
		case level >= g.config.VoiceThreshold:
			g.vadArmed = true
		case level < g.config.VoiceThreshold/2:
			g.vadArmed = false
		}
	})
}

// SetMuted flips the user's mute switch.
func (g *Gate) SetMuted(muted bool) {
	g.input(func() { g.muted = muted })
}

// Joined tells the gate a channel membership is active. Transmissions
// on an emergency channel are emitted with the emergency kind.
func (g *Gate) Joined(channelID string, kind radio.ChannelKind) {
	g.input(func() {
		g.channel = channelID
		g.channelKind = kind
	})
}

// Left tells the gate the membership is gone. Any open transmission
// closes first, so the inactive event still names the channel it ends.
func (g *Gate) Left() {
	g.mu.Lock()
	if g.machine.Current() == StateTransmitting {
		g.fire(eventClose)
	}
	g.channel = ""
	g.channelKind = ""
	g.whisperTarget = ""
	g.recomputeLocked()
	pending := g.takePending()
	g.mu.Unlock()
	g.deliver(pending)
}

// SetWhisperTarget redirects subsequent transmissions to a single
// recipient. An open transmission is closed first so the flip is
// visible as a distinct whisper interval.
func (g *Gate) SetWhisperTarget(user string) {
	g.mu.Lock()
	if g.machine.Current() == StateTransmitting {
		g.fire(eventClose)
	}
	g.whisperTarget = user
	g.recomputeLocked()
	pending := g.takePending()
	g.mu.Unlock()
	g.deliver(pending)
}

// ClearWhisperTarget restores channel-wide transmission.
func (g *Gate) ClearWhisperTarget() {
	g.SetWhisperTarget("")
}

// State returns the current gate state for UI rendering.
func (g *Gate) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.machine.Current()
}

// Transmitting reports whether the outbound gain is currently open.
func (g *Gate) Transmitting() bool {
	return g.State() == StateTransmitting
}

// input applies a mutation and steps the machine to its new resting
// state, delivering any transmission flips after the lock is
// released.
func (g *Gate) input(mutate func()) {
	g.mu.Lock()
	mutate()
	g.recomputeLocked()
	pending := g.takePending()
	g.mu.Unlock()
	g.deliver(pending)
}

// desiredLocked computes the state the inputs call for.
func (g *Gate) desiredLocked() string {
	if g.muted {
		return StateMuted
	}
	if !g.inputActiveLocked() {
		return StateIdle
	}
	if g.channel != "" {
		return StateTransmitting
	}
	return StateArmed
}

func (g *Gate) inputActiveLocked() bool {
	if g.config.Mode == ModePTT {
		return g.pttHeld
	}
	return g.vadArmed
}

// recomputeLocked fires legal transitions until the machine rests in
// the desired state. Each iteration moves exactly one edge, so the
// enter/leave callbacks observe every intermediate state.
func (g *Gate) recomputeLocked() {
	for i := 0; i < 4; i++ { // the state graph's diameter bounds the walk
		current := g.machine.Current()
		desired := g.desiredLocked()
		if current == desired {
			return
		}

		switch current {
		case StateIdle:
			if desired == StateMuted {
				g.fire(eventMute)
			} else {
				g.fire(eventArm)
			}
		case StateArmed:
			switch desired {
			case StateMuted:
				g.fire(eventMute)
			case StateTransmitting:
				g.fire(eventOpen)
			default:
				g.fire(eventDisarm)
			}
		case StateTransmitting:
			if desired == StateMuted {
				g.fire(eventMute)
			} else {
				g.fire(eventClose)
			}
		case StateMuted:
			g.fire(eventUnmute)
		}
	}
}

func (g *Gate) fire(event string) {
	if err := g.machine.Event(context.Background(), event); err != nil {
		// Transitions are chosen from the current state, so this
		// only trips if the event table and recompute disagree.
		g.logger.Error("gate transition rejected", "event", event, "state", g.machine.Current(), "error", err)
	}
}

// enterTransmitting opens the outbound gain and raises the active
// event.
func (g *Gate) enterTransmitting(_ context.Context, _ *fsm.Event) {
	if g.gain != nil {
		g.gain.SetMuted(false)
	}
	g.pending = append(g.pending, g.eventLocked(true))
}

// leaveTransmitting mutes the outbound gain and raises the inactive
// event.
func (g *Gate) leaveTransmitting(_ context.Context, _ *fsm.Event) {
	if g.gain != nil {
		g.gain.SetMuted(true)
	}
	g.pending = append(g.pending, g.eventLocked(false))
}

func (g *Gate) eventLocked(active bool) radio.TransmissionEvent {
	kind := radio.TransmissionNormal
	if g.channelKind == radio.ChannelEmergency {
		kind = radio.TransmissionEmergency
	}
	if g.whisperTarget != "" {
		kind = radio.TransmissionWhisper
	}
	return radio.TransmissionEvent{
		User:    g.user,
		Channel: g.channel,
		Kind:    kind,
		Active:  active,
		Target:  g.whisperTarget,
	}
}

func (g *Gate) takePending() []radio.TransmissionEvent {
	pending := g.pending
	g.pending = nil
	return pending
}

func (g *Gate) deliver(events []radio.TransmissionEvent) {
	for _, event := range events {
		g.emit(event)
	}
}
