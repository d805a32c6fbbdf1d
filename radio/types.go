// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package radio

import "time"

// ChannelKind classifies a channel's access policy.
type ChannelKind string

const (
	// ChannelPublic is joinable by anyone absent an explicit grant.
	ChannelPublic ChannelKind = "public"
	// ChannelPrivate is denied by default; joining requires an
	// explicit role grant.
	ChannelPrivate ChannelKind = "private"
	// ChannelEmergency is denied by default but bypasses the ACL for
	// users holding an on-duty emergency role. Its traffic wins the
	// active-speaker indicator.
	ChannelEmergency ChannelKind = "emergency"
)

// DefaultCapacity is the member limit applied to channels whose stored
// capacity is zero.
const DefaultCapacity = 50

// Channel is a named broadcast scope ("radio"). Channels are created
// and edited by administrators through the dashboard; the live layer
// only reads them.
type Channel struct {
	// ID is the stable identifier used on the wire.
	ID string

	// Name is the display name.
	Name string

	// Tag is the human-readable frequency label, e.g. "154.800 MHz".
	Tag string

	// Kind selects the access policy.
	Kind ChannelKind

	// Capacity is the maximum number of concurrent members. Zero
	// means DefaultCapacity.
	Capacity int

	// Priority orders simultaneous transmissions across channels for
	// the active-speaker indicator. Higher wins.
	Priority int

	// Active gates whether the channel is joinable at all.
	Active bool
}

// EffectiveCapacity returns Capacity, or DefaultCapacity when unset.
func (c Channel) EffectiveCapacity() int {
	if c.Capacity <= 0 {
		return DefaultCapacity
	}
	return c.Capacity
}

// MembershipState is a member's transmission state as seen by the
// channel.
type MembershipState string

const (
	MemberIdle         MembershipState = "idle"
	MemberListening    MembershipState = "listening"
	MemberTransmitting MembershipState = "transmitting"
)

// Membership is a user's active presence in a channel. A user holds at
// most one membership at a time: joining a new channel implicitly
// leaves the previous one.
type Membership struct {
	Channel string
	User    string
	State   MembershipState

	// Seq is the registry commit sequence of the join. It totally
	// orders members within a channel; the member with the lower Seq
	// initiates peer negotiation toward the higher (initiator
	// symmetry), so no duplicate link ever forms for a pair.
	Seq uint64

	// JoinedAt is the registry's commit time of the join.
	JoinedAt time.Time
}

// TransmissionKind classifies a transmission.
type TransmissionKind string

const (
	// TransmissionNormal is ordinary channel-wide traffic.
	TransmissionNormal TransmissionKind = "normal"
	// TransmissionWhisper is directed at a single recipient's peer
	// link and does not change the broadcast membership state.
	TransmissionWhisper TransmissionKind = "whisper"
	// TransmissionEmergency is priority traffic that wins the
	// active-speaker indicator without muting anyone.
	TransmissionEmergency TransmissionKind = "emergency"
)

// TransmissionEvent is the ephemeral signal broadcast to a channel's
// members whenever a member's transmission gate flips. It is never
// persisted.
type TransmissionEvent struct {
	User    string
	Channel string
	Kind    TransmissionKind
	Active  bool

	// Target is set only for whisper transmissions: the single
	// recipient instead of the whole channel.
	Target string
}

// QualityTier selects the audio capture quality.
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// AudioConfig is a user's audio preferences. Mutated only by its
// owning user; persisted by the relay and cached by the station.
type AudioConfig struct {
	// OutputVolume scales received audio, 0.0–1.0.
	OutputVolume float64 `cbor:"output_volume"`

	// VoiceThreshold is the rolling-average level above which
	// voice-activity detection arms the gate, 0.0–1.0. The gate
	// disarms at half this value (hysteresis).
	VoiceThreshold float64 `cbor:"voice_threshold"`

	// PTTBinding names the push-to-talk key, e.g. "CapsLock".
	PTTBinding string `cbor:"ptt_binding"`

	// NoiseSuppression and EchoCancellation toggle the capture
	// pipeline's filters.
	NoiseSuppression bool `cbor:"noise_suppression"`
	EchoCancellation bool `cbor:"echo_cancellation"`

	// Quality selects the capture quality tier.
	Quality QualityTier `cbor:"quality"`
}

// DefaultAudioConfig returns the configuration applied to users who
// have never saved one.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		OutputVolume:     1.0,
		VoiceThreshold:   0.25,
		PTTBinding:       "CapsLock",
		NoiseSuppression: true,
		EchoCancellation: true,
		Quality:          QualityMedium,
	}
}
