// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// WebRTCFactory builds pion-backed sessions. Each session is one
// PeerConnection carrying a single outbound Opus track; inbound audio
// is drained to the configured sink.
type WebRTCFactory struct {
	logger *slog.Logger

	// sink receives the payload of every inbound audio packet, tagged
	// with the sending peer. Nil discards inbound audio.
	sink func(remote string, payload []byte)

	configMu  sync.RWMutex
	iceConfig ICEConfig
}

// NewWebRTCFactory creates a factory with the given ICE configuration.
func NewWebRTCFactory(iceConfig ICEConfig, sink func(remote string, payload []byte), logger *slog.Logger) *WebRTCFactory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebRTCFactory{logger: logger, sink: sink, iceConfig: iceConfig}
}

// UpdateICEConfig replaces the ICE servers for sessions built after
// the call. Live sessions keep their original configuration.
func (f *WebRTCFactory) UpdateICEConfig(config ICEConfig) {
	f.configMu.Lock()
	defer f.configMu.Unlock()
	f.iceConfig = config
}

// Session implements SessionFactory.
func (f *WebRTCFactory) Session(remote string, events Events) (Session, error) {
	f.configMu.RLock()
	config := webrtc.Configuration{ICEServers: f.iceConfig.Servers}
	f.configMu.RUnlock()

	// Loopback candidates keep same-machine stations connectable,
	// which is the common case on a single game host and in tests.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "airwave",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("adding audio track: %w", err)
	}

	session := &webrtcSession{
		remote: remote,
		pc:     pc,
		track:  track,
		logger: f.logger,
		closed: make(chan struct{}),
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil || events.Candidate == nil {
			return
		}
		encoded, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			f.logger.Error("encoding ICE candidate failed", "peer", remote, "error", err)
			return
		}
		events.Candidate(string(encoded))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.logger.Debug("peer connection state", "peer", remote, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if events.Connected != nil {
				events.Connected()
			}
		case webrtc.PeerConnectionStateFailed:
			if events.Failed != nil {
				events.Failed()
			}
		case webrtc.PeerConnectionStateClosed:
			// Closing locally is not a failure; the session reports
			// failure only when a live connection dies underneath it.
			select {
			case <-session.closed:
			default:
				if events.Failed != nil {
					events.Failed()
				}
			}
		}
	})

	pc.OnTrack(func(remote_ *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		session.drainInbound(remote_, f.sink)
	})

	return session, nil
}

// webrtcSession is the production Session over one PeerConnection.
type webrtcSession struct {
	remote string
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Session = (*webrtcSession)(nil)

func (s *webrtcSession) CreateOffer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("creating offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	// Trickle ICE: the SDP ships immediately, candidates follow as
	// they are gathered.
	return offer.SDP, nil
}

func (s *webrtcSession) AcceptOffer(ctx context.Context, offer string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("setting remote offer: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	return answer.SDP, nil
}

func (s *webrtcSession) AcceptAnswer(ctx context.Context, answer string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	return nil
}

func (s *webrtcSession) AddCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("decoding candidate: %w", err)
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("adding candidate: %w", err)
	}
	return nil
}

func (s *webrtcSession) WriteAudio(frame []byte, duration time.Duration) error {
	return s.track.WriteSample(media.Sample{Data: frame, Duration: duration})
}

func (s *webrtcSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.pc.Close()
	})
	return err
}

// drainInbound reads the peer's audio packets and feeds the sink until
// the track ends. Without a sink the packets are read and dropped to
// keep pion's receive path flowing.
func (s *webrtcSession) drainInbound(track *webrtc.TrackRemote, sink func(remote string, payload []byte)) {
	s.logger.Debug("inbound audio track", "peer", s.remote, "codec", track.Codec().MimeType)
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("inbound track ended", "peer", s.remote, "error", err)
			}
			return
		}
		if sink != nil && len(packet.Payload) > 0 {
			sink(s.remote, packet.Payload)
		}
	}
}
