// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Airwave-station is the client side of the radio: it connects to the
// relay, joins a channel, and runs the capture pipeline through the
// transmission gate onto peer audio links. Control is a line protocol
// on stdin:
//
//	ptt            toggle the push-to-talk key
//	mute | unmute  flip the local mute switch
//	whisper USER   direct transmissions to one member
//	whisper off    back to channel-wide transmission
//	join CHANNEL   hop to another channel
//	leave          leave the current channel
//	peers          list established peer links
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/perety/airwave/audio"
	"github.com/perety/airwave/gate"
	"github.com/perety/airwave/lib/config"
	"github.com/perety/airwave/policy"
	"github.com/perety/airwave/radio"
	"github.com/perety/airwave/signaling"
	"github.com/perety/airwave/transport"
)

// levelWindow is how many 20ms frames feed the rolling voice level:
// roughly a quarter second of audio.
const levelWindow = 12

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		channel    string
		callsign   string
		vad        bool
		tone       bool
		debug      bool
	)
	pflag.StringVar(&configPath, "config", "", "configuration file (defaults to $AIRWAVE_CONFIG)")
	pflag.StringVar(&channel, "channel", "", "channel to join on startup")
	pflag.StringVar(&callsign, "user", "", "station identity, overrides the configuration")
	pflag.BoolVar(&vad, "vad", false, "voice-activity transmission instead of push-to-talk")
	pflag.BoolVar(&tone, "tone", false, "use the synthetic tone source instead of a capture device")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if callsign == "" {
		callsign = cfg.Station.Callsign
	}
	if callsign == "" {
		return fmt.Errorf("--user or station.callsign is required")
	}
	if cfg.Station.RelayURL == "" {
		return fmt.Errorf("station.relay_url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	audioCfg := fetchAudioConfig(ctx, cfg.Station.RelayURL, callsign, logger)

	source, err := openSource(tone, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	signaler, err := signaling.Dial(ctx, cfg.Station.RelayURL, callsign, logger)
	if err != nil {
		return err
	}
	defer signaler.Close()

	st := newStation(callsign, audioCfg, vad, signaler, logger,
		cfg.Station.NegotiationTimeout)

	runErrs := make(chan error, 1)
	go func() { runErrs <- st.orch.Run() }()
	defer st.orch.Stop()

	if channel != "" {
		if err := st.joinChannel(ctx, channel); err != nil {
			return err
		}
	}

	go st.captureLoop(ctx, source)
	go st.commandLoop(ctx, os.Stdin)

	select {
	case err := <-runErrs:
		if err != nil {
			return fmt.Errorf("relay connection: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// station wires the gate, the orchestrator, and the speaker indicator
// together for one user.
type station struct {
	user   string
	logger *slog.Logger
	orch   *transport.Orchestrator
	gate   *gate.Gate
	gain   *audio.Gain

	mu      sync.Mutex
	whisper string
	pttHeld bool
	// active tracks other members' live transmissions for the speaker
	// indicator.
	active map[string]policy.ActiveTransmission
}

func newStation(user string, audioCfg radio.AudioConfig, vad bool, signaler *signaling.Client, logger *slog.Logger, timeout time.Duration) *station {
	st := &station{
		user:   user,
		logger: logger,
		gain:   audio.NewGain(1.0),
		active: make(map[string]policy.ActiveTransmission),
	}

	factory := transport.NewWebRTCFactory(transport.ICEConfig{}, st.playback, logger)
	st.orch = transport.New(transport.Config{
		User:               user,
		Signaler:           signaler,
		Factory:            factory.Session,
		NegotiationTimeout: timeout,
		Logger:             logger,
		OnTransmission:     st.onTransmission,
		OnLinkUp: func(remote string) {
			logger.Info("peer link up", "peer", remote)
		},
		OnPeerUnreachable: func(remote string, cause error) {
			logger.Warn("peer unreachable", "peer", remote, "error", cause)
		},
	})

	mode := gate.ModePTT
	if vad {
		mode = gate.ModeVoiceActivity
	}
	st.gate = gate.New(user, gate.Config{
		Mode:           mode,
		VoiceThreshold: audioCfg.VoiceThreshold,
	}, st.gain, st.onGateFlip, logger)

	return st
}

func (st *station) joinChannel(ctx context.Context, channel string) error {
	kind, err := st.orch.Join(ctx, channel)
	if err != nil {
		return fmt.Errorf("joining %s: %w", channel, err)
	}
	st.gate.Joined(channel, kind)
	st.logger.Info("on channel", "channel", channel, "kind", kind)
	return nil
}

// onGateFlip relays local transmission flips to the channel.
func (st *station) onGateFlip(event radio.TransmissionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.orch.Transmit(ctx, event); err != nil {
		st.logger.Warn("transmission signal failed", "error", err)
	}
	st.logger.Info("transmission", "active", event.Active, "kind", event.Kind, "target", event.Target)
}

// onTransmission maintains the active-speaker indicator from other
// members' flips.
func (st *station) onTransmission(from, channel string, payload signaling.TransmissionPayload) {
	st.mu.Lock()
	if payload.Active {
		st.active[from] = policy.ActiveTransmission{
			Event: radio.TransmissionEvent{
				User: from, Channel: channel, Kind: payload.Kind, Active: true,
			},
		}
	} else {
		delete(st.active, from)
	}
	transmissions := make([]policy.ActiveTransmission, 0, len(st.active))
	for _, transmission := range st.active {
		transmissions = append(transmissions, transmission)
	}
	st.mu.Unlock()

	if speaker, ok := policy.ActiveSpeaker(transmissions); ok {
		st.logger.Info("active speaker", "user", speaker.User, "kind", speaker.Kind)
	} else {
		st.logger.Info("channel quiet")
	}
}

// playback receives peer audio. Real output-device playout sits
// outside this binary; the station surfaces receive levels for the
// indicator instead.
func (st *station) playback(remote string, payload []byte) {
	frame := audio.DecodePCM16(payload)
	st.logger.Debug("rx audio", "peer", remote, "level", frame.Level())
}

// captureLoop runs the transmit pipeline: read a frame, feed the level
// monitor and the gate, and ship the frame if the gain is open.
func (st *station) captureLoop(ctx context.Context, source audio.Source) {
	monitor := audio.NewLevelMonitor(levelWindow)
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, radio.ErrDeviceUnavailable) {
				st.logger.Warn("capture device lost, continuing listen-only")
				return
			}
			st.logger.Error("capture read failed", "error", err)
			return
		}

		monitor.Push(frame)
		st.gate.Observe(monitor.Average())

		if !st.gain.Apply(frame) {
			continue
		}
		payload := frame.EncodePCM16()

		st.mu.Lock()
		target := st.whisper
		st.mu.Unlock()
		if target != "" {
			if err := st.orch.WriteAudioTo(target, payload, audio.FrameDuration); err != nil {
				st.logger.Debug("whisper write failed", "peer", target, "error", err)
			}
			continue
		}
		st.orch.WriteAudio(payload, audio.FrameDuration)
	}
}

// commandLoop reads the stdin control protocol.
func (st *station) commandLoop(ctx context.Context, input *os.File) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "ptt":
			st.mu.Lock()
			st.pttHeld = !st.pttHeld
			held := st.pttHeld
			st.mu.Unlock()
			if held {
				st.gate.PressPTT()
			} else {
				st.gate.ReleasePTT()
			}

		case "mute":
			st.gate.SetMuted(true)
		case "unmute":
			st.gate.SetMuted(false)

		case "whisper":
			if len(fields) < 2 {
				fmt.Println("usage: whisper USER|off")
				continue
			}
			if fields[1] == "off" {
				st.setWhisper("")
			} else {
				st.setWhisper(fields[1])
			}

		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join CHANNEL")
				continue
			}
			if err := st.joinChannel(ctx, fields[1]); err != nil {
				fmt.Printf("join failed: %v\n", err)
			}

		case "leave":
			st.gate.Left()
			if err := st.orch.Leave(ctx); err != nil {
				fmt.Printf("leave failed: %v\n", err)
			}

		case "peers":
			fmt.Println(strings.Join(st.orch.ConnectedPeers(), " "))

		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func (st *station) setWhisper(target string) {
	st.mu.Lock()
	st.whisper = target
	st.mu.Unlock()
	if target == "" {
		st.gate.ClearWhisperTarget()
	} else {
		st.gate.SetWhisperTarget(target)
	}
}

// fetchAudioConfig loads the user's saved preferences from the relay's
// HTTP surface. Failures fall back to defaults: the station must come
// up even when the relay is mid-restart.
func fetchAudioConfig(ctx context.Context, relayURL, user string, logger *slog.Logger) radio.AudioConfig {
	base, err := httpBase(relayURL)
	if err != nil {
		logger.Warn("bad relay URL, using default audio config", "error", err)
		return radio.DefaultAudioConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"/audio-config?user="+url.QueryEscape(user), nil)
	if err != nil {
		return radio.DefaultAudioConfig()
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		logger.Warn("audio config fetch failed, using defaults", "error", err)
		return radio.DefaultAudioConfig()
	}
	defer response.Body.Close()

	config := radio.DefaultAudioConfig()
	if response.StatusCode != http.StatusOK {
		logger.Warn("audio config fetch rejected, using defaults", "status", response.StatusCode)
		return config
	}
	if err := json.NewDecoder(response.Body).Decode(&config); err != nil {
		logger.Warn("bad audio config payload, using defaults", "error", err)
		return radio.DefaultAudioConfig()
	}
	return config
}

// httpBase turns the websocket relay URL into the base for its HTTP
// endpoints.
func httpBase(relayURL string) (string, error) {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func openSource(tone bool, logger *slog.Logger) (audio.Source, error) {
	// Hardware capture attaches here through the audio.Source
	// interface. Until a device backend lands, the tone source is the
	// only capture path.
	if !tone {
		logger.Warn("no capture device backend built in, using tone source")
	}
	return &audio.ToneSource{Amplitude: 0.6, Frequency: 440}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
