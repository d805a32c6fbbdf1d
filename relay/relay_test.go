// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/perety/airwave/lib/testutil"
	"github.com/perety/airwave/policy"
	"github.com/perety/airwave/radio"
	"github.com/perety/airwave/registry"
	"github.com/perety/airwave/signaling"
)

type staticDirectory struct {
	roles  map[string][]string
	onDuty map[string]bool
}

func (d staticDirectory) Roles(user string) []string    { return d.roles[user] }
func (d staticDirectory) OnDutyEmergency(u string) bool { return d.onDuty[u] }

type staticGrants map[string]map[string]policy.Grant

func (g staticGrants) Grant(role, channelID string) (policy.Grant, bool) {
	grant, ok := g[role][channelID]
	return grant, ok
}

type memoryAudio struct {
	mu      sync.Mutex
	configs map[string]radio.AudioConfig
}

func (m *memoryAudio) AudioConfig(_ context.Context, user string) (radio.AudioConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config, ok := m.configs[user]; ok {
		return config, nil
	}
	return radio.DefaultAudioConfig(), nil
}

func (m *memoryAudio) SaveAudioConfig(_ context.Context, user string, config radio.AudioConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configs == nil {
		m.configs = make(map[string]radio.AudioConfig)
	}
	m.configs[user] = config
	return nil
}

// startRelay brings up a full relay on an httptest server and returns
// its websocket URL.
func startRelay(t *testing.T, channels []radio.Channel) string {
	t.Helper()

	resolver := policy.NewResolver(
		staticDirectory{roles: map[string][]string{"medic-1": {"ems"}}, onDuty: map[string]bool{"medic-1": true}},
		staticGrants{},
	)
	reg := registry.New(registry.Config{Channels: channels, Resolver: resolver})
	hub := NewHub(reg, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(NewServer(hub, hub.metrics, &memoryAudio{}, 0, nil).Handler())
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dialStation(t *testing.T, wsURL, user string) *signaling.Client {
	t.Helper()
	client, err := signaling.Dial(context.Background(), wsURL, user, nil)
	if err != nil {
		t.Fatalf("dialing relay as %s: %v", user, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func send(t *testing.T, client *signaling.Client, message signaling.Message) {
	t.Helper()
	if err := client.Send(context.Background(), message); err != nil {
		t.Fatalf("send %s: %v", message.Type, err)
	}
}

func expect(t *testing.T, client *signaling.Client, want signaling.Type) signaling.Message {
	t.Helper()
	message := testutil.RequireReceive(t, client.Messages(), 5*time.Second, "message of type %s", want)
	if message.Type != want {
		t.Fatalf("got message type %s, want %s", message.Type, want)
	}
	return message
}

func publicChannel(id string) radio.Channel {
	return radio.Channel{ID: id, Name: id, Kind: radio.ChannelPublic, Active: true}
}

func TestJoinFansOutInCommitOrder(t *testing.T) {
	wsURL := startRelay(t, []radio.Channel{publicChannel("dispatch")})

	alpha := dialStation(t, wsURL, "alpha")
	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	list := expect(t, alpha, signaling.TypeMemberList)

	var payload signaling.MemberListPayload
	if err := list.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Members) != 1 || payload.Members[0].User != "alpha" {
		t.Fatalf("first joiner's member list = %+v", payload.Members)
	}

	bravo := dialStation(t, wsURL, "bravo")
	send(t, bravo, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	list = expect(t, bravo, signaling.TypeMemberList)
	if err := list.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Members) != 2 ||
		payload.Members[0].User != "alpha" || payload.Members[1].User != "bravo" {
		t.Fatalf("member list = %+v, want alpha then bravo", payload.Members)
	}

	joined := expect(t, alpha, signaling.TypeMembership)
	var membership signaling.MembershipPayload
	if err := joined.DecodePayload(&membership); err != nil {
		t.Fatal(err)
	}
	if membership.Event != signaling.MemberJoined || membership.Member.User != "bravo" {
		t.Fatalf("membership = %+v, want bravo joined", membership)
	}
}

func TestNegotiationMessagesRouteToAddressee(t *testing.T) {
	wsURL := startRelay(t, []radio.Channel{publicChannel("dispatch")})

	alpha := dialStation(t, wsURL, "alpha")
	bravo := dialStation(t, wsURL, "bravo")
	charlie := dialStation(t, wsURL, "charlie")
	for _, station := range []*signaling.Client{alpha, bravo, charlie} {
		send(t, station, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
		expect(t, station, signaling.TypeMemberList)
	}

	send(t, alpha, signaling.NewMessage(signaling.TypeOffer, "", "charlie", "dispatch",
		signaling.DescriptionPayload{SDP: "v=0 offer"}))

	// Charlie sees alpha's and bravo's joins before the offer.
	for {
		message := testutil.RequireReceive(t, charlie.Messages(), 5*time.Second, "offer for charlie")
		if message.Type == signaling.TypeMembership {
			continue
		}
		if message.Type != signaling.TypeOffer || message.From != "alpha" {
			t.Fatalf("unexpected message %+v", message)
		}
		var description signaling.DescriptionPayload
		if err := message.DecodePayload(&description); err != nil {
			t.Fatal(err)
		}
		if description.SDP != "v=0 offer" {
			t.Fatalf("SDP = %q", description.SDP)
		}
		break
	}
	testutil.RequireNoReceive(t, bravo.Messages(), 100*time.Millisecond, "offer leaked to bravo")
}

func TestTransmissionBroadcastSkipsSender(t *testing.T) {
	wsURL := startRelay(t, []radio.Channel{publicChannel("dispatch")})

	alpha := dialStation(t, wsURL, "alpha")
	bravo := dialStation(t, wsURL, "bravo")
	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, alpha, signaling.TypeMemberList)
	send(t, bravo, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, bravo, signaling.TypeMemberList)
	expect(t, alpha, signaling.TypeMembership)

	send(t, alpha, signaling.NewMessage(signaling.TypeTransmission, "", "", "",
		signaling.TransmissionPayload{Kind: radio.TransmissionNormal, Active: true}))

	tx := expect(t, bravo, signaling.TypeTransmission)
	if tx.From != "alpha" || tx.Channel != "dispatch" {
		t.Fatalf("transmission routed as %+v", tx)
	}
	testutil.RequireNoReceive(t, alpha.Messages(), 100*time.Millisecond, "transmission echoed to sender")
}

// A listen-only member cannot key up a whisper, but their release
// still reaches the addressee so nobody is left holding an open
// transmission.
func TestWhisperRequiresTransmitPermission(t *testing.T) {
	resolver := policy.NewResolver(
		staticDirectory{roles: map[string][]string{"scout": {"observer"}}},
		staticGrants{"observer": {"dispatch": {CanJoin: true, CanTransmit: false}}},
	)
	reg := registry.New(registry.Config{
		Channels: []radio.Channel{publicChannel("dispatch")},
		Resolver: resolver,
	})
	hub := NewHub(reg, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	server := httptest.NewServer(NewServer(hub, hub.metrics, &memoryAudio{}, 0, nil).Handler())
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	alpha := dialStation(t, wsURL, "alpha")
	scout := dialStation(t, wsURL, "scout")
	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, alpha, signaling.TypeMemberList)
	send(t, scout, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, scout, signaling.TypeMemberList)
	expect(t, alpha, signaling.TypeMembership)

	send(t, scout, signaling.NewMessage(signaling.TypeTransmission, "", "alpha", "",
		signaling.TransmissionPayload{Kind: radio.TransmissionWhisper, Active: true}))
	failure := expect(t, scout, signaling.TypeError)
	var payload signaling.ErrorPayload
	if err := failure.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(payload.Err(), radio.ErrAccessDenied) {
		t.Fatalf("error payload %+v, want access denied", payload)
	}
	testutil.RequireNoReceive(t, alpha.Messages(), 100*time.Millisecond, "denied whisper reached addressee")

	send(t, scout, signaling.NewMessage(signaling.TypeTransmission, "", "alpha", "",
		signaling.TransmissionPayload{Kind: radio.TransmissionWhisper, Active: false}))
	release := expect(t, alpha, signaling.TypeTransmission)
	if release.From != "scout" {
		t.Fatalf("release routed as %+v, want from scout", release)
	}
}

func TestClientKeepaliveFollowsPingInterval(t *testing.T) {
	station := newClient("alpha", nil, nil, 0, nil)
	if station.pingPeriod != defaultPingInterval {
		t.Fatalf("default ping period = %s, want %s", station.pingPeriod, defaultPingInterval)
	}
	if station.pongWait != 2*defaultPingInterval {
		t.Fatalf("default pong wait = %s, want %s", station.pongWait, 2*defaultPingInterval)
	}

	station = newClient("alpha", nil, nil, 5*time.Second, nil)
	if station.pingPeriod != 5*time.Second || station.pongWait != 10*time.Second {
		t.Fatalf("ping period %s / pong wait %s, want 5s / 10s", station.pingPeriod, station.pongWait)
	}
}

func TestJoinRejectionCarriesErrorCode(t *testing.T) {
	private := radio.Channel{ID: "command", Kind: radio.ChannelPrivate, Active: true}
	wsURL := startRelay(t, []radio.Channel{private, publicChannel("dispatch")})

	alpha := dialStation(t, wsURL, "alpha")

	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "command"})
	failure := expect(t, alpha, signaling.TypeError)
	var payload signaling.ErrorPayload
	if err := failure.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(payload.Err(), radio.ErrAccessDenied) {
		t.Fatalf("error payload %+v, want access denied", payload)
	}

	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "nowhere"})
	failure = expect(t, alpha, signaling.TypeError)
	if err := failure.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(payload.Err(), radio.ErrUnknownChannel) {
		t.Fatalf("error payload %+v, want unknown channel", payload)
	}
}

func TestDisconnectBecomesLeave(t *testing.T) {
	wsURL := startRelay(t, []radio.Channel{publicChannel("dispatch")})

	alpha := dialStation(t, wsURL, "alpha")
	bravo := dialStation(t, wsURL, "bravo")
	send(t, alpha, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, alpha, signaling.TypeMemberList)
	send(t, bravo, signaling.Message{Type: signaling.TypeJoin, Channel: "dispatch"})
	expect(t, bravo, signaling.TypeMemberList)
	expect(t, alpha, signaling.TypeMembership)

	bravo.Close()

	left := expect(t, alpha, signaling.TypeMembership)
	var membership signaling.MembershipPayload
	if err := left.DecodePayload(&membership); err != nil {
		t.Fatal(err)
	}
	if membership.Event != signaling.MemberLeft || membership.Member.User != "bravo" {
		t.Fatalf("membership = %+v, want bravo left", membership)
	}
}

func TestAudioConfigEndpoint(t *testing.T) {
	resolver := policy.NewResolver(staticDirectory{}, staticGrants{})
	reg := registry.New(registry.Config{Resolver: resolver})
	hub := NewHub(reg, nil, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(NewServer(hub, hub.metrics, &memoryAudio{}, 0, nil).Handler())
	t.Cleanup(server.Close)

	// Unsaved users get defaults.
	resp, err := http.Get(server.URL + "/audio-config?user=alpha")
	if err != nil {
		t.Fatal(err)
	}
	var config radio.AudioConfig
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if config != radio.DefaultAudioConfig() {
		t.Fatalf("got %+v, want defaults", config)
	}

	// Save and read back.
	config.OutputVolume = 0.5
	config.Quality = radio.QualityHigh
	body, _ := json.Marshal(config)
	request, _ := http.NewRequest(http.MethodPut,
		server.URL+"/audio-config?user=alpha", strings.NewReader(string(body)))
	resp, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/audio-config?user=alpha")
	if err != nil {
		t.Fatal(err)
	}
	var loaded radio.AudioConfig
	if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if loaded != config {
		t.Fatalf("loaded %+v, want %+v", loaded, config)
	}

	// Out-of-range volume is rejected.
	bad := config
	bad.OutputVolume = 1.5
	body, _ = json.Marshal(bad)
	request, _ = http.NewRequest(http.MethodPut,
		server.URL+"/audio-config?user=alpha", strings.NewReader(string(body)))
	resp, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad PUT status = %d, want 400", resp.StatusCode)
	}
}
