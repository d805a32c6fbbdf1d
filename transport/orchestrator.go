// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/perety/airwave/lib/clock"
	"github.com/perety/airwave/radio"
	"github.com/perety/airwave/signaling"
)

// DefaultNegotiationTimeout bounds one offer/answer exchange before
// the link is torn down and retried.
const DefaultNegotiationTimeout = 10 * time.Second

// Config carries the orchestrator's collaborators.
type Config struct {
	// User is the local station's identity on the signaling plane.
	User string

	// Signaler is the connected signaling client.
	Signaler signaling.Signaler

	// Factory builds media sessions.
	Factory SessionFactory

	// Clock drives negotiation deadlines. Defaults to the real clock.
	Clock clock.Clock

	// NegotiationTimeout overrides DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	Logger *slog.Logger

	// OnTransmission receives relayed transmission events from other
	// members. May be nil.
	OnTransmission func(from, channel string, payload signaling.TransmissionPayload)

	// OnLinkUp fires when a peer link reaches the connected state. May
	// be nil.
	OnLinkUp func(remote string)

	// OnPeerUnreachable fires when negotiation with a peer is
	// abandoned after the retry. The cause wraps
	// radio.ErrNegotiationTimeout when the deadline expired and
	// radio.ErrPeerUnreachable when the media transport failed. May be
	// nil.
	OnPeerUnreachable func(remote string, cause error)
}

// Orchestrator owns every peer link of one station. It consumes the
// signaling stream in a single run loop: membership changes decide
// which links exist, and join order decides who offers. The member
// with the lower join sequence initiates toward the newcomer, the
// newcomer only answers, so a pair never builds duplicate links.
type Orchestrator struct {
	user    string
	signaler signaling.Signaler
	factory SessionFactory
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger

	onTransmission    func(from, channel string, payload signaling.TransmissionPayload)
	onLinkUp          func(remote string)
	onPeerUnreachable func(remote string, cause error)

	// events funnels session callbacks into the run loop.
	events chan linkEvent

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}

	mu       sync.Mutex
	links    map[string]*PeerLink
	channel  string
	selfSeq  uint64
	joinWait chan joinOutcome
}

type joinOutcome struct {
	kind radio.ChannelKind
	err  error
}

type linkEventKind int

const (
	linkConnected linkEventKind = iota
	linkFailed
	linkTimeout
)

type linkEvent struct {
	link *PeerLink
	kind linkEventKind
}

// New builds an orchestrator. Call Run to start processing.
func New(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	timeout := config.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}

	return &Orchestrator{
		user:              config.User,
		signaler:          config.Signaler,
		factory:           config.Factory,
		clock:             clk,
		timeout:           timeout,
		logger:            logger,
		onTransmission:    config.OnTransmission,
		onLinkUp:          config.OnLinkUp,
		onPeerUnreachable: config.OnPeerUnreachable,
		events:            make(chan linkEvent, 64),
		done:              make(chan struct{}),
		stopped:           make(chan struct{}),
		links:             make(map[string]*PeerLink),
	}
}

// Run processes signaling until the relay connection is lost or Stop
// is called. On relay loss every link is closed, membership is gone,
// and the returned error reports the disconnect; rejoining after a
// reconnect is the station's decision.
func (o *Orchestrator) Run() error {
	defer close(o.stopped)
	for {
		select {
		case message, ok := <-o.signaler.Messages():
			if !ok {
				o.handleRelayLoss()
				if err := o.signaler.Err(); err != nil {
					return err
				}
				return nil
			}
			o.handleMessage(message)
		case event := <-o.events:
			o.handleLinkEvent(event)
		case <-o.done:
			o.DisconnectAll()
			return nil
		}
	}
}

// Stop shuts the orchestrator down and waits for the run loop.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.done) })
	<-o.stopped
}

// Join asks the relay for channel membership and waits for the member
// list or a rejection. On success the channel's access kind is
// returned so the station can mark emergency-channel transmissions.
func (o *Orchestrator) Join(ctx context.Context, channelID string) (radio.ChannelKind, error) {
	o.mu.Lock()
	if o.joinWait != nil {
		o.mu.Unlock()
		return "", fmt.Errorf("join %s: a join is already in flight", channelID)
	}
	wait := make(chan joinOutcome, 1)
	o.joinWait = wait
	o.mu.Unlock()

	err := o.signaler.Send(ctx, signaling.Message{Type: signaling.TypeJoin, Channel: channelID})
	if err != nil {
		o.clearJoinWait()
		return "", err
	}

	select {
	case outcome := <-wait:
		return outcome.kind, outcome.err
	case <-ctx.Done():
		o.clearJoinWait()
		return "", ctx.Err()
	case <-o.done:
		return "", radio.ErrRelayDisconnected
	}
}

// Leave drops the membership and every peer link.
func (o *Orchestrator) Leave(ctx context.Context) error {
	err := o.signaler.Send(ctx, signaling.Message{Type: signaling.TypeLeave})
	o.DisconnectAll()
	o.mu.Lock()
	o.channel = ""
	o.selfSeq = 0
	o.mu.Unlock()
	return err
}

// Transmit relays a local transmission flip. Whisper events carry a
// target and are delivered to that peer only; everything else fans out
// to the channel.
func (o *Orchestrator) Transmit(ctx context.Context, event radio.TransmissionEvent) error {
	message := signaling.NewMessage(signaling.TypeTransmission, "", event.Target, event.Channel,
		signaling.TransmissionPayload{Kind: event.Kind, Active: event.Active})
	return o.signaler.Send(ctx, message)
}

// WriteAudio sends one encoded frame over every established link.
// Write failures are per-link: a glitching peer does not block the
// rest of the channel.
func (o *Orchestrator) WriteAudio(frame []byte, duration time.Duration) {
	for _, link := range o.establishedLinks() {
		if err := link.session.WriteAudio(frame, duration); err != nil {
			o.logger.Warn("audio write failed", "peer", link.remote, "error", err)
		}
	}
}

// WriteAudioTo sends one encoded frame to a single peer, the whisper
// path.
func (o *Orchestrator) WriteAudioTo(remote string, frame []byte, duration time.Duration) error {
	o.mu.Lock()
	link, ok := o.links[remote]
	o.mu.Unlock()
	if !ok || !link.Established() {
		return fmt.Errorf("whisper to %s: %w", remote, radio.ErrPeerUnreachable)
	}
	return link.session.WriteAudio(frame, duration)
}

// ConnectedPeers lists the peers with established links, sorted.
func (o *Orchestrator) ConnectedPeers() []string {
	links := o.establishedLinks()
	peers := make([]string, 0, len(links))
	for _, link := range links {
		peers = append(peers, link.remote)
	}
	sort.Strings(peers)
	return peers
}

// LinkState reports the lifecycle state of the link to remote.
func (o *Orchestrator) LinkState(remote string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.links[remote]
	if !ok {
		return "", false
	}
	return link.State(), true
}

// DisconnectFrom tears down the link to one peer.
func (o *Orchestrator) DisconnectFrom(remote string) {
	o.mu.Lock()
	link, ok := o.links[remote]
	delete(o.links, remote)
	o.mu.Unlock()
	if ok {
		link.shutdown()
	}
}

// DisconnectAll tears down every link.
func (o *Orchestrator) DisconnectAll() {
	o.mu.Lock()
	links := o.links
	o.links = make(map[string]*PeerLink)
	o.mu.Unlock()
	for _, link := range links {
		link.shutdown()
	}
}

func (o *Orchestrator) establishedLinks() []*PeerLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		if link.Established() {
			links = append(links, link)
		}
	}
	return links
}

func (o *Orchestrator) handleMessage(message signaling.Message) {
	switch message.Type {
	case signaling.TypeMemberList:
		o.handleMemberList(message)
	case signaling.TypeMembership:
		o.handleMembership(message)
	case signaling.TypeOffer:
		o.handleOffer(message)
	case signaling.TypeAnswer:
		o.handleAnswer(message)
	case signaling.TypeCandidate:
		o.handleCandidate(message)
	case signaling.TypeTransmission:
		o.handleTransmission(message)
	case signaling.TypeError:
		o.handleError(message)
	default:
		o.logger.Debug("ignoring message", "type", message.Type)
	}
}

// handleMemberList commits a successful join. The joiner always holds
// the channel's highest sequence, so it initiates toward no one: the
// existing members offer as they learn of the arrival.
func (o *Orchestrator) handleMemberList(message signaling.Message) {
	var payload signaling.MemberListPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad member list", "error", err)
		return
	}

	// Links from a previous channel do not survive the hop.
	o.DisconnectAll()

	o.mu.Lock()
	o.channel = message.Channel
	for _, member := range payload.Members {
		if member.User == o.user {
			o.selfSeq = member.Seq
		}
	}
	wait := o.joinWait
	o.joinWait = nil
	o.mu.Unlock()

	o.logger.Info("joined channel",
		"channel", message.Channel, "seq", o.selfSeq, "members", len(payload.Members))
	if wait != nil {
		wait <- joinOutcome{kind: payload.Kind}
	}
}

func (o *Orchestrator) handleMembership(message signaling.Message) {
	var payload signaling.MembershipPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad membership payload", "error", err)
		return
	}
	remote := payload.Member.User
	if remote == o.user {
		return
	}

	switch payload.Event {
	case signaling.MemberJoined:
		// The newcomer's sequence is above ours, so this side offers.
		o.mu.Lock()
		seq := o.selfSeq
		_, exists := o.links[remote]
		o.mu.Unlock()
		if exists {
			o.logger.Debug("link already exists for joining peer", "peer", remote)
			return
		}
		if seq >= payload.Member.Seq {
			// Stale event from before the local hop; the newcomer side
			// of the pair answers, never offers.
			o.logger.Debug("ignoring join with lower seq", "peer", remote, "seq", payload.Member.Seq)
			return
		}
		o.connectTo(remote)

	case signaling.MemberLeft:
		// Any pending negotiation toward the peer dies with the
		// membership.
		o.DisconnectFrom(remote)
		o.logger.Info("peer left channel", "peer", remote)
	}
}

// connectTo opens an initiator link: build a session, send the offer,
// arm the deadline.
func (o *Orchestrator) connectTo(remote string) {
	session, err := o.factory(remote, o.sessionEvents(remote))
	if err != nil {
		o.logger.Error("session construction failed", "peer", remote, "error", err)
		return
	}

	link := newPeerLink(remote, session, true, o.logger)
	o.mu.Lock()
	o.links[remote] = link
	o.mu.Unlock()

	if !o.sendOffer(link) {
		o.DisconnectFrom(remote)
	}
}

// sendOffer creates and ships the offer for the link's current
// session, arming the negotiation deadline. Reports success.
func (o *Orchestrator) sendOffer(link *PeerLink) bool {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	offer, err := link.session.CreateOffer(ctx)
	if err != nil {
		o.logger.Error("creating offer failed", "peer", link.remote, "error", err)
		return false
	}
	message := signaling.NewMessage(signaling.TypeOffer, "", link.remote, o.currentChannel(),
		signaling.DescriptionPayload{SDP: offer})
	if err := o.signaler.Send(ctx, message); err != nil {
		o.logger.Error("sending offer failed", "peer", link.remote, "error", err)
		return false
	}

	o.armDeadline(link)
	o.logger.Info("offer sent", "peer", link.remote, "retry", link.retried)
	return true
}

// handleOffer answers an inbound offer. Only the later joiner of a
// pair receives offers; an existing link for the peer means the
// initiator gave up and is renegotiating, so the old link is replaced.
func (o *Orchestrator) handleOffer(message signaling.Message) {
	var payload signaling.DescriptionPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad offer payload", "from", message.From, "error", err)
		return
	}
	remote := message.From

	o.DisconnectFrom(remote)

	session, err := o.factory(remote, o.sessionEvents(remote))
	if err != nil {
		o.logger.Error("session construction failed", "peer", remote, "error", err)
		return
	}
	link := newPeerLink(remote, session, false, o.logger)
	o.mu.Lock()
	o.links[remote] = link
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	answer, err := session.AcceptOffer(ctx, payload.SDP)
	if err != nil {
		o.logger.Error("answering offer failed", "peer", remote, "error", err)
		o.DisconnectFrom(remote)
		return
	}
	reply := signaling.NewMessage(signaling.TypeAnswer, "", remote, message.Channel,
		signaling.DescriptionPayload{SDP: answer})
	if err := o.signaler.Send(ctx, reply); err != nil {
		o.logger.Error("sending answer failed", "peer", remote, "error", err)
		o.DisconnectFrom(remote)
		return
	}

	o.armDeadline(link)
	o.logger.Info("offer answered", "peer", remote)
}

func (o *Orchestrator) handleAnswer(message signaling.Message) {
	var payload signaling.DescriptionPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad answer payload", "from", message.From, "error", err)
		return
	}

	o.mu.Lock()
	link, ok := o.links[message.From]
	o.mu.Unlock()
	if !ok || !link.initiator {
		o.logger.Debug("dropping unexpected answer", "from", message.From)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := link.session.AcceptAnswer(ctx, payload.SDP); err != nil {
		o.logger.Error("applying answer failed", "peer", message.From, "error", err)
	}
}

func (o *Orchestrator) handleCandidate(message signaling.Message) {
	var payload signaling.CandidatePayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad candidate payload", "from", message.From, "error", err)
		return
	}

	o.mu.Lock()
	link, ok := o.links[message.From]
	o.mu.Unlock()
	if !ok {
		// Trickled candidates race link teardown; losing one is fine.
		o.logger.Debug("dropping candidate for unknown link", "from", message.From)
		return
	}
	if err := link.session.AddCandidate(payload.Candidate); err != nil {
		o.logger.Warn("adding candidate failed", "peer", message.From, "error", err)
	}
}

func (o *Orchestrator) handleTransmission(message signaling.Message) {
	if o.onTransmission == nil {
		return
	}
	var payload signaling.TransmissionPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad transmission payload", "from", message.From, "error", err)
		return
	}
	o.onTransmission(message.From, message.Channel, payload)
}

func (o *Orchestrator) handleError(message signaling.Message) {
	var payload signaling.ErrorPayload
	if err := message.DecodePayload(&payload); err != nil {
		o.logger.Error("bad error payload", "error", err)
		return
	}

	o.mu.Lock()
	wait := o.joinWait
	o.joinWait = nil
	o.mu.Unlock()
	if wait != nil {
		wait <- joinOutcome{err: payload.Err()}
		return
	}
	o.logger.Warn("relay error", "code", payload.Code, "detail", payload.Message)
}

func (o *Orchestrator) handleLinkEvent(event linkEvent) {
	link := event.link

	o.mu.Lock()
	current, ok := o.links[link.remote]
	o.mu.Unlock()
	if !ok || current != link {
		// The link was replaced or torn down while the event was in
		// flight.
		return
	}

	switch event.kind {
	case linkConnected:
		link.establish()
		o.logger.Info("peer link established", "peer", link.remote, "initiator", link.initiator)
		if o.onLinkUp != nil {
			o.onLinkUp(link.remote)
		}

	case linkFailed, linkTimeout:
		if link.State() == LinkConnected {
			if event.kind == linkTimeout {
				// Stale deadline: the connected event was already
				// queued when the timer fired. The link is up.
				o.logger.Debug("ignoring expired deadline on established link", "peer", link.remote)
				return
			}
			// An established link dropped. The peer is still a member;
			// its side (or a rejoin) renegotiates.
			o.logger.Warn("established peer link lost", "peer", link.remote)
			o.DisconnectFrom(link.remote)
			return
		}
		cause := radio.ErrPeerUnreachable
		if event.kind == linkTimeout {
			cause = radio.ErrNegotiationTimeout
		}
		o.retryOrGiveUp(link, cause)
	}
}

// retryOrGiveUp handles a negotiation that ran out of time or failed.
// The initiator gets exactly one fresh attempt; after that the peer is
// reported unreachable. The answering side never retries, it waits for
// the initiator's next offer.
func (o *Orchestrator) retryOrGiveUp(link *PeerLink, cause error) {
	link.session.Close()

	if link.initiator && !link.retried {
		link.retried = true
		session, err := o.factory(link.remote, o.sessionEvents(link.remote))
		if err != nil {
			o.logger.Error("session construction failed", "peer", link.remote, "error", err)
			o.giveUp(link, cause)
			return
		}
		link.session = session
		o.logger.Warn("negotiation expired, retrying once", "peer", link.remote)
		if !o.sendOffer(link) {
			o.giveUp(link, cause)
		}
		return
	}

	o.giveUp(link, cause)
}

func (o *Orchestrator) giveUp(link *PeerLink, cause error) {
	link.failed()
	o.mu.Lock()
	if current, ok := o.links[link.remote]; ok && current == link {
		delete(o.links, link.remote)
	}
	o.mu.Unlock()
	link.shutdown()

	if link.initiator {
		o.logger.Error("peer unreachable", "peer", link.remote, "cause", cause)
		if o.onPeerUnreachable != nil {
			o.onPeerUnreachable(link.remote, fmt.Errorf("peer %s: %w", link.remote, cause))
		}
	}
}

// armDeadline bounds the negotiation with the orchestrator's clock.
func (o *Orchestrator) armDeadline(link *PeerLink) {
	link.stopDeadline()
	link.deadline = o.clock.AfterFunc(o.timeout, func() {
		o.pushEvent(linkEvent{link: link, kind: linkTimeout})
	})
}

// sessionEvents binds session callbacks for the peer. Connectivity
// changes funnel through the run loop; candidates go straight out on
// the wire.
func (o *Orchestrator) sessionEvents(remote string) Events {
	return Events{
		Candidate: func(candidate string) {
			message := signaling.NewMessage(signaling.TypeCandidate, "", remote, o.currentChannel(),
				signaling.CandidatePayload{Candidate: candidate})
			if err := o.signaler.Send(context.Background(), message); err != nil {
				o.logger.Warn("sending candidate failed", "peer", remote, "error", err)
			}
		},
		Connected: func() { o.pushLinkEvent(remote, linkConnected) },
		Failed:    func() { o.pushLinkEvent(remote, linkFailed) },
	}
}

// pushLinkEvent resolves the peer's current link at delivery time so a
// stale session's event cannot touch its replacement.
func (o *Orchestrator) pushLinkEvent(remote string, kind linkEventKind) {
	o.mu.Lock()
	link, ok := o.links[remote]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.pushEvent(linkEvent{link: link, kind: kind})
}

func (o *Orchestrator) pushEvent(event linkEvent) {
	select {
	case o.events <- event:
	case <-o.done:
	}
}

func (o *Orchestrator) currentChannel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channel
}

func (o *Orchestrator) clearJoinWait() {
	o.mu.Lock()
	o.joinWait = nil
	o.mu.Unlock()
}

// handleRelayLoss tears everything down when the signaling stream
// closes underneath us.
func (o *Orchestrator) handleRelayLoss() {
	o.logger.Error("relay connection lost, closing all peer links")
	o.DisconnectAll()

	o.mu.Lock()
	o.channel = ""
	o.selfSeq = 0
	wait := o.joinWait
	o.joinWait = nil
	o.mu.Unlock()
	if wait != nil {
		wait <- joinOutcome{err: radio.ErrRelayDisconnected}
	}
}
