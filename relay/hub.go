// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/perety/airwave/radio"
	"github.com/perety/airwave/registry"
	"github.com/perety/airwave/signaling"
)

// Hub routes signaling traffic between connected stations. A single
// run loop owns the client map and performs all fan-out, so every
// station observes membership changes in registry commit order.
type Hub struct {
	registry *registry.Registry
	metrics  *Metrics
	logger   *slog.Logger

	register   chan *client
	unregister chan *client
	inbound    chan inbound

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}

	// clients is owned by the run loop.
	clients map[string]*client
}

type inbound struct {
	client  *client
	message signaling.Message
}

// NewHub builds a hub over the given registry.
func NewHub(reg *registry.Registry, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		registry:   reg,
		metrics:    metrics,
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inbound, 256),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		clients:    make(map[string]*client),
	}
}

// Run processes registrations and messages until Stop. Call in its own
// goroutine.
func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.dropClient(client)
		case in := <-h.inbound:
			h.handleMessage(in.client, in.message)
		case <-h.done:
			for _, client := range h.clients {
				client.shutdown()
			}
			return
		}
	}
}

// Stop shuts the hub down and waits for the run loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}

func (h *Hub) addClient(joining *client) {
	// A reconnecting station replaces its stale connection.
	if previous, ok := h.clients[joining.user]; ok {
		h.dropClient(previous)
	}
	h.clients[joining.user] = joining
	h.metrics.ConnectedStations.Set(float64(len(h.clients)))
	h.logger.Info("station connected", "user", joining.user)
}

// dropClient removes the connection and treats the disconnect as a
// leave.
func (h *Hub) dropClient(leaving *client) {
	if current, ok := h.clients[leaving.user]; !ok || current != leaving {
		// Already replaced or removed.
		leaving.shutdown()
		return
	}
	delete(h.clients, leaving.user)
	leaving.shutdown()
	h.metrics.ConnectedStations.Set(float64(len(h.clients)))

	if left, ok := h.registry.Leave(leaving.user); ok {
		h.broadcastMembership(signaling.MemberLeft, left)
	}
	h.logger.Info("station disconnected", "user", leaving.user)
}

func (h *Hub) handleMessage(from *client, message signaling.Message) {
	message.From = from.user
	h.metrics.MessagesRelayed.WithLabelValues(string(message.Type)).Inc()

	switch message.Type {
	case signaling.TypeJoin:
		h.handleJoin(from, message.Channel)
	case signaling.TypeLeave:
		if left, ok := h.registry.Leave(from.user); ok {
			h.broadcastMembership(signaling.MemberLeft, left)
		}
	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeCandidate:
		h.forward(from, message)
	case signaling.TypeTransmission:
		h.handleTransmission(from, message)
	default:
		h.sendError(from, signaling.CodeBadRequest, "unhandled message type "+string(message.Type))
	}
}

func (h *Hub) handleJoin(from *client, channelID string) {
	result, err := h.registry.Join(from.user, channelID)
	if err != nil {
		// A rejected join left the previous membership untouched: the
		// mover stays on-air where it was.
		code := codeFor(err)
		h.metrics.JoinRejections.WithLabelValues(code).Inc()
		h.sendError(from, code, err.Error())
		return
	}
	if result.Left != nil {
		h.broadcastMembership(signaling.MemberLeft, *result.Left)
	}

	h.metrics.JoinsTotal.WithLabelValues(channelID).Inc()
	h.metrics.ChannelMembers.WithLabelValues(channelID).Set(float64(len(result.Members)))

	members := make([]signaling.Member, len(result.Members))
	for i, membership := range result.Members {
		members[i] = signaling.Member{
			User:  membership.User,
			Seq:   membership.Seq,
			State: membership.State,
		}
	}
	var kind radio.ChannelKind
	if channel, ok := h.registry.Channel(channelID); ok {
		kind = channel.Kind
	}
	h.send(from, signaling.NewMessage(signaling.TypeMemberList, "", from.user, channelID,
		signaling.MemberListPayload{Kind: kind, Members: members}))

	h.broadcastMembership(signaling.MemberJoined, result.Membership)
}

func (h *Hub) handleTransmission(from *client, message signaling.Message) {
	var payload signaling.TransmissionPayload
	if err := message.DecodePayload(&payload); err != nil {
		h.sendError(from, signaling.CodeBadRequest, "bad transmission payload")
		return
	}

	// Whispers are directed; they bypass the membership state but not
	// the transmit permission. Releases always pass so the recipient
	// is never left holding an open whisper.
	if message.To != "" {
		if payload.Active {
			if err := h.registry.TransmitAllowed(from.user); err != nil {
				h.sendError(from, codeFor(err), err.Error())
				return
			}
		}
		h.forward(from, message)
		return
	}

	membership, err := h.registry.SetTransmitting(from.user, payload.Active)
	if err != nil {
		h.sendError(from, codeFor(err), err.Error())
		return
	}

	message.Channel = membership.Channel
	h.broadcast(membership.Channel, from.user, message)
}

// forward delivers a directed message to its addressee. An unknown
// addressee is dropped silently: the membership change that removes a
// peer races its in-flight negotiation traffic.
func (h *Hub) forward(from *client, message signaling.Message) {
	target, ok := h.clients[message.To]
	if !ok {
		h.logger.Debug("dropping message for unknown peer",
			"from", from.user, "to", message.To, "type", message.Type)
		return
	}
	h.send(target, message)
}

func (h *Hub) broadcastMembership(event string, membership radio.Membership) {
	message := signaling.NewMessage(signaling.TypeMembership, "", "", membership.Channel,
		signaling.MembershipPayload{
			Event: event,
			Member: signaling.Member{
				User:  membership.User,
				Seq:   membership.Seq,
				State: membership.State,
			},
		})
	h.broadcast(membership.Channel, membership.User, message)
	h.metrics.ChannelMembers.WithLabelValues(membership.Channel).
		Set(float64(len(h.registry.Members(membership.Channel))))
}

// broadcast fans a message out to the channel's members, skipping the
// originating user.
func (h *Hub) broadcast(channelID, skip string, message signaling.Message) {
	for _, membership := range h.registry.Members(channelID) {
		if membership.User == skip {
			continue
		}
		if target, ok := h.clients[membership.User]; ok {
			h.send(target, message)
		}
	}
}

// send queues a message on the client's write path. A station that
// stopped reading gets dropped rather than stalling the run loop.
func (h *Hub) send(target *client, message signaling.Message) {
	select {
	case target.sendQueue <- message:
	default:
		h.logger.Warn("station not reading, dropping connection", "user", target.user)
		h.metrics.DroppedClients.Inc()
		h.dropClient(target)
	}
}

func (h *Hub) sendError(target *client, code, detail string) {
	h.send(target, signaling.NewMessage(signaling.TypeError, "", target.user, "",
		signaling.ErrorPayload{Code: code, Message: detail}))
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, radio.ErrAccessDenied):
		return signaling.CodeAccessDenied
	case errors.Is(err, radio.ErrChannelFull):
		return signaling.CodeChannelFull
	case errors.Is(err, radio.ErrUnknownChannel):
		return signaling.CodeUnknownChannel
	case errors.Is(err, radio.ErrChannelInactive):
		return signaling.CodeChannelInactive
	case errors.Is(err, radio.ErrNotMember):
		return signaling.CodeNotMember
	default:
		return signaling.CodeBadRequest
	}
}
