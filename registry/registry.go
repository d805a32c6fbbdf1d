// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/perety/airwave/lib/clock"
	"github.com/perety/airwave/policy"
	"github.com/perety/airwave/radio"
)

// AuditEvent records a membership action for the audit trail. The
// registry hands these to the configured AuditFunc synchronously under
// no lock; the store writes them out fire-and-forget.
type AuditEvent struct {
	Time    time.Time
	User    string
	Channel string
	Action  string
}

// Audit actions.
const (
	ActionJoin      = "join"
	ActionLeave     = "leave"
	ActionEmergency = "emergency-transmit"
)

// AuditFunc receives audit events. It must not block.
type AuditFunc func(AuditEvent)

// Config carries the registry's collaborators.
type Config struct {
	// Channels seeds the channel set, usually loaded from the store.
	Channels []radio.Channel

	// Resolver evaluates join and transmit permissions.
	Resolver *policy.Resolver

	// Clock stamps commit times.
	Clock clock.Clock

	// Audit, if set, receives membership audit events.
	Audit AuditFunc

	// DefaultCapacity applies to channels whose stored capacity is
	// zero. Zero means radio.DefaultCapacity.
	DefaultCapacity int

	Logger *slog.Logger
}

// Registry tracks live memberships. Safe for concurrent use.
type Registry struct {
	resolver        *policy.Resolver
	clock           clock.Clock
	audit           AuditFunc
	defaultCapacity int
	logger          *slog.Logger

	mu       sync.Mutex
	channels map[string]radio.Channel
	// members is channel -> user -> membership.
	members map[string]map[string]*radio.Membership
	// byUser enforces single-channel presence.
	byUser map[string]string
	seq    uint64
}

// New builds a registry from the given configuration.
func New(config Config) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	registry := &Registry{
		resolver:        config.Resolver,
		clock:           clk,
		audit:           config.Audit,
		defaultCapacity: config.DefaultCapacity,
		logger:          logger,
		channels:        make(map[string]radio.Channel),
		members:         make(map[string]map[string]*radio.Membership),
		byUser:          make(map[string]string),
	}
	for _, channel := range config.Channels {
		registry.channels[channel.ID] = channel
	}
	return registry
}

// ReplaceChannels swaps in a fresh channel set after a dashboard edit.
// Existing memberships are untouched; a channel that became inactive
// simply accepts no further joins.
func (r *Registry) ReplaceChannels(channels []radio.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = make(map[string]radio.Channel, len(channels))
	for _, channel := range channels {
		r.channels[channel.ID] = channel
	}
}

// Channel returns the definition for id.
func (r *Registry) Channel(id string) (radio.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channel, ok := r.channels[id]
	return channel, ok
}

// List returns the active channels the user is permitted to join,
// ordered by descending priority then ID.
func (r *Registry) List(user string) []radio.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var visible []radio.Channel
	for _, channel := range r.channels {
		if !channel.Active {
			continue
		}
		if !r.resolver.CanJoin(user, channel) {
			continue
		}
		visible = append(visible, channel)
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Priority != visible[j].Priority {
			return visible[i].Priority > visible[j].Priority
		}
		return visible[i].ID < visible[j].ID
	})
	return visible
}

// JoinResult is the committed outcome of a Join.
type JoinResult struct {
	// Membership is the joiner's new membership.
	Membership radio.Membership

	// Members is the channel's member list in commit (Seq) order,
	// including the joiner.
	Members []radio.Membership

	// Left is the membership implicitly released by single-channel
	// presence, if the user was in another channel.
	Left *radio.Membership
}

// Join commits the user into the channel. The permission check, the
// capacity check, the implicit leave of any previous channel, and the
// Seq assignment happen atomically, so capacity is never exceeded
// under racing joins. A rejected join is side-effect-free: the user's
// previous membership is released only once the new one is certain to
// commit.
func (r *Registry) Join(user, channelID string) (JoinResult, error) {
	r.mu.Lock()

	channel, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return JoinResult{}, fmt.Errorf("join %s: %w", channelID, radio.ErrUnknownChannel)
	}
	if !channel.Active {
		r.mu.Unlock()
		return JoinResult{}, fmt.Errorf("join %s: %w", channelID, radio.ErrChannelInactive)
	}
	if !r.resolver.CanJoin(user, channel) {
		r.mu.Unlock()
		return JoinResult{}, fmt.Errorf("join %s as %s: %w", channelID, user, radio.ErrAccessDenied)
	}

	// The mover's own slot does not count against the target, so a
	// member rejoining their full channel does not reject themselves.
	occupancy := len(r.members[channelID])
	if r.byUser[user] == channelID {
		occupancy--
	}
	if occupancy >= r.capacityOf(channel) {
		r.mu.Unlock()
		return JoinResult{}, fmt.Errorf("join %s: %w", channelID, radio.ErrChannelFull)
	}

	left := r.removeLocked(user)

	r.seq++
	membership := &radio.Membership{
		Channel:  channelID,
		User:     user,
		State:    radio.MemberListening,
		Seq:      r.seq,
		JoinedAt: r.clock.Now(),
	}
	if r.members[channelID] == nil {
		r.members[channelID] = make(map[string]*radio.Membership)
	}
	r.members[channelID][user] = membership
	r.byUser[user] = channelID

	result := JoinResult{
		Membership: *membership,
		Members:    r.membersLocked(channelID),
		Left:       left,
	}
	r.mu.Unlock()

	r.auditLeave(left)
	r.emit(AuditEvent{Time: membership.JoinedAt, User: user, Channel: channelID, Action: ActionJoin})
	r.logger.Info("member joined", "user", user, "channel", channelID, "seq", membership.Seq)
	return result, nil
}

// Leave releases the user's membership, if any. Returns the released
// membership so the relay can notify the remaining members.
func (r *Registry) Leave(user string) (radio.Membership, bool) {
	r.mu.Lock()
	left := r.removeLocked(user)
	r.mu.Unlock()

	if left == nil {
		return radio.Membership{}, false
	}
	r.auditLeave(left)
	r.logger.Info("member left", "user", user, "channel", left.Channel)
	return *left, true
}

// Members returns the channel's member list in commit (Seq) order.
func (r *Registry) Members(channelID string) []radio.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(channelID)
}

// Membership returns the user's current membership.
func (r *Registry) Membership(user string) (radio.Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channelID, ok := r.byUser[user]
	if !ok {
		return radio.Membership{}, false
	}
	return *r.members[channelID][user], true
}

// SetTransmitting flips the user's membership state. Activating
// requires transmit permission on the channel; emergency-channel
// activations are audited.
func (r *Registry) SetTransmitting(user string, active bool) (radio.Membership, error) {
	r.mu.Lock()

	channelID, ok := r.byUser[user]
	if !ok {
		r.mu.Unlock()
		return radio.Membership{}, fmt.Errorf("transmit as %s: %w", user, radio.ErrNotMember)
	}
	membership := r.members[channelID][user]
	channel := r.channels[channelID]

	if active && !r.resolver.CanTransmit(user, channel) {
		r.mu.Unlock()
		return radio.Membership{}, fmt.Errorf("transmit on %s as %s: %w",
			channelID, user, radio.ErrAccessDenied)
	}

	if active {
		membership.State = radio.MemberTransmitting
	} else {
		membership.State = radio.MemberListening
	}
	updated := *membership
	emergency := active && channel.Kind == radio.ChannelEmergency
	r.mu.Unlock()

	if emergency {
		r.emit(AuditEvent{Time: r.clock.Now(), User: user, Channel: channelID, Action: ActionEmergency})
	}
	return updated, nil
}

// TransmitAllowed reports whether the user holds transmit permission
// on their current channel, without touching membership state. The
// relay checks directed transmissions through this before forwarding.
func (r *Registry) TransmitAllowed(user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channelID, ok := r.byUser[user]
	if !ok {
		return fmt.Errorf("transmit as %s: %w", user, radio.ErrNotMember)
	}
	if !r.resolver.CanTransmit(user, r.channels[channelID]) {
		return fmt.Errorf("transmit on %s as %s: %w", channelID, user, radio.ErrAccessDenied)
	}
	return nil
}

// capacityOf resolves the channel's member limit: its own capacity,
// then the registry-wide default, then radio.DefaultCapacity.
func (r *Registry) capacityOf(channel radio.Channel) int {
	if channel.Capacity == 0 && r.defaultCapacity > 0 {
		return r.defaultCapacity
	}
	return channel.EffectiveCapacity()
}

// removeLocked drops the user's membership and returns it, or nil.
func (r *Registry) removeLocked(user string) *radio.Membership {
	channelID, ok := r.byUser[user]
	if !ok {
		return nil
	}
	membership := r.members[channelID][user]
	delete(r.members[channelID], user)
	if len(r.members[channelID]) == 0 {
		delete(r.members, channelID)
	}
	delete(r.byUser, user)
	return membership
}

func (r *Registry) membersLocked(channelID string) []radio.Membership {
	memberships := make([]radio.Membership, 0, len(r.members[channelID]))
	for _, membership := range r.members[channelID] {
		memberships = append(memberships, *membership)
	}
	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].Seq < memberships[j].Seq
	})
	return memberships
}

func (r *Registry) auditLeave(left *radio.Membership) {
	if left == nil {
		return
	}
	r.emit(AuditEvent{Time: r.clock.Now(), User: left.User, Channel: left.Channel, Action: ActionLeave})
}

func (r *Registry) emit(event AuditEvent) {
	if r.audit != nil {
		r.audit(event)
	}
}
