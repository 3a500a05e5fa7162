/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events implements the process-wide RoomEvent broadcast bus (C7):
// a single capacity-256 channel fed by the registry and by room listener-count
// changes, consumed by the API subscription endpoint and the OSC pinger.
package events

import (
	"context"

	"github.com/friendsincode/relaycast/internal/relaytypes"

	"github.com/friendsincode/relaycast/internal/fanout"
)

// Capacity is the event bus buffer size per spec.md §4.7.
const Capacity = 256

// Kind tags a RoomEvent variant.
type Kind string

const (
	RoomCreated       Kind = "room_created"
	RoomDeleted       Kind = "room_deleted"
	RoomUserCount     Kind = "room_user_count"
	DispatcherCreated Kind = "dispatcher_created"
	DispatcherDeleted Kind = "dispatcher_deleted"
	DispatcherReset   Kind = "dispatcher_reset"
	// Init is a synthetic, server-local event: never published on the real
	// bus, only constructed for a brand new API subscriber's first message
	// (spec.md §4.7 / SPEC_FULL §11 FullRoomList).
	Init Kind = "init"
)

// RoomEvent is the tagged union from spec.md §3. Name/Count/Dispatcher are
// populated per Kind; unused fields are zero.
type RoomEvent struct {
	Kind       Kind
	Name       string
	Count      int
	Dispatcher string
	// Rooms is only populated for a synthetic Init event.
	Rooms []relaytypes.RoomSummary
}

// Bus is the process-wide RoomEvent broadcast channel.
type Bus struct {
	ch *fanout.Channel[RoomEvent]
}

// NewBus creates an event bus with spec.md §4.7's fixed capacity.
func NewBus() *Bus {
	return &Bus{ch: fanout.New[RoomEvent](Capacity)}
}

// Publish broadcasts an event to every current subscriber without blocking.
func (b *Bus) Publish(ev RoomEvent) {
	b.ch.Publish(ev)
}

// Subscription is a handle a consumer reads events from and releases when
// done.
type Subscription struct {
	sub *fanout.Subscriber[RoomEvent]
}

// Subscribe registers a new subscriber. Per spec.md §4.7, late subscribers
// receive only events from subscription time forward — no history replay.
func (b *Bus) Subscribe() *Subscription {
	return &Subscription{sub: b.ch.Subscribe()}
}

// Recv waits for the next event, or returns ok=false when ctx is done or the
// bus has been closed and drained.
func (s *Subscription) Recv(ctx context.Context) (RoomEvent, bool) {
	item, ok := s.sub.Recv(ctx)
	if !ok {
		return RoomEvent{}, false
	}
	if item.Lagged > 0 {
		// A lagging subscriber silently lost events; the bus makes no
		// ordering promise across a gap, only within surviving events.
		return item.Value, true
	}
	return item.Value, true
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.sub.Unsubscribe()
}
