/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package registry implements the room registry (C5): per-RoomKind
// name->room maps with create/get/list/delete, publishing a RoomEvent on
// the global bus for every mutating operation before returning.
package registry

import (
	"sync"

	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
	"github.com/friendsincode/relaycast/internal/telemetry"
)

// Handle is anything a room package can register that exposes enough to
// build a RoomSummary snapshot. The registry itself never reaches inside a
// room's internals; it only holds the handle and the kind it belongs to.
type Handle interface {
	Summary() relaytypes.RoomSummary
}

// Registry is the per-RoomKind map described in spec.md §4.5.
type Registry struct {
	bus *events.Bus

	mu    sync.Mutex
	kinds map[relaytypes.RoomKind]map[string]Handle
}

// New creates an empty registry publishing mutation events on bus.
func New(bus *events.Bus) *Registry {
	return &Registry{
		bus: bus,
		kinds: map[relaytypes.RoomKind]map[string]Handle{
			relaytypes.KindFloat: make(map[string]Handle),
			relaytypes.KindChat:  make(map[string]Handle),
			relaytypes.KindAudio: make(map[string]Handle),
		},
	}
}

// Insert adds room under name in kind's map. Fails relayerr.Duplicate if
// name is already present in that kind's map.
func (r *Registry) Insert(kind relaytypes.RoomKind, name string, room Handle) error {
	r.mu.Lock()
	m := r.kinds[kind]
	if _, exists := m[name]; exists {
		r.mu.Unlock()
		return relayerr.Duplicate
	}
	m[name] = room
	count := len(m)
	r.mu.Unlock()

	telemetry.RoomsActive.WithLabelValues(string(kind)).Set(float64(count))
	r.bus.Publish(events.RoomEvent{Kind: events.RoomCreated, Name: name})
	return nil
}

// Get returns the handle registered under name in kind's map.
func (r *Registry) Get(kind relaytypes.RoomKind, name string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.kinds[kind][name]
	return h, ok
}

// Contains reports whether name is present in kind's map.
func (r *Registry) Contains(kind relaytypes.RoomKind, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.kinds[kind][name]
	return ok
}

// List returns a snapshot copy of every room summary in kind's map, taken
// without holding the registry lock across any caller-visible work — the
// lock is released before returning per spec.md §4.5 ("copy out the
// current handle set without holding the registry lock across async
// boundaries").
func (r *Registry) List(kind relaytypes.RoomKind) []relaytypes.RoomSummary {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.kinds[kind]))
	for _, h := range r.kinds[kind] {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	out := make([]relaytypes.RoomSummary, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Summary())
	}
	return out
}

// Remove deletes name from kind's map and publishes RoomDeleted.
func (r *Registry) Remove(kind relaytypes.RoomKind, name string) {
	r.mu.Lock()
	delete(r.kinds[kind], name)
	count := len(r.kinds[kind])
	r.mu.Unlock()

	telemetry.RoomsActive.WithLabelValues(string(kind)).Set(float64(count))
	r.bus.Publish(events.RoomEvent{Kind: events.RoomDeleted, Name: name})
}

// Clear removes every room across every kind without publishing individual
// RoomDeleted events — used only for full-registry teardown (process
// shutdown), not exposed as a routine operator action.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind := range r.kinds {
		r.kinds[kind] = make(map[string]Handle)
	}
}

// PublishUserCount publishes a RoomUserCount event; called by a room on
// every listener-count change per spec.md §4.4.
func (r *Registry) PublishUserCount(name string, count int) {
	r.bus.Publish(events.RoomEvent{Kind: events.RoomUserCount, Name: name, Count: count})
}

// FullRoomList returns a snapshot across every kind, used to build the
// synthetic Init event for a new API subscriber (SPEC_FULL §11).
func (r *Registry) FullRoomList() []relaytypes.RoomSummary {
	r.mu.Lock()
	kinds := make([]relaytypes.RoomKind, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	r.mu.Unlock()

	var all []relaytypes.RoomSummary
	for _, kind := range kinds {
		all = append(all, r.List(kind)...)
	}
	return all
}
