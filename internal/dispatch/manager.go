/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"sync"
	"time"

	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

// Manager owns the set of named dispatchers, mirroring the registry's
// name->handle shape (spec.md §4.6 dispatchers are looked up by name from
// the OSC /createDispatcher handler and the /d/{name} HTTP view).
type Manager struct {
	bus *events.Bus

	mu          sync.Mutex
	dispatchers map[string]*Dispatcher
}

// NewManager creates an empty dispatcher manager publishing mutation
// events on bus.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{bus: bus, dispatchers: make(map[string]*Dispatcher)}
}

// Create registers a new dispatcher under name. Fails relayerr.Duplicate
// if name is already taken.
func (m *Manager) Create(name, adminPassword, pattern string, kind relaytypes.RoomKind, policy Policy, timeout time.Duration, returnRoomPrefix string, addRandomPostfix bool) (*Dispatcher, error) {
	d, err := New(name, adminPassword, pattern, kind, policy, timeout, returnRoomPrefix, addRandomPostfix)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.dispatchers[name]; exists {
		m.mu.Unlock()
		return nil, relayerr.Duplicate
	}
	m.dispatchers[name] = d
	m.mu.Unlock()

	m.bus.Publish(events.RoomEvent{Kind: events.DispatcherCreated, Dispatcher: name})
	return d, nil
}

// Get returns the dispatcher registered under name.
func (m *Manager) Get(name string) (*Dispatcher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dispatchers[name]
	return d, ok
}

// Delete removes name and publishes DispatcherDeleted.
func (m *Manager) Delete(name string) {
	m.mu.Lock()
	delete(m.dispatchers, name)
	m.mu.Unlock()
	m.bus.Publish(events.RoomEvent{Kind: events.DispatcherDeleted, Dispatcher: name})
}

// Reset clears every dispatcher and publishes a single DispatcherReset.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.dispatchers = make(map[string]*Dispatcher)
	m.mu.Unlock()
	m.bus.Publish(events.RoomEvent{Kind: events.DispatcherReset})
}
