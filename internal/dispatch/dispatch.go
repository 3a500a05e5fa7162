/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch implements the room dispatcher (C6): pattern-matched
// selection of a concrete room from a registry snapshot using one of three
// policies, grounded on the choose_room match arms in
// original_source/src/server/models.rs.
package dispatch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
	"github.com/friendsincode/relaycast/internal/telemetry"
)

// Policy is one of the three selection algorithms from spec.md §4.6.
type Policy string

const (
	// Random picks uniformly from every room matching the pattern,
	// regardless of listener count.
	Random Policy = "random"
	// NextFreeAlphabetical picks the alphabetically-smallest empty room,
	// with NO fallback to non-empty rooms if none are empty — confirmed by
	// original_source/src/server/models.rs and spec.md's Design Notes.
	NextFreeAlphabetical Policy = "next_free_alphabetical"
	// NextFreeRandom picks uniformly from the empty subset.
	NextFreeRandom Policy = "next_free_random"
)

const randomPostfixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Dispatcher is the RoomDispatcher value from spec.md §3. Every field is
// immutable except Timeout, which is advisory only (SPEC_FULL §10 / spec.md
// §4.6 — never consumed for selection correctness).
type Dispatcher struct {
	Name              string
	AdminPassword     string
	Pattern           *regexp.Regexp
	Kind              relaytypes.RoomKind
	Policy            Policy
	ReturnRoomPrefix  string
	AddRandomPostfix  bool

	mu      sync.Mutex
	timeout time.Duration
}

// New constructs a Dispatcher from its inputs, compiling pattern.
func New(name, adminPassword, pattern string, kind relaytypes.RoomKind, policy Policy, timeout time.Duration, returnRoomPrefix string, addRandomPostfix bool) (*Dispatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile dispatcher pattern %q: %w", pattern, err)
	}
	return &Dispatcher{
		Name:             name,
		AdminPassword:    adminPassword,
		Pattern:          re,
		Kind:             kind,
		Policy:           policy,
		ReturnRoomPrefix: returnRoomPrefix,
		AddRandomPostfix: addRandomPostfix,
		timeout:          timeout,
	}, nil
}

// Timeout returns the dispatcher's current advisory timeout.
func (d *Dispatcher) Timeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout
}

// SetTimeout updates the advisory timeout watch.
func (d *Dispatcher) SetTimeout(t time.Duration) {
	d.mu.Lock()
	d.timeout = t
	d.mu.Unlock()
}

// Selection is the result of a successful choose_room call.
type Selection struct {
	RoomName         string
	ReturnRoomPrefix string
}

// ChooseRoom implements spec.md §4.6 step 1-3 exactly:
//  1. candidate set = rooms of d.Kind whose name matches d.Pattern.
//  2. empty candidate set -> relayerr.NoRoomAvailable.
//  3. policy dispatch: Random picks uniformly from ALL candidates;
//     NextFreeAlphabetical/NextFreeRandom only ever consider the
//     num_listeners<=0 subset, with NO fallback to non-empty rooms.
func (d *Dispatcher) ChooseRoom(snapshot []relaytypes.RoomSummary) (sel Selection, err error) {
	defer func() {
		result := "selected"
		switch {
		case errors.Is(err, relayerr.NoRoomAvailable):
			result = "no_room_available"
		case err != nil:
			result = "error"
		}
		telemetry.DispatcherSelectionsTotal.WithLabelValues(d.Name, result).Inc()
	}()

	var candidates []relaytypes.RoomSummary
	for _, r := range snapshot {
		if r.Kind == d.Kind && d.Pattern.MatchString(r.Name) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Selection{}, relayerr.NoRoomAvailable
	}

	var chosen string
	switch d.Policy {
	case Random:
		idx, err := randomIndex(len(candidates))
		if err != nil {
			return Selection{}, err
		}
		chosen = candidates[idx].Name

	case NextFreeAlphabetical:
		empty := emptyRooms(candidates)
		if len(empty) == 0 {
			return Selection{}, relayerr.NoRoomAvailable
		}
		sort.Slice(empty, func(i, j int) bool { return empty[i].Name < empty[j].Name })
		chosen = empty[0].Name

	case NextFreeRandom:
		empty := emptyRooms(candidates)
		if len(empty) == 0 {
			return Selection{}, relayerr.NoRoomAvailable
		}
		idx, err := randomIndex(len(empty))
		if err != nil {
			return Selection{}, err
		}
		chosen = empty[idx].Name

	default:
		return Selection{}, fmt.Errorf("dispatch: unknown policy %q", d.Policy)
	}

	return Selection{RoomName: chosen, ReturnRoomPrefix: d.ReturnRoomPrefix}, nil
}

func emptyRooms(candidates []relaytypes.RoomSummary) []relaytypes.RoomSummary {
	var out []relaytypes.RoomSummary
	for _, r := range candidates {
		if r.NumListeners <= 0 {
			out = append(out, r)
		}
	}
	return out
}

func randomIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("dispatch: generate random index: %w", err)
	}
	return int(i.Int64()), nil
}

// RandomPostfix generates the 4 CSPRNG alphanumeric characters spec.md
// §4.6 appends to the external URL when AddRandomPostfix is set.
func RandomPostfix() (string, error) {
	out := make([]byte, 4)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomPostfixAlphabet))))
		if err != nil {
			return "", fmt.Errorf("dispatch: generate random postfix: %w", err)
		}
		out[i] = randomPostfixAlphabet[idx.Int64()]
	}
	return string(out), nil
}
