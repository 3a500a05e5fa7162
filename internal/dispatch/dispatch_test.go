/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"errors"
	"testing"

	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

func rooms(pairs ...struct {
	name string
	n    int
}) []relaytypes.RoomSummary {
	out := make([]relaytypes.RoomSummary, len(pairs))
	for i, p := range pairs {
		out[i] = relaytypes.RoomSummary{Name: p.name, Kind: relaytypes.KindAudio, NumListeners: p.n}
	}
	return out
}

// TestNextFreeAlphabeticalPicksAlphabeticalMinOfEmptyRooms is spec.md S4:
// rooms {"b"(0), "a"(1), "c"(0)} matching ".*" -> eligible {"b","c"},
// alphabetical min is "b".
func TestNextFreeAlphabeticalPicksAlphabeticalMinOfEmptyRooms(t *testing.T) {
	d, err := New("d1", "", ".*", relaytypes.KindAudio, NextFreeAlphabetical, 0, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := rooms(
		struct {
			name string
			n    int
		}{"b", 0},
		struct {
			name string
			n    int
		}{"a", 1},
		struct {
			name string
			n    int
		}{"c", 0},
	)

	sel, err := d.ChooseRoom(snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.RoomName != "b" {
		t.Fatalf("got %q, want %q per spec.md S4", sel.RoomName, "b")
	}
}

func TestNextFreeAlphabeticalHasNoFallbackToNonEmptyRooms(t *testing.T) {
	d, err := New("d1", "", ".*", relaytypes.KindAudio, NextFreeAlphabetical, 0, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := rooms(struct {
		name string
		n    int
	}{"a", 3})

	_, err = d.ChooseRoom(snap)
	if !errors.Is(err, relayerr.NoRoomAvailable) {
		t.Fatalf("got %v, want NoRoomAvailable even though a non-empty room exists", err)
	}
}

func TestRandomConsidersAllMatchingRoomsNotOnlyEmpty(t *testing.T) {
	d, err := New("d1", "", ".*", relaytypes.KindAudio, Random, 0, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only one room, and it is non-empty: Random must still select it,
	// unlike NextFreeAlphabetical/NextFreeRandom which would reject it.
	snap := rooms(struct {
		name string
		n    int
	}{"only", 5})

	sel, err := d.ChooseRoom(snap)
	if err != nil {
		t.Fatalf("Random must consider non-empty rooms, got error: %v", err)
	}
	if sel.RoomName != "only" {
		t.Fatalf("got %q, want %q", sel.RoomName, "only")
	}
}

func TestChooseRoomReturnsNoRoomAvailableWhenPatternMatchesNothing(t *testing.T) {
	d, err := New("d1", "", "^nomatch$", relaytypes.KindAudio, Random, 0, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := rooms(struct {
		name string
		n    int
	}{"room1", 0})

	_, err = d.ChooseRoom(snap)
	if !errors.Is(err, relayerr.NoRoomAvailable) {
		t.Fatalf("got %v, want NoRoomAvailable", err)
	}
}

func TestChooseRoomOnlyMatchesDispatcherKind(t *testing.T) {
	d, err := New("d1", "", ".*", relaytypes.KindFloat, Random, 0, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := rooms(struct {
		name string
		n    int
	}{"room1", 0})
	snap[0].Kind = relaytypes.KindAudio // present, but wrong kind for this dispatcher

	_, err = d.ChooseRoom(snap)
	if !errors.Is(err, relayerr.NoRoomAvailable) {
		t.Fatalf("got %v, want NoRoomAvailable for a kind mismatch", err)
	}
}

func TestRandomPostfixIsFourAlphanumericChars(t *testing.T) {
	p, err := RandomPostfix()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p) != 4 {
		t.Fatalf("got length %d, want 4", len(p))
	}
	for _, r := range p {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("postfix %q contains non-alphanumeric rune %q", p, r)
		}
	}
}
